// Package micros implements fixed-point arithmetic with six implied
// decimal places (1 unit = 1_000_000 micros).
//
// All amount and price math in the copy pipeline stays in this integer
// domain so results are deterministic across platforms; values become
// decimal strings only at display and API boundaries.
package micros

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Scale is the number of micros per whole unit.
const Scale int64 = 1_000_000

// fracDigits is the number of implied decimal places.
const fracDigits = 6

// BpsDenom is the basis-point denominator (100% = 10000 bps).
const BpsDenom int64 = 10_000

// Parse converts a decimal string such as "0.1" or "12.345678" into
// micros without going through floating point. More than six fractional
// digits is an error rather than a silent truncation, so a mistyped
// configuration value fails loudly.
func Parse(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	neg := false
	if s != "" {
		switch s[0] {
		case '+':
			s = s[1:]
		case '-':
			neg = true
			s = s[1:]
		}
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("micros: invalid decimal %q", orig)
	}
	if len(frac) > fracDigits {
		return 0, fmt.Errorf("micros: %q has more than %d decimal places", orig, fracDigits)
	}

	var w int64
	if whole != "" {
		v, ok := parseDigits(whole)
		if !ok {
			return 0, fmt.Errorf("micros: invalid decimal %q", orig)
		}
		if v > math.MaxInt64/Scale {
			return 0, fmt.Errorf("micros: %q overflows", orig)
		}
		w = v
	}
	var f int64
	if frac != "" {
		v, ok := parseDigits(frac)
		if !ok {
			return 0, fmt.Errorf("micros: invalid decimal %q", orig)
		}
		for i := len(frac); i < fracDigits; i++ {
			v *= 10
		}
		f = v
	}

	m := w * Scale
	if m > math.MaxInt64-f {
		return 0, fmt.Errorf("micros: %q overflows", orig)
	}
	m += f
	if neg {
		m = -m
	}
	return m, nil
}

// parseDigits parses an unsigned decimal digit run. It rejects empty
// strings, signs, and anything past MaxInt64.
func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

// Format renders micros as a decimal string with trailing zeros
// trimmed: 525000 => "0.525", 100000000 => "100".
func Format(m int64) string {
	u := uint64(m)
	neg := m < 0
	if neg {
		u = -u
	}
	whole := u / uint64(Scale)
	frac := u % uint64(Scale)
	var s string
	if frac == 0 {
		s = fmt.Sprintf("%d", whole)
	} else {
		fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
		s = fmt.Sprintf("%d.%s", whole, fs)
	}
	if neg && u != 0 {
		s = "-" + s
	}
	return s
}

// MulDivFloor returns floor(a*b/div) with the intermediate product held
// in a big.Int, so a*b cannot overflow. The result saturates at the
// int64 bounds. Panics when div is zero.
func MulDivFloor(a, b, div int64) int64 {
	if div == 0 {
		panic("micros: division by zero")
	}
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	p.Div(p, big.NewInt(div))
	if !p.IsInt64() {
		if p.Sign() > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return p.Int64()
}

// MulDivFloorBig returns floor(a*mul/div) as a new big.Int. Panics when
// div is zero. Used where the multiplicand comes straight from a
// 256-bit calldata word and may not fit an int64.
func MulDivFloorBig(a *big.Int, mul, div int64) *big.Int {
	if div == 0 {
		panic("micros: division by zero")
	}
	p := new(big.Int).Mul(a, big.NewInt(mul))
	return p.Div(p, big.NewInt(div))
}

// AddBps worsens a price upward by bps basis points: m + floor(m*bps/10000).
func AddBps(m, bps int64) int64 {
	return m + MulDivFloor(m, bps, BpsDenom)
}

// SubBps worsens a price downward by bps basis points: m - floor(m*bps/10000).
func SubBps(m, bps int64) int64 {
	return m - MulDivFloor(m, bps, BpsDenom)
}
