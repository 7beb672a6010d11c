package micros

import (
	"math"
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  bool
	}{
		{in: "0.1", want: 100_000},
		{in: "1", want: 1_000_000},
		{in: "0.000001", want: 1},
		{in: "0.525", want: 525_000},
		{in: ".5", want: 500_000},
		{in: "2.", want: 2_000_000},
		{in: " 1.5 ", want: 1_500_000},
		{in: "-0.25", want: -250_000},
		{in: "+3", want: 3_000_000},
		{in: "9223372036854.775807", want: math.MaxInt64},
		{in: "", err: true},
		{in: ".", err: true},
		{in: "1.2.3", err: true},
		{in: "0.0000001", err: true}, // 7 decimal places
		{in: "1e-3", err: true},
		{in: "0.-5", err: true},
		{in: "9223372036854.775808", err: true}, // MaxInt64 + 1 micro
		{in: "9999999999999", err: true},        // whole part overflows
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.err {
			if err == nil {
				t.Fatalf("Parse(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("Parse(%q) got=%d want=%d", c.in, got, c.want)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{in: 525_000, want: "0.525"},
		{in: 100_000_000, want: "100"},
		{in: 0, want: "0"},
		{in: 1, want: "0.000001"},
		{in: -1_500_000, want: "-1.5"},
		{in: 50_000_000, want: "50"},
	}
	for _, c := range cases {
		if got := Format(c.in); got != c.want {
			t.Fatalf("Format(%d) got=%q want=%q", c.in, got, c.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.1", "0.525", "123.456789", "0.000001", "7"} {
		m, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := Format(m); got != s {
			t.Fatalf("round trip %q got=%q", s, got)
		}
	}
}

func TestMulDivFloor(t *testing.T) {
	// 500 shares at 300/1000 exchange rate => floor(150).
	if got := MulDivFloor(500, 300, 1000); got != 150 {
		t.Fatalf("got=%d want=150", got)
	}
	// Flooring, not rounding: 7*3/2 = 10.5 => 10.
	if got := MulDivFloor(7, 3, 2); got != 10 {
		t.Fatalf("got=%d want=10", got)
	}
	// Intermediate product overflows int64 but the quotient fits.
	if got := MulDivFloor(math.MaxInt64, 2, 4); got != math.MaxInt64/2 {
		t.Fatalf("got=%d want=%d", got, math.MaxInt64/2)
	}
	// Quotient past int64 saturates.
	if got := MulDivFloor(math.MaxInt64, 3, 1); got != math.MaxInt64 {
		t.Fatalf("got=%d want=MaxInt64", got)
	}
}

func TestMulDivFloorZeroDivPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on zero divisor")
		}
	}()
	MulDivFloor(1, 1, 0)
}

func TestMulDivFloorBig(t *testing.T) {
	// A 256-bit sized fill scaled by 0.1.
	fill, ok := new(big.Int).SetString("340282366920938463463374607431768211456", 10) // 2^128
	if !ok {
		t.Fatal("SetString")
	}
	got := MulDivFloorBig(fill, 100_000, Scale)
	want, _ := new(big.Int).SetString("34028236692093846346337460743176821145", 10) // floor(2^128/10)
	if got.Cmp(want) != 0 {
		t.Fatalf("got=%s want=%s", got, want)
	}
}

func TestBpsAdjustments(t *testing.T) {
	// 0.5 worsened up by 500 bps => 0.525.
	if got := AddBps(500_000, 500); got != 525_000 {
		t.Fatalf("AddBps got=%d want=525000", got)
	}
	// 0.5 worsened down by 500 bps => 0.475.
	if got := SubBps(500_000, 500); got != 475_000 {
		t.Fatalf("SubBps got=%d want=475000", got)
	}
	// Zero bps leaves the price alone.
	if got := AddBps(123_456, 0); got != 123_456 {
		t.Fatalf("AddBps(0) got=%d want=123456", got)
	}
	// Delta is floored before applying: floor(3*1/10000) = 0.
	if got := AddBps(3, 1); got != 3 {
		t.Fatalf("AddBps tiny got=%d want=3", got)
	}
}
