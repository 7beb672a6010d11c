// Package copytrade turns attributed fills into scaled venue orders.
//
// Intent derivation is pure integer fixed-point math; the same fill and
// configuration always produce the same intent. Decimals appear only on
// the way out, and floats never appear at all.
package copytrade

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/followbot/gofollow/internal/calldata"
	"github.com/followbot/gofollow/pkg/config"
	"github.com/followbot/gofollow/pkg/micros"
)

// Intent is a sized, priced copy order waiting to be placed. Size and
// Notional stay in the fill's base units; prices are per-share decimals.
type Intent struct {
	TokenID      string
	Side         calldata.Side
	Size         decimal.Decimal
	LimitPrice   decimal.Decimal
	ImpliedPrice decimal.Decimal
	Notional     decimal.Decimal
	SourceHash   string
}

// BuildIntent scales a fill down to a copy order. It returns nil when
// copying is not possible or not wanted: zero scale, a side the config
// does not allow, missing or non-positive amounts, a scaled size or cash
// that floors to zero, or a slippage-adjusted price at or below zero.
func BuildIntent(fill *calldata.Fill, cfg *config.CopyConfig) *Intent {
	if fill == nil || cfg == nil {
		return nil
	}

	scale := cfg.ScaleMicros()
	if scale <= 0 {
		return nil
	}
	if !cfg.SideAllowed(string(fill.Side)) {
		return nil
	}
	if !isPositive(fill.SharesFilled) || !isPositive(fill.CashFilled) {
		return nil
	}

	copyShares := micros.MulDivFloorBig(fill.SharesFilled, scale, micros.Scale)
	if copyShares.Sign() <= 0 {
		return nil
	}
	copyCash := micros.MulDivFloorBig(fill.CashFilled, scale, micros.Scale)
	if copyCash.Sign() <= 0 {
		return nil
	}

	// Price the source paid, in micros per share.
	impliedBig := new(big.Int).Mul(fill.CashFilled, big.NewInt(micros.Scale))
	impliedBig.Div(impliedBig, fill.SharesFilled)
	if !impliedBig.IsInt64() {
		return nil
	}
	implied := impliedBig.Int64()
	if implied <= 0 {
		return nil
	}

	// Worsen the limit in the source's favor so the copy still crosses:
	// pay up on a BUY, accept less on a SELL.
	limit := implied
	switch fill.Side {
	case calldata.SideBuy:
		limit = micros.AddBps(implied, cfg.SlippageBps)
	case calldata.SideSell:
		limit = micros.SubBps(implied, cfg.SlippageBps)
	}
	if limit <= 0 {
		return nil
	}

	return &Intent{
		TokenID:      fill.TokenID,
		Side:         fill.Side,
		Size:         decimal.NewFromBigInt(copyShares, 0),
		LimitPrice:   decimal.New(limit, -6),
		ImpliedPrice: decimal.New(implied, -6),
		Notional:     decimal.NewFromBigInt(copyCash, 0),
	}
}

// VenueSize converts the base-unit size to whole shares.
func (i *Intent) VenueSize() decimal.Decimal {
	return i.Size.Shift(-6)
}

// VenueNotional converts the base-unit notional to whole collateral.
func (i *Intent) VenueNotional() decimal.Decimal {
	return i.Notional.Shift(-6)
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
