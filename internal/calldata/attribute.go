package calldata

import (
	"math/big"
	"strings"
)

// InferRoleAndSide classifies target's position in a decoded match: TAKER
// when the taker leg's maker or signer field equals target, MAKER when any
// maker leg's maker field does, UNKNOWN otherwise. Side and token come from
// the taker leg regardless of role; ComputeFillForTarget reports the leg the
// target actually signed.
func InferRoleAndSide(call *MatchCall, target string) (Role, Side, string) {
	if call == nil {
		return RoleUnknown, SideUnknown, ""
	}
	t := normalizeAddr(target)
	role := RoleUnknown
	if legSignedBy(&call.TakerOrder, t) {
		role = RoleTaker
	} else {
		for i := range call.MakerOrders {
			if normalizeAddr(call.MakerOrders[i].Maker) == t {
				role = RoleMaker
				break
			}
		}
	}
	return role, call.TakerOrder.Side, tokenString(call.TakerOrder.TokenID)
}

// ComputeFillForTarget derives the exact quantities target exchanged in a
// decoded match. All arithmetic stays in the unsigned integer domain with
// floored division, multiply before divide, matching on-chain settlement.
// Returns nil when target was not party to the trade.
func ComputeFillForTarget(call *MatchCall, target string) *Fill {
	if call == nil {
		return nil
	}
	t := normalizeAddr(target)
	if legSignedBy(&call.TakerOrder, t) {
		return takerFill(call)
	}
	return makerFill(call, t)
}

// takerFill attributes the taker leg. takerFillAmount is denominated in the
// asset the taker spends and takerReceiveAmount in the asset received; when
// the latter is absent the received quantity is derived from the leg's
// limit ratio.
func takerFill(call *MatchCall) *Fill {
	leg := &call.TakerOrder
	fill := &Fill{
		Role:    RoleTaker,
		Side:    leg.Side,
		TokenID: tokenString(leg.TokenID),
	}
	spent := call.TakerFillAmount
	received := call.TakerReceiveAmount
	if !positive(received) {
		received = legRatio(spent, leg)
	}
	switch leg.Side {
	case SideBuy:
		fill.CashFilled = spent
		fill.SharesFilled = received
	case SideSell:
		fill.SharesFilled = spent
		fill.CashFilled = received
	}
	return fill
}

// makerFill sums every maker leg signed by target. One match transaction can
// fill the same maker against several counter-orders; the legs share a side
// and token in practice, so the first matching leg names both.
func makerFill(call *MatchCall, target string) *Fill {
	var out *Fill
	shares := new(big.Int)
	usdc := new(big.Int)
	var haveShares, haveCash bool

	for i := range call.MakerOrders {
		leg := &call.MakerOrders[i]
		if normalizeAddr(leg.Maker) != target {
			continue
		}
		if out == nil {
			out = &Fill{Role: RoleMaker, Side: leg.Side, TokenID: tokenString(leg.TokenID)}
		}
		if i >= len(call.MakerFillAmounts) || call.MakerFillAmounts[i] == nil {
			continue
		}
		fillAmt := call.MakerFillAmounts[i]
		switch leg.Side {
		case SideBuy:
			// Maker pays cash, receives shares. A zero makerAmount leaves
			// the ratio undefined; the fill passes through to cash alone.
			usdc.Add(usdc, fillAmt)
			haveCash = true
			if derived := legRatio(fillAmt, leg); derived != nil {
				shares.Add(shares, derived)
				haveShares = true
			}
		case SideSell:
			shares.Add(shares, fillAmt)
			haveShares = true
			if derived := legRatio(fillAmt, leg); derived != nil {
				usdc.Add(usdc, derived)
				haveCash = true
			}
		}
		// Unknown side: nothing to assign the fill to, drop it.
	}

	if out == nil {
		return nil
	}
	if haveShares {
		out.SharesFilled = shares
	}
	if haveCash {
		out.CashFilled = usdc
	}
	return out
}

// legRatio converts a fill in the leg's maker asset into the taker asset at
// the leg's limit ratio, floored. A zero makerAmount yields nil rather than
// dividing.
func legRatio(fill *big.Int, leg *OrderLeg) *big.Int {
	if fill == nil || leg.TakerAmount == nil || !positive(leg.MakerAmount) {
		return nil
	}
	out := new(big.Int).Mul(fill, leg.TakerAmount)
	return out.Div(out, leg.MakerAmount)
}

func legSignedBy(leg *OrderLeg, target string) bool {
	return normalizeAddr(leg.Maker) == target || normalizeAddr(leg.Signer) == target
}

// normalizeAddr lowercases an address and strips any 0x prefix so the two
// wire spellings compare equal.
func normalizeAddr(s string) string {
	return strings.ToLower(stripHexPrefix(s))
}

func tokenString(t *big.Int) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func positive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}
