// Package calldata decodes CTF exchange match calls out of raw transaction
// input and attributes fill quantities to watched addresses. Everything here
// is a pure function over bytes; no I/O, no shared state.
package calldata

import (
	"math/big"
	"strings"
)

// Side is an order leg's direction as encoded on the wire.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// Role is the position a watched address held within a matched trade.
type Role string

const (
	RoleTaker   Role = "TAKER"
	RoleMaker   Role = "MAKER"
	RoleUnknown Role = "UNKNOWN"
)

// Function selectors observed on the CTF exchanges. Only matchOrders is
// fully decoded; the rest are recognized so traffic can be classified.
const (
	SelectorMatchOrders   = "a4a6c5a5"
	SelectorFillOrders    = "2287e350"
	SelectorFillOrder     = "e20b2304"
	SelectorFillOrdersNeg = "d798eff6"
	SelectorCancelOrder   = "4f7e43df"
	SelectorCancelOrders  = "b93ea7ad"
)

// KnownSelectors maps a 4-byte selector (lowercase hex, no 0x) to the
// exchange function it invokes.
var KnownSelectors = map[string]string{
	SelectorMatchOrders:   "matchOrders",
	SelectorFillOrders:    "fillOrders",
	SelectorFillOrder:     "fillOrder",
	SelectorFillOrdersNeg: "fillOrdersNeg",
	SelectorCancelOrder:   "cancelOrder",
	SelectorCancelOrders:  "cancelOrders",
}

// OrderLeg is one signed order recovered from match calldata. Addresses are
// 0x-prefixed lowercase hex; amounts are the raw unsigned 256-bit words in
// venue base units. The signature bytes live outside the static tuple the
// decoder walks and are never recovered.
type OrderLeg struct {
	Salt          *big.Int
	Maker         string
	Signer        string
	Taker         string
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          Side
	SignatureType int
}

// MatchCall is a decoded matchOrders invocation: one taker order crossed
// against one or more maker orders, plus the settlement amounts the caller
// supplied. MakerFillAmounts[i] is the fill applied to MakerOrders[i].
type MatchCall struct {
	TakerOrder         OrderLeg
	MakerOrders        []OrderLeg
	TakerFillAmount    *big.Int
	TakerReceiveAmount *big.Int
	MakerFillAmounts   []*big.Int
}

// Fill attributes matched quantities to a single watched address.
// SharesFilled and CashFilled are nil, not zero, when the corresponding
// amount could not be derived; callers must not conflate the two.
type Fill struct {
	Role         Role
	Side         Side
	TokenID      string
	SharesFilled *big.Int
	CashFilled   *big.Int
}

// FunctionName classifies transaction input by its leading selector.
// Unrecognized or short input yields "unknown".
func FunctionName(input string) string {
	body := stripHexPrefix(input)
	if len(body) < 8 {
		return "unknown"
	}
	if name, ok := KnownSelectors[strings.ToLower(body[:8])]; ok {
		return name
	}
	return "unknown"
}
