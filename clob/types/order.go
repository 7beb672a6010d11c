package types

import "github.com/shopspring/decimal"

// UserOrder is a limit order as the caller thinks of it, before rounding
// and fixed-point conversion.
type UserOrder struct {
	// TokenID is the conditional token asset id.
	TokenID string

	// Price per share, in collateral units.
	Price decimal.Decimal

	// Size is the share quantity.
	Size decimal.Decimal

	// Side is the order direction.
	Side Side

	// FeeRateBps is the fee rate in basis points, optional.
	FeeRateBps *int

	// Nonce used for on-chain cancellation, optional.
	Nonce *int64

	// Expiration is a unix timestamp in seconds, optional.
	Expiration *int64

	// Taker restricts who may fill the order. Zero address means public.
	Taker *string
}

// UserMarketOrder is a marketable order. Amount is collateral for a BUY
// and shares for a SELL; Price is the worst acceptable price and is
// required, the builder does not consult the book.
type UserMarketOrder struct {
	TokenID string

	Price decimal.Decimal

	Amount decimal.Decimal

	Side Side

	FeeRateBps *int

	Nonce *int64

	Taker *string

	// OrderType must be FOK or FAK; defaults to FAK.
	OrderType *OrderType
}

// SignedOrder is the wire form the exchange accepts, amounts already in
// fixed-point base units.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewOrder wraps a signed order with its owner and time-in-force for POST.
type NewOrder struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType OrderType   `json:"orderType"`
}

// OrderResponse is what the exchange returns for posts and cancels.
type OrderResponse struct {
	Success           bool     `json:"success"`
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderID"`
	TransactionHashes []string `json:"transactionsHashes"`
	Status            string   `json:"status"`
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`
}

// OpenOrder is a resting order as reported by the orders endpoint.
type OpenOrder struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Owner           string   `json:"owner"`
	MakerAddress    string   `json:"maker_address"`
	Market          string   `json:"market"`
	AssetID         string   `json:"asset_id"`
	Side            string   `json:"side"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Price           string   `json:"price"`
	AssociateTrades []string `json:"associate_trades"`
	Outcome         string   `json:"outcome"`
	CreatedAt       int64    `json:"created_at"`
	Expiration      string   `json:"expiration"`
	OrderType       string   `json:"order_type"`
}

// OpenOrdersResponse is the paged shape of the orders endpoint.
type OpenOrdersResponse struct {
	Data       []OpenOrder `json:"data"`
	NextCursor string      `json:"next_cursor"`
	Limit      int         `json:"limit"`
	Count      int         `json:"count"`
}

// CreateOrderOptions carries per-market build parameters. A nil NegRisk
// means the client should look it up.
type CreateOrderOptions struct {
	TickSize TickSize
	NegRisk  *bool
}
