package types

// Side is the order direction understood by the CLOB.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects the time-in-force for a posted order.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // rests on the book until cancelled
	OrderTypeFOK OrderType = "FOK" // fills completely or not at all
	OrderTypeGTD OrderType = "GTD" // rests until the expiration timestamp
	OrderTypeFAK OrderType = "FAK" // fills what it can, cancels the rest
)

// Chain is the EVM chain id the exchange contracts are deployed on.
type Chain int

const (
	ChainPolygon Chain = 137
	ChainAmoy    Chain = 80002
)

// SignatureType mirrors the exchange's signature discriminator.
type SignatureType int

const (
	SignatureTypeEOA        SignatureType = 0 // standard wallet, maker signs directly
	SignatureTypeMagic      SignatureType = 1 // POLY_PROXY email-login proxy wallet
	SignatureTypeGnosisSafe SignatureType = 2 // gnosis safe funder wallet
)

// AssetType selects a balance bucket on the exchange.
type AssetType string

const (
	AssetTypeCollateral  AssetType = "COLLATERAL"
	AssetTypeConditional AssetType = "CONDITIONAL"
)

// TickSize is the minimum price increment of a market, spelled the way
// the API reports it.
type TickSize string

const (
	TickSize01    TickSize = "0.1"
	TickSize001   TickSize = "0.01"
	TickSize0001  TickSize = "0.001"
	TickSize00001 TickSize = "0.0001"
)

// ApiKeyCreds carries the L2 credential triple used to sign API requests.
type ApiKeyCreds struct {
	Key        string
	Secret     string
	Passphrase string
}

// ApiKeyRaw is the shape the derive/create endpoints respond with.
type ApiKeyRaw struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
