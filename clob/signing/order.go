package signing

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"

	"github.com/followbot/gofollow/clob/types"
)

// OrderData is the exchange Order struct laid out for EIP-712 hashing.
// Amounts are fixed-point base units, never decimals.
type OrderData struct {
	Salt          int64
	Maker         string
	Signer        string
	Taker         string
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          types.Side
	SignatureType types.SignatureType
}

// BuildOrderSignature signs an order against the exchange contract's
// EIP-712 domain.
func BuildOrderSignature(
	privateKey *ecdsa.PrivateKey,
	chainID types.Chain,
	exchangeAddress string,
	orderData *OrderData,
) (string, error) {
	// The contract encodes BUY as 0 and SELL as 1.
	sideValue := int64(1)
	if orderData.Side == types.SideBuy {
		sideValue = 0
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              ExchangeDomainName,
			Version:           ExchangeVersion,
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: exchangeAddress,
		},
		Message: map[string]interface{}{
			"salt":          big.NewInt(orderData.Salt),
			"maker":         common.HexToAddress(orderData.Maker).Hex(),
			"signer":        common.HexToAddress(orderData.Signer).Hex(),
			"taker":         common.HexToAddress(orderData.Taker).Hex(),
			"tokenId":       orderData.TokenID,
			"makerAmount":   orderData.MakerAmount,
			"takerAmount":   orderData.TakerAmount,
			"expiration":    orderData.Expiration,
			"nonce":         orderData.Nonce,
			"feeRateBps":    orderData.FeeRateBps,
			"side":          big.NewInt(sideValue),
			"signatureType": big.NewInt(int64(orderData.SignatureType)),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", errors.Wrap(err, "hash order typed data")
	}

	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", errors.Wrap(err, "sign order")
	}

	return "0x" + common.Bytes2Hex(normalizeV(signature)), nil
}
