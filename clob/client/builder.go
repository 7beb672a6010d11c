package client

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/followbot/gofollow/clob/signing"
	"github.com/followbot/gofollow/clob/types"
)

// RoundConfig fixes the decimal places the exchange accepts per field.
type RoundConfig struct {
	Price  int32
	Size   int32
	Amount int32
}

// RoundingConfig maps a market's tick size to its rounding rules.
var RoundingConfig = map[types.TickSize]RoundConfig{
	types.TickSize01:    {Price: 1, Size: 2, Amount: 3},
	types.TickSize001:   {Price: 2, Size: 2, Amount: 4},
	types.TickSize0001:  {Price: 3, Size: 2, Amount: 5},
	types.TickSize00001: {Price: 4, Size: 2, Amount: 6},
}

// OrderBuilder signs orders for one funder/signature-type pairing.
type OrderBuilder struct {
	client        *Client
	signatureType types.SignatureType
	funder        string
}

func NewOrderBuilder(client *Client, signatureType types.SignatureType, funder string) *OrderBuilder {
	return &OrderBuilder{
		client:        client,
		signatureType: signatureType,
		funder:        funder,
	}
}

// BuildOrder rounds, converts to base units, and signs a user order.
func (ob *OrderBuilder) BuildOrder(userOrder *types.UserOrder, options *types.CreateOrderOptions) (*types.SignedOrder, error) {
	contracts, err := ContractConfig(ob.client.chainID)
	if err != nil {
		return nil, err
	}

	roundConfig, ok := RoundingConfig[options.TickSize]
	if !ok {
		return nil, errors.Errorf("unsupported tick size %q", options.TickSize)
	}

	signerAddress := crypto.PubkeyToAddress(ob.client.privateKey.PublicKey).Hex()

	// The funder owns the positions; it is the maker unless unset.
	maker := signerAddress
	if ob.funder != "" {
		maker = ob.funder
	}

	rawMakerAmt, rawTakerAmt := getOrderRawAmounts(userOrder.Side, userOrder.Size, userOrder.Price, roundConfig)

	makerAmount := parseUnits(rawMakerAmt, CollateralTokenDecimals)
	takerAmount := parseUnits(rawTakerAmt, CollateralTokenDecimals)

	taker := "0x0000000000000000000000000000000000000000"
	if userOrder.Taker != nil && *userOrder.Taker != "" {
		taker = *userOrder.Taker
	}

	feeRateBps := big.NewInt(0)
	if userOrder.FeeRateBps != nil {
		feeRateBps = big.NewInt(int64(*userOrder.FeeRateBps))
	}

	nonce := big.NewInt(0)
	if userOrder.Nonce != nil {
		nonce = big.NewInt(*userOrder.Nonce)
	}

	expiration := big.NewInt(0)
	if userOrder.Expiration != nil {
		expiration = big.NewInt(*userOrder.Expiration)
	}

	salt := time.Now().UnixNano()

	tokenID, ok := new(big.Int).SetString(userOrder.TokenID, 10)
	if !ok {
		return nil, errors.Errorf("invalid token id %q", userOrder.TokenID)
	}

	negRisk := options.NegRisk != nil && *options.NegRisk
	exchangeAddress := exchangeFor(contracts, negRisk)

	orderData := &signing.OrderData{
		Salt:          salt,
		Maker:         maker,
		Signer:        signerAddress,
		Taker:         taker,
		TokenID:       tokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    expiration,
		Nonce:         nonce,
		FeeRateBps:    feeRateBps,
		Side:          userOrder.Side,
		SignatureType: ob.signatureType,
	}

	signature, err := signing.BuildOrderSignature(ob.client.privateKey, ob.client.chainID, exchangeAddress, orderData)
	if err != nil {
		return nil, errors.Wrap(err, "sign order")
	}

	return &types.SignedOrder{
		Salt:          salt,
		Maker:         maker,
		Signer:        signerAddress,
		Taker:         taker,
		TokenID:       userOrder.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    expiration.String(),
		Nonce:         nonce.String(),
		FeeRateBps:    feeRateBps.String(),
		Side:          userOrder.Side,
		SignatureType: int(ob.signatureType),
		Signature:     signature,
	}, nil
}

// getOrderRawAmounts turns (side, size, price) into maker/taker amounts
// under the exchange's rounding rules. BUY makes collateral and takes
// shares; SELL is the mirror, with the tighter sell-side precision the
// exchange enforces (shares to 2 places, collateral to 4).
func getOrderRawAmounts(side types.Side, size, price decimal.Decimal, rc RoundConfig) (rawMakerAmt, rawTakerAmt decimal.Decimal) {
	rawPrice := price.Round(rc.Price)

	if side == types.SideBuy {
		rawTakerAmt = size.RoundDown(rc.Size)

		rawMakerAmt = rawTakerAmt.Mul(rawPrice)
		if exceedsPlaces(rawMakerAmt, rc.Amount) {
			rawMakerAmt = rawMakerAmt.RoundUp(rc.Amount + 4)
			if exceedsPlaces(rawMakerAmt, rc.Amount) {
				rawMakerAmt = rawMakerAmt.RoundDown(rc.Amount)
			}
		}
		return rawMakerAmt, rawTakerAmt
	}

	rawMakerAmt = size.RoundDown(rc.Size)

	rawTakerAmt = rawMakerAmt.Mul(rawPrice)
	if exceedsPlaces(rawTakerAmt, 4) {
		rawTakerAmt = rawTakerAmt.RoundDown(4)
	}
	if exceedsPlaces(rawMakerAmt, 2) {
		rawMakerAmt = rawMakerAmt.RoundDown(2)
		rawTakerAmt = rawMakerAmt.Mul(rawPrice)
		if exceedsPlaces(rawTakerAmt, 4) {
			rawTakerAmt = rawTakerAmt.RoundDown(4)
		}
	}
	return rawMakerAmt, rawTakerAmt
}

// exceedsPlaces reports whether d carries more than n meaningful
// decimal places. Trailing zeros do not count.
func exceedsPlaces(d decimal.Decimal, n int32) bool {
	return !d.Equal(d.Truncate(n))
}

// parseUnits converts a decimal amount to fixed-point base units.
func parseUnits(value decimal.Decimal, decimals int32) *big.Int {
	return value.Shift(decimals).BigInt()
}
