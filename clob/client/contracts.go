package client

import (
	orderconfig "github.com/polymarket/go-order-utils/pkg/config"
	"github.com/pkg/errors"

	"github.com/followbot/gofollow/clob/types"
)

const (
	// CollateralTokenDecimals is the USDC fixed-point precision.
	CollateralTokenDecimals = 6

	// ConditionalTokenDecimals matches the collateral precision.
	ConditionalTokenDecimals = 6
)

// ContractConfig returns the exchange contract set for a chain.
func ContractConfig(chainID types.Chain) (*orderconfig.Contracts, error) {
	contracts, err := orderconfig.GetContracts(int64(chainID))
	if err != nil {
		return nil, errors.Wrapf(err, "contracts for chain %d", chainID)
	}
	return contracts, nil
}

// exchangeFor picks the verifying contract for an order.
func exchangeFor(contracts *orderconfig.Contracts, negRisk bool) string {
	if negRisk {
		return contracts.NegRiskExchange.Hex()
	}
	return contracts.Exchange.Hex()
}
