package collector

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

// BalanceReader is satisfied by network.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EVMCollector reads native balances over JSON-RPC. The client is shared
// with the dispatcher and is not closed here.
type EVMCollector struct {
	networkName string
	client      BalanceReader
	units       *currency.Registry
	unit        *currency.Unit
	metricsUnit *currency.Unit
}

// NewEVMCollector reports balances held in unit, converted to metricsUnit
// through units. A nil metricsUnit reports in unit itself.
func NewEVMCollector(networkName string, client BalanceReader, units *currency.Registry, unit, metricsUnit *currency.Unit, addresses []common.Address, opts ...CollectorOption) (*BaseCollector, error) {
	if client == nil {
		return nil, fmt.Errorf("balance reader cannot be nil")
	}
	if unit == nil {
		return nil, fmt.Errorf("unit cannot be nil")
	}
	if metricsUnit == nil {
		metricsUnit = unit
	}
	if units == nil {
		units = currency.NewDefaultRegistry()
	}
	// fail now rather than on every scrape
	if _, err := units.Convert(decimal.Zero, unit.Name, metricsUnit.Name); err != nil {
		return nil, fmt.Errorf("cannot report %s balances in %s: %w", unit.Name, metricsUnit.Name, err)
	}

	evmCollector := &EVMCollector{
		networkName: networkName,
		client:      client,
		units:       units,
		unit:        unit,
		metricsUnit: metricsUnit,
	}
	return NewBaseCollector(networkName, metricsUnit, addresses, evmCollector, opts...), nil
}

func (ec *EVMCollector) CollectAccountBalance(ctx context.Context, address common.Address) (*BaseResult, error) {
	balance, err := ec.client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", address.Hex(), err)
	}

	converted, err := ec.units.Convert(currency.FromBaseUnits(balance, ec.unit.Decimals), ec.unit.Name, ec.metricsUnit.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to convert balance for %s: %w", address.Hex(), err)
	}
	value := converted.InexactFloat64()
	logger.Debugf("balance for %s: %s wei (%f %s)", address.Hex(), balance.String(), value, ec.metricsUnit.Symbol)

	return &BaseResult{
		NetworkName: ec.networkName,
		Address:     address,
		Value:       value,
		Health:      1.0,
	}, nil
}

func (ec *EVMCollector) Close() error {
	return nil
}
