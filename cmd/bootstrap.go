package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/dispatcher"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"github.com/zama-ai/testnet-dispatcher/pkg/network"
	"github.com/zama-ai/testnet-dispatcher/pkg/validation"
	"github.com/zama-ai/testnet-dispatcher/pkg/wallet"
	"go.uber.org/zap/zapcore"
)

// loadConfig reads and validates the config and installs the logger. Every
// config error is reported before anything touches the network.
func loadConfig(path string) (*config.Schema, error) {
	cfg, err := config.ReadConfigFile(path)
	if err != nil {
		return nil, err
	}

	level, err := zapcore.ParseLevel(cfg.Global.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zapLogger, err := logger.NewLogger(cfg.Global.LogLevel, cfg.Global.Environment == "dev")
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	logger.SetLogger(zapLogger)
	logger.BridgeGethLogs(zapLogger, max(level, zapcore.InfoLevel))

	if err := validation.NewConfigValidator().ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	logger.Infof("Configuration validated successfully")
	return cfg, nil
}

// resolveUnit returns the network unit, registering it when it is not a
// default one, and checks the dispatch amounts are expressible in it.
func resolveUnit(cfg *config.Schema, registry *currency.Registry) (*currency.Unit, error) {
	unit, err := registry.Ensure(cfg.Network.Unit, *cfg.Network.UnitDecimals)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve unit %s: %w", cfg.Network.Unit, err)
	}

	amount := cfg.Dispatch.Amount
	if *amount.Precision > unit.Decimals {
		return nil, fmt.Errorf("dispatch.amount.precision %d exceeds the %d decimals of %s", *amount.Precision, unit.Decimals, unit.Name)
	}
	min, max := amount.Bounds()
	for _, bound := range []decimal.Decimal{min, max} {
		if _, err := currency.ToBaseUnits(bound, unit.Decimals); err != nil {
			return nil, fmt.Errorf("dispatch.amount %s is not expressible in %s: %w", bound, unit.Name, err)
		}
	}
	return unit, nil
}

// resolveMetricsUnit returns the unit balances are reported in, the network
// unit unless metricsUnit is set.
func resolveMetricsUnit(cfg *config.Schema, registry *currency.Registry, unit *currency.Unit) (*currency.Unit, error) {
	if cfg.Network.MetricsUnit == nil {
		return unit, nil
	}
	return registry.Get(cfg.Network.MetricsUnit.Name)
}

func loadWallets(cfg *config.Schema) ([]*wallet.Wallet, error) {
	wallets, err := wallet.Load(cfg.Wallets.Path, cfg.Wallets.Limit)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d wallets from %s", len(wallets), cfg.Wallets.Path)
	return wallets, nil
}

func connect(ctx context.Context, cfg *config.Schema) (*network.Client, error) {
	client, err := network.Connect(ctx, &cfg.Network)
	if err != nil {
		return nil, err
	}
	logger.Infof("Connected to %s (chain id %s)", client.URL(), client.ChainIDValue())
	return client, nil
}

func newDispatcher(cfg *config.Schema, client *network.Client, unit *currency.Unit) (*dispatcher.Dispatcher, error) {
	pricer, err := dispatcher.NewUniformGasPrice(cfg.Dispatch.GasPriceGwei.Min, cfg.Dispatch.GasPriceGwei.Max, nil)
	if err != nil {
		return nil, err
	}
	return dispatcher.New(client, cfg.Network.ChainIDValue(),
		dispatcher.WithDestination(common.HexToAddress(cfg.Dispatch.Destination)),
		dispatcher.WithGasLimit(cfg.Dispatch.GasLimit),
		dispatcher.WithGasPricer(pricer),
		dispatcher.WithDecimals(unit.Decimals),
		dispatcher.WithBalanceCheck(*cfg.Dispatch.BalanceCheck),
	)
}
