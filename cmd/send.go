package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"github.com/zama-ai/testnet-dispatcher/pkg/wallet"
)

var (
	sendWallet string
	sendAmount string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single transfer from one loaded wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(sendAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount %q: %w", sendAmount, err)
		}
		if !common.IsHexAddress(sendWallet) {
			return fmt.Errorf("invalid --wallet %q: expected a hex address", sendWallet)
		}

		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		defer logger.Sync()

		units := currency.NewDefaultRegistry()
		unit, err := resolveUnit(cfg, units)
		if err != nil {
			return err
		}
		wallets, err := loadWallets(cfg)
		if err != nil {
			return err
		}
		w, err := findWallet(wallets, common.HexToAddress(sendWallet))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.Network.Name, err)
		}
		defer client.Close()

		d, err := newDispatcher(cfg, client, unit)
		if err != nil {
			return err
		}
		sub, err := d.Dispatch(ctx, w.Key(), amount)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sub.Hash.Hex())
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendWallet, "wallet", "w", "", "address of the sending wallet, as listed in the wallet file")
	sendCmd.Flags().StringVarP(&sendAmount, "amount", "a", "", "amount in native units, e.g. 0.02")
	_ = sendCmd.MarkFlagRequired("wallet")
	_ = sendCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(sendCmd)
}

func findWallet(wallets []*wallet.Wallet, address common.Address) (*wallet.Wallet, error) {
	for _, w := range wallets {
		if w.Address() == address {
			return w, nil
		}
	}
	return nil, fmt.Errorf("wallet %s is not in the wallet file", address.Hex())
}
