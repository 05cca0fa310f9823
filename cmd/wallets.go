package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List the addresses of the usable wallets in the wallet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		defer logger.Sync()

		wallets, err := loadWallets(cfg)
		if err != nil {
			return err
		}
		for i, w := range wallets {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i, w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(walletsCmd)
}
