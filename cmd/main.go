package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zama-ai/testnet-dispatcher/pkg/version"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "testnet-dispatcher",
	Short: "Claim testnet tokens and dispatch small transfers from a set of wallets",
	Long: `testnet-dispatcher walks a list of testnet wallets, optionally claims tokens
from a faucet for each, then sends one or more small native transfers from
each wallet to a fixed destination. Runs repeat on a cron schedule.`,
	SilenceUsage: true,
	Version:      version.GetVersion().String(),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		versionJSON, err := json.Marshal(version.GetVersion())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(versionJSON))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
