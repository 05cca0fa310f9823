package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/zama-ai/testnet-dispatcher/pkg/collector"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/faucet"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"github.com/zama-ai/testnet-dispatcher/pkg/network"
	"github.com/zama-ai/testnet-dispatcher/pkg/pacing"
	"github.com/zama-ai/testnet-dispatcher/pkg/scheduler"
	"github.com/zama-ai/testnet-dispatcher/pkg/wallet"

	httpfiber "github.com/zama-ai/testnet-dispatcher/pkg/server/http"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatcher on its schedule, or once with --once",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := connect(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to %s: %v", cfg.Network.Name, err)
		}
		defer client.Close()

		metrics := collector.NewDispatchMetrics()
		runner, err := newRunner(cfg, client, unit, wallets, metrics)
		if err != nil {
			return err
		}

		if runOnce {
			report := runner.Run(ctx)
			reportJSON, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(reportJSON))
			return nil
		}

		promRegistry := prometheus.NewRegistry()
		metricsUnit, err := resolveMetricsUnit(cfg, units, unit)
		if err != nil {
			return err
		}
		balances, err := collector.NewEVMCollector(cfg.Network.Name, client, units, unit, metricsUnit, addresses(wallets))
		if err != nil {
			return err
		}
		promRegistry.MustRegister(balances, metrics)

		sched, err := scheduler.New(cfg.Schedule.Cron, runner, *cfg.Schedule.RunOnStart)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}

		var server *httpfiber.Server
		if cfg.Global.MetricsAddr != "" {
			server = httpfiber.NewServer(cfg,
				httpfiber.WithRegistry(promRegistry),
				httpfiber.WithReadiness(client.Ping),
				httpfiber.WithStatus(func() any {
					if report := runner.LastReport(); report != nil {
						return report
					}
					return nil
				}))
			go func() {
				if err := server.Run(); err != nil {
					logger.Fatalf("failed to run server: %v", err)
				}
			}()
		}

		<-ctx.Done()
		logger.Infof("Shutting down...")

		if err := sched.Stop(); err != nil {
			logger.Errorf("Failed to stop scheduler: %v", err)
		}
		if server != nil {
			server.Stop()
		}
		logger.Infof("Shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "make a single pass over the wallets and exit")
	rootCmd.AddCommand(runCmd)
}

func newRunner(cfg *config.Schema, client *network.Client, unit *currency.Unit, wallets []*wallet.Wallet, observer scheduler.Observer) (*scheduler.Runner, error) {
	d, err := newDispatcher(cfg, client, unit)
	if err != nil {
		return nil, err
	}

	limiter := pacing.NewLimiter(cfg.Pacing.MaxPerMinute)
	betweenTx, err := pacing.NewPolicy(cfg.Pacing.BetweenTransactions.Min, cfg.Pacing.BetweenTransactions.Max, pacing.WithLimiter(limiter))
	if err != nil {
		return nil, err
	}
	betweenWallets, err := pacing.NewPolicy(cfg.Pacing.BetweenWallets.Min, cfg.Pacing.BetweenWallets.Max)
	if err != nil {
		return nil, err
	}

	min, max := cfg.Dispatch.Amount.Bounds()
	amounts, err := scheduler.NewAmountSampler(min, max, *cfg.Dispatch.Amount.Precision, nil)
	if err != nil {
		return nil, err
	}

	opts := []scheduler.RunnerOption{
		scheduler.WithTxPerWallet(cfg.Dispatch.TxPerWallet.Min, cfg.Dispatch.TxPerWallet.Max),
		scheduler.WithPacing(betweenTx, betweenWallets),
		scheduler.WithObserver(observer),
	}
	if cfg.IsFaucetEnabled() {
		claimer := faucet.NewClient(cfg.Faucet.URL, time.Duration(cfg.Faucet.Timeout)*time.Second, faucet.Options{
			WaitForConfirmation: cfg.Faucet.WaitForConfirmation,
			ConfirmationTimeout: cfg.Faucet.ConfirmationTimeout,
		})
		opts = append(opts, scheduler.WithClaimer(claimer, *cfg.Faucet.Retries))
		logger.Infof("Faucet claims enabled via %s", cfg.Faucet.URL)
	}

	return scheduler.NewRunner(d, wallets, amounts, opts...)
}

func addresses(wallets []*wallet.Wallet) []common.Address {
	out := make([]common.Address, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, w.Address())
	}
	return out
}
