package scheduler

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zama-ai/testnet-dispatcher/pkg/dispatcher"
	"github.com/zama-ai/testnet-dispatcher/pkg/faucet"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"github.com/zama-ai/testnet-dispatcher/pkg/pacing"
	"github.com/zama-ai/testnet-dispatcher/pkg/wallet"
)

// Dispatcher sends one transfer; satisfied by *dispatcher.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, key *ecdsa.PrivateKey, amount decimal.Decimal) (*dispatcher.Submission, error)
}

// Observer receives run events, typically to update metrics.
type Observer interface {
	ObserveClaim(address string, err error)
	ObserveDispatch(sub *dispatcher.Submission, err error)
	ObserveRun(report RunReport)
}

// RunReport summarizes one pass over the wallets.
type RunReport struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Wallets      int           `json:"wallets"`
	ClaimsOK     int           `json:"claims_ok"`
	ClaimsFailed int           `json:"claims_failed"`
	Dispatched   int           `json:"dispatched"`
	Failed       int           `json:"failed"`
	Cancelled    bool          `json:"cancelled"`
}

// AmountSampler draws amounts uniformly from [Min, Max], rounded to Precision decimals.
type AmountSampler struct {
	Min       decimal.Decimal
	Max       decimal.Decimal
	Precision int32

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAmountSampler(min, max decimal.Decimal, precision int32, rnd *rand.Rand) (*AmountSampler, error) {
	if min.Sign() <= 0 || max.LessThan(min) {
		return nil, fmt.Errorf("invalid amount range [%s, %s]", min, max)
	}
	if precision < 0 {
		return nil, fmt.Errorf("invalid amount precision %d", precision)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &AmountSampler{Min: min, Max: max, Precision: precision, rnd: rnd}, nil
}

// Sample returns an amount within [Min, Max]. Rounding never leaves the
// range: a rounded value outside it is clamped to the nearest bound.
func (s *AmountSampler) Sample() decimal.Decimal {
	s.mu.Lock()
	u := s.rnd.Float64()
	s.mu.Unlock()

	amount := s.Min.Add(s.Max.Sub(s.Min).Mul(decimal.NewFromFloat(u))).Round(s.Precision)
	if amount.LessThan(s.Min) {
		return s.Min
	}
	if amount.GreaterThan(s.Max) {
		return s.Max
	}
	return amount
}

// Runner walks the wallets in order: optional faucet claim, then a random
// number of dispatches, pacing between operations.
type Runner struct {
	dispatcher     Dispatcher
	claimer        faucet.Claimer
	claimRetries   int
	wallets        []*wallet.Wallet
	amounts        *AmountSampler
	txMin, txMax   int
	betweenTx      *pacing.Policy
	betweenWallets *pacing.Policy
	observer       Observer

	rndMu sync.Mutex
	rnd   *rand.Rand

	reportMu sync.RWMutex
	last     *RunReport
}

type RunnerOption func(*Runner)

// WithClaimer claims from the faucet before each wallet's dispatches.
func WithClaimer(claimer faucet.Claimer, retries int) RunnerOption {
	return func(r *Runner) {
		r.claimer = claimer
		r.claimRetries = retries
	}
}

func WithTxPerWallet(min, max int) RunnerOption {
	return func(r *Runner) {
		r.txMin, r.txMax = min, max
	}
}

func WithPacing(betweenTx, betweenWallets *pacing.Policy) RunnerOption {
	return func(r *Runner) {
		r.betweenTx = betweenTx
		r.betweenWallets = betweenWallets
	}
}

func WithObserver(observer Observer) RunnerOption {
	return func(r *Runner) {
		r.observer = observer
	}
}

func WithRand(rnd *rand.Rand) RunnerOption {
	return func(r *Runner) {
		r.rnd = rnd
	}
}

func NewRunner(d Dispatcher, wallets []*wallet.Wallet, amounts *AmountSampler, opts ...RunnerOption) (*Runner, error) {
	if d == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	if len(wallets) == 0 {
		return nil, wallet.ErrNoWallets
	}
	if amounts == nil {
		return nil, errors.New("amount sampler cannot be nil")
	}

	r := &Runner{
		dispatcher: d,
		wallets:    wallets,
		amounts:    amounts,
		txMin:      1,
		txMax:      2,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.txMin < 1 || r.txMax < r.txMin {
		return nil, fmt.Errorf("invalid transactions per wallet range [%d, %d]", r.txMin, r.txMax)
	}
	if r.rnd == nil {
		r.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r, nil
}

// Run makes one pass over all wallets. Failures are logged and counted and
// never abort the pass; ctx cancellation stops it between operations.
func (r *Runner) Run(ctx context.Context) RunReport {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger.Infof("[run %s] Starting run over %d wallets", report.RunID, len(r.wallets))

	for i, w := range r.wallets {
		if ctx.Err() != nil {
			break
		}
		report.Wallets++
		r.processWallet(ctx, report.RunID, w, &report)

		if i < len(r.wallets)-1 {
			if err := r.betweenWallets.Wait(ctx); err != nil {
				break
			}
		}
	}

	report.Cancelled = ctx.Err() != nil
	report.Duration = time.Since(report.StartedAt)
	logger.Infof("[run %s] Run finished in %v: %d wallets, %d dispatched, %d failed, %d claims ok, %d claims failed",
		report.RunID, report.Duration, report.Wallets, report.Dispatched, report.Failed, report.ClaimsOK, report.ClaimsFailed)

	r.reportMu.Lock()
	last := report
	r.last = &last
	r.reportMu.Unlock()

	if r.observer != nil {
		r.observer.ObserveRun(report)
	}
	return report
}

func (r *Runner) processWallet(ctx context.Context, runID string, w *wallet.Wallet, report *RunReport) {
	address := w.Address().Hex()

	if r.claimer != nil {
		_, err := r.claimer.ClaimWithRetry(ctx, address, r.claimRetries)
		if err != nil {
			report.ClaimsFailed++
			logger.Warnf("[run %s] Faucet claim failed for %s: %v", runID, address, err)
		} else {
			report.ClaimsOK++
		}
		if r.observer != nil {
			r.observer.ObserveClaim(address, err)
		}
		if ctx.Err() != nil {
			return
		}
	}

	count := r.txCount()
	for j := 0; j < count; j++ {
		amount := r.amounts.Sample()
		sub, err := r.dispatcher.Dispatch(ctx, w.Key(), amount)
		if err != nil {
			report.Failed++
			logger.Errorf("[run %s] Failed to send %s from %s: %v", runID, amount, address, err)
		} else {
			report.Dispatched++
			logger.Infof("[run %s] Sent %s from %s to %s, tx: %s", runID, amount, address, sub.To.Hex(), sub.Hash.Hex())
		}
		if r.observer != nil {
			r.observer.ObserveDispatch(sub, err)
		}

		if err := r.betweenTx.Wait(ctx); err != nil {
			return
		}
	}
}

func (r *Runner) txCount() int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.txMin + r.rnd.IntN(r.txMax-r.txMin+1)
}

// LastReport returns the most recent finished run, or nil before the first.
func (r *Runner) LastReport() *RunReport {
	r.reportMu.RLock()
	defer r.reportMu.RUnlock()
	if r.last == nil {
		return nil
	}
	last := *r.last
	return &last
}
