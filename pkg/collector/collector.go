package collector

import (
	"context"
	"sync"
	"time"

	"github.com/carlmjohnson/flowmatic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
)

const (
	DefaultMaxConcurrency = 10
	Namespace             = "testnet"
)

type BaseResult struct {
	NetworkName string
	Address     common.Address
	Value       float64
	Health      float64
}

// BaseCollector exposes wallet balance and health gauges, reading all
// wallets concurrently on every scrape.
type BaseCollector struct {
	networkName  string
	metrics      *prometheus.GaugeVec
	health       *prometheus.GaugeVec
	processor    IModuleCollector
	timeout      time.Duration
	concurrency  int
	unit         *currency.Unit
	addresses    []common.Address
	collectMutex sync.Mutex
}

// CollectorOption defines functional options for BaseCollector
type CollectorOption func(*BaseCollector)

// WithCollectorTimeout sets the timeout for collection operations
func WithCollectorTimeout(timeout time.Duration) CollectorOption {
	return func(c *BaseCollector) {
		c.timeout = timeout
	}
}

func WithMaxConcurrency(n int) CollectorOption {
	return func(c *BaseCollector) {
		c.concurrency = n
	}
}

// IModuleCollector reads a single wallet balance.
type IModuleCollector interface {
	CollectAccountBalance(ctx context.Context, address common.Address) (*BaseResult, error)
	Close() error
}

func NewBaseCollector(networkName string, unit *currency.Unit, addresses []common.Address, processor IModuleCollector, opts ...CollectorOption) *BaseCollector {
	constLabels := prometheus.Labels{"network": networkName}
	balanceLabels := prometheus.Labels{"network": networkName, "unit": unit.Symbol}

	collector := &BaseCollector{
		networkName: networkName,
		processor:   processor,
		timeout:     10 * time.Second,
		concurrency: DefaultMaxConcurrency,
		unit:        unit,
		addresses:   addresses,
		metrics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   Namespace,
				Name:        "wallet_balance",
				Help:        "Balance of dispatcher wallets in display units",
				ConstLabels: balanceLabels,
			},
			[]string{"address"},
		),
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   Namespace,
				Name:        "wallet_health",
				Help:        "1 when the last balance read succeeded, 0 otherwise",
				ConstLabels: constLabels,
			},
			[]string{"address"},
		),
	}

	for _, opt := range opts {
		opt(collector)
	}
	if collector.concurrency <= 0 {
		collector.concurrency = DefaultMaxConcurrency
	}
	return collector
}

func (c *BaseCollector) collectMetrics() []*BaseResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resultsChan := make(chan *BaseResult, len(c.addresses))

	err := flowmatic.Each(c.concurrency, c.addresses, func(address common.Address) error {
		result, err := c.processor.CollectAccountBalance(ctx, address)
		if err != nil {
			logger.Errorf("error collecting balance for %s: %v", address.Hex(), err)
			result = &BaseResult{
				NetworkName: c.networkName,
				Address:     address,
				Health:      0,
			}
		}
		resultsChan <- result
		return nil
	})
	if err != nil {
		logger.Errorf("error in collection process: %v", err)
	}

	close(resultsChan)
	results := make([]*BaseResult, 0, len(c.addresses))
	for result := range resultsChan {
		results = append(results, result)
	}
	return results
}

func (c *BaseCollector) Describe(ch chan<- *prometheus.Desc) {
	c.metrics.Describe(ch)
	c.health.Describe(ch)
}

func (c *BaseCollector) Collect(ch chan<- prometheus.Metric) {
	c.collectMutex.Lock()
	defer c.collectMutex.Unlock()
	logger.Debugf("collecting balances of %d wallets on %s", len(c.addresses), c.networkName)

	c.metrics.Reset()
	c.health.Reset()
	for _, result := range c.collectMetrics() {
		labels := prometheus.Labels{"address": result.Address.Hex()}
		c.health.With(labels).Set(result.Health)
		if result.Health > 0 {
			c.metrics.With(labels).Set(result.Value)
		}
	}
	c.health.Collect(ch)
	c.metrics.Collect(ch)
}

func (c *BaseCollector) Close() error {
	return c.processor.Close()
}
