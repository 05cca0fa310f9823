package collector

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zama-ai/testnet-dispatcher/pkg/currency"
	"github.com/zama-ai/testnet-dispatcher/pkg/dispatcher"
	"github.com/zama-ai/testnet-dispatcher/pkg/scheduler"
)

// MockModuleCollector implements IModuleCollector for testing
type MockModuleCollector struct {
	CollectAccountBalanceFunc func(ctx context.Context, address common.Address) (*BaseResult, error)
	CloseFunc                 func() error
}

func (m *MockModuleCollector) CollectAccountBalance(ctx context.Context, address common.Address) (*BaseResult, error) {
	if m.CollectAccountBalanceFunc != nil {
		return m.CollectAccountBalanceFunc(ctx, address)
	}
	return nil, nil
}

func (m *MockModuleCollector) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var (
	addrA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	addrB = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func TestBaseCollector_CollectMetrics(t *testing.T) {
	tests := []struct {
		name           string
		failing        map[common.Address]bool
		expectedHealth map[common.Address]float64
	}{
		{
			name:           "successful collection",
			expectedHealth: map[common.Address]float64{addrA: 1, addrB: 1},
		},
		{
			name:           "one wallet failing",
			failing:        map[common.Address]bool{addrB: true},
			expectedHealth: map[common.Address]float64{addrA: 1, addrB: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockProcessor := &MockModuleCollector{
				CollectAccountBalanceFunc: func(ctx context.Context, address common.Address) (*BaseResult, error) {
					if tt.failing[address] {
						return nil, errors.New("rpc down")
					}
					return &BaseResult{NetworkName: "test-net", Address: address, Value: 0.5, Health: 1}, nil
				},
			}

			collector := NewBaseCollector("test-net", currency.DefaultSTT, []common.Address{addrA, addrB}, mockProcessor, WithCollectorTimeout(time.Second))
			results := collector.collectMetrics()
			require.Len(t, results, 2)

			sort.Slice(results, func(i, j int) bool {
				return results[i].Address.Hex() < results[j].Address.Hex()
			})
			for _, result := range results {
				assert.Equal(t, tt.expectedHealth[result.Address], result.Health, result.Address.Hex())
			}
		})
	}
}

func TestBaseCollector_Collect(t *testing.T) {
	mockProcessor := &MockModuleCollector{
		CollectAccountBalanceFunc: func(ctx context.Context, address common.Address) (*BaseResult, error) {
			if address == addrB {
				return nil, errors.New("rpc down")
			}
			return &BaseResult{NetworkName: "test-net", Address: address, Value: 0.25, Health: 1}, nil
		},
	}
	collector := NewBaseCollector("test-net", currency.DefaultSTT, []common.Address{addrA, addrB}, mockProcessor)

	expected := `
# HELP testnet_wallet_balance Balance of dispatcher wallets in display units
# TYPE testnet_wallet_balance gauge
testnet_wallet_balance{address="` + addrA.Hex() + `",network="test-net",unit="STT"} 0.25
# HELP testnet_wallet_health 1 when the last balance read succeeded, 0 otherwise
# TYPE testnet_wallet_health gauge
testnet_wallet_health{address="` + addrA.Hex() + `",network="test-net"} 1
testnet_wallet_health{address="` + addrB.Hex() + `",network="test-net"} 0
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected))
	assert.NoError(t, err)
}

func TestBaseCollector_Timeout(t *testing.T) {
	mockProcessor := &MockModuleCollector{
		CollectAccountBalanceFunc: func(ctx context.Context, address common.Address) (*BaseResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	collector := NewBaseCollector("test-net", currency.DefaultSTT, []common.Address{addrA}, mockProcessor, WithCollectorTimeout(time.Millisecond))

	results := collector.collectMetrics()
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Health)
}

func TestDispatchMetrics(t *testing.T) {
	m := NewDispatchMetrics()

	m.ObserveDispatch(&dispatcher.Submission{Amount: decimal.RequireFromString("0.02")}, nil)
	m.ObserveDispatch(&dispatcher.Submission{Amount: decimal.RequireFromString("0.05")}, nil)
	m.ObserveDispatch(nil, dispatcher.ErrInsufficientFunds)
	m.ObserveDispatch(nil, errors.New("nonce too low"))
	m.ObserveClaim(addrA.Hex(), nil)
	m.ObserveClaim(addrB.Hex(), errors.New("not claimable"))

	finished := time.Unix(1_700_000_000, 0)
	m.ObserveRun(scheduler.RunReport{StartedAt: finished.Add(-time.Minute), Duration: time.Minute})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.claims.WithLabelValues("failed")))
	assert.InDelta(t, 0.07, testutil.ToFloat64(m.value), 1e-9)
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastRun))
}
