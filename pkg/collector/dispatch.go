package collector

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zama-ai/testnet-dispatcher/pkg/dispatcher"
	"github.com/zama-ai/testnet-dispatcher/pkg/scheduler"
)

// DispatchMetrics counts dispatches, faucet claims and runs. It implements
// scheduler.Observer.
type DispatchMetrics struct {
	dispatches *prometheus.CounterVec
	claims     *prometheus.CounterVec
	value      prometheus.Counter
	lastRun    prometheus.Gauge
}

var _ scheduler.Observer = (*DispatchMetrics)(nil)

func NewDispatchMetrics() *DispatchMetrics {
	return &DispatchMetrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_total",
			Help:      "Dispatched transactions by outcome",
		}, []string{"status"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "faucet_claims_total",
			Help:      "Faucet claims by outcome",
		}, []string{"status"}),
		value: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_value_native_total",
			Help:      "Total value of broadcast transactions in display units",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_last_timestamp_seconds",
			Help:      "Unix time at which the last run finished",
		}),
	}
}

func (m *DispatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dispatches.Describe(ch)
	m.claims.Describe(ch)
	m.value.Describe(ch)
	m.lastRun.Describe(ch)
}

func (m *DispatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dispatches.Collect(ch)
	m.claims.Collect(ch)
	m.value.Collect(ch)
	m.lastRun.Collect(ch)
}

func (m *DispatchMetrics) ObserveClaim(address string, err error) {
	m.claims.WithLabelValues(outcome(err)).Inc()
}

func (m *DispatchMetrics) ObserveDispatch(sub *dispatcher.Submission, err error) {
	if errors.Is(err, dispatcher.ErrInsufficientFunds) {
		m.dispatches.WithLabelValues("insufficient_funds").Inc()
		return
	}
	m.dispatches.WithLabelValues(outcome(err)).Inc()
	if err == nil && sub != nil {
		m.value.Add(sub.Amount.InexactFloat64())
	}
}

func (m *DispatchMetrics) ObserveRun(report scheduler.RunReport) {
	m.lastRun.Set(float64(report.StartedAt.Add(report.Duration).Unix()))
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
