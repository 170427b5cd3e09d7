package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for orchestrated transfers.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

type Metrics struct {
	Orchestrations  *prometheus.CounterVec
	Registrations   *prometheus.CounterVec
	Transfers       prometheus.Counter
	ExecutorQueue   prometheus.Gauge
	PendingReceipts prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Orchestrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "token_orchestrations_total",
			Help: "Transfer-and-register workflows by settlement outcome",
		}, []string{"outcome"}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "token_registrations_total",
			Help: "Storage registrations by result",
		}, []string{"result"}),
		Transfers: factory.NewCounter(prometheus.CounterOpts{
			Name: "token_transfers_total",
			Help: "Completed standard transfers",
		}),
		ExecutorQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "token_executor_queue_depth",
			Help: "Messages waiting in the executor mailbox",
		}),
		PendingReceipts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "token_pending_receipts",
			Help: "Outbound calls whose callback has not run yet",
		}),
	}
}

func (m *Metrics) ObserveOrchestration(outcome string) {
	if m == nil {
		return
	}
	m.Orchestrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementTransfers() {
	if m == nil {
		return
	}
	m.Transfers.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.ExecutorQueue.Set(float64(n))
}

func (m *Metrics) AddPendingReceipts(delta int) {
	if m == nil {
		return
	}
	m.PendingReceipts.Add(float64(delta))
}
