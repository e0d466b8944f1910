package uas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ghettovoice/gosip/sip"
)

// Metrics exports the engine's operational counters to Prometheus. Build it
// with [NewMetrics]; a nil *Metrics records nothing.
type Metrics struct {
	transactionsTotal   *prometheus.CounterVec
	transactionsActive  prometheus.Gauge
	stateTransitions    *prometheus.CounterVec
	callsActive         prometheus.Gauge
	loopsDetected       prometheus.Counter
	moduleDispatchTotal *prometheus.CounterVec
	callbackDuration    *prometheus.HistogramVec
}

// NewMetrics registers every uas collector under namespace "sip",
// subsystem "uas", with the given registerer (pass prometheus.DefaultRegisterer
// for the global registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip", Subsystem: "uas", Name: "transactions_total",
			Help: "Server transactions created, by method.",
		}, []string{"method"}),
		transactionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sip", Subsystem: "uas", Name: "transactions_active",
			Help: "Server transactions currently live.",
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip", Subsystem: "uas", Name: "transaction_transitions_total",
			Help: "Server transaction FSM transitions, by type and resulting state.",
		}, []string{"type", "state"}),
		callsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sip", Subsystem: "uas", Name: "calls_active",
			Help: "Calls (dialogs) currently confirmed or early.",
		}),
		loopsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sip", Subsystem: "uas", Name: "loops_detected_total",
			Help: "Requests answered 482 Loop Detected.",
		}),
		moduleDispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sip", Subsystem: "uas", Name: "module_dispatch_total",
			Help: "Requests dispatched to an application module, by module and outcome.",
		}, []string{"module", "outcome"}),
		callbackDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sip", Subsystem: "uas", Name: "callback_duration_seconds",
			Help:    "Application callback latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"module"}),
	}
}

func (m *Metrics) observeNewTransaction(method sip.Method) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(method.String()).Inc()
	m.transactionsActive.Inc()
}

func (m *Metrics) observeTransition(typ sip.TransactionType, to sip.TransactionState) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(typ.String(), to.String()).Inc()
	if to == sip.TransactionStateTerminated {
		m.transactionsActive.Dec()
	}
}

func (m *Metrics) observeLoopDetected() {
	if m == nil {
		return
	}
	m.loopsDetected.Inc()
}

func (m *Metrics) observeDispatch(module, outcome string) {
	if m == nil {
		return
	}
	m.moduleDispatchTotal.WithLabelValues(module, outcome).Inc()
}

func (m *Metrics) setCallsActive(n int) {
	if m == nil {
		return
	}
	m.callsActive.Set(float64(n))
}
