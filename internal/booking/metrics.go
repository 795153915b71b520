package booking

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/queue-token-service/internal/model"
)

// Metrics counts engine outcomes.  A nil *Metrics records nothing.
type Metrics struct {
	allocations *prometheus.CounterVec
	transitions *prometheus.CounterVec
	lockWait    prometheus.Histogram
}

// NewMetrics creates the engine collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "allocations_total",
			Help:      "Token allocation attempts by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "transitions_total",
			Help:      "Token lifecycle transitions by operation and result.",
		}, []string{"op", "result"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queue",
			Name:      "slot_lock_wait_seconds",
			Help:      "Time spent waiting for a slot lock.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.allocations, m.transitions, m.lockWait)
	}
	return m
}

func (m *Metrics) allocation(err error) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) transition(op model.Op, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(op), resultLabel(err)).Inc()
}

func (m *Metrics) observeLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrDuplicateActiveClaim):
		return "duplicate_claim"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
