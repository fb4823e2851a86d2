package posting

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermes-erp/hermes/internal/accounting"
)

// Posting outcomes recorded by Metrics.
const (
	OutcomePosted       = "posted"
	OutcomeUnconfigured = "unconfigured"
	OutcomeMissingCost  = "missing_cost"
	OutcomeFailed       = "failed"
)

// Metrics counts posting attempts per module and outcome.
type Metrics struct {
	postings *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the posting counter against registerer, or the default
// Prometheus registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_postings_total",
		Help: "Journal postings derived from business documents, by module and outcome.",
	}, []string{"module", "outcome"})
	registerer.MustRegister(postings)
	return &Metrics{postings: postings}
}

// Observe records the outcome of a posting attempt.
func (m *Metrics) Observe(module string, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(module, Outcome(err)).Inc()
}

// Outcome classifies a posting error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomePosted
	case errors.Is(err, accounting.ErrConfiguration):
		return OutcomeUnconfigured
	case errors.Is(err, accounting.ErrMissingCost):
		return OutcomeMissingCost
	default:
		return OutcomeFailed
	}
}
