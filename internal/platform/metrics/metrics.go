package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the claim gate.
type Metrics struct {
	ClaimsIssued    *prometheus.CounterVec
	ClaimsExchanged *prometheus.CounterVec
	RateLimited     *prometheus.CounterVec
	EmailChanges    prometheus.Counter
	ClaimResends    prometheus.Counter
}

// New creates and registers all Prometheus metrics on reg. Pass a dedicated
// registry in tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClaimsIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_gate_claims_issued_total",
			Help: "Claim requests admitted through the gate, by admission source",
		}, []string{"source"}),
		ClaimsExchanged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_gate_claims_exchanged_total",
			Help: "Exchange attempts, by outcome (claimed, conflict, expired, mismatch)",
		}, []string{"outcome"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_gate_rate_limited_total",
			Help: "Requests rejected by the admission limiter, by flow",
		}, []string{"flow"}),
		EmailChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "claim_gate_email_changes_total",
			Help: "Completed email-change confirmations",
		}),
		ClaimResends: factory.NewCounter(prometheus.CounterOpts{
			Name: "claim_gate_claim_resends_total",
			Help: "Claim tokens re-issued on an already-sent request",
		}),
	}
}

func (m *Metrics) IncrementClaimsIssued(source string) {
	m.ClaimsIssued.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementClaimsExchanged(outcome string) {
	m.ClaimsExchanged.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRateLimited(flow string) {
	m.RateLimited.WithLabelValues(flow).Inc()
}
