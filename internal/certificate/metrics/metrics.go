package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for certificate operations.
type Metrics struct {
	CertificatesIssued  prometheus.Counter
	CertificatesRevoked prometheus.Counter
	CertificatesRenewed prometheus.Counter
	Verifications       *prometheus.CounterVec
	CommitFailures      *prometheus.CounterVec
	Reconciles          *prometheus.CounterVec

	// Performance metrics
	LedgerLatency *prometheus.HistogramVec
}

// New registers certificate collectors on reg; nil means the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CertificatesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "certledger_certificates_issued_total",
			Help: "Total number of certificates committed to the ledger",
		}),
		CertificatesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "certledger_certificates_revoked_total",
			Help: "Total number of certificate revocations committed",
		}),
		CertificatesRenewed: factory.NewCounter(prometheus.CounterOpts{
			Name: "certledger_certificates_renewed_total",
			Help: "Total number of certificate renewals committed",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verifications_total",
			Help: "Verification verdicts, labeled by outcome",
		}, []string{"outcome"}),
		CommitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_ledger_commit_failures_total",
			Help: "Failed ledger commits, labeled by operation and domain code",
		}, []string{"operation", "code"}),
		Reconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_ledger_reconciles_total",
			Help: "Outcomes of timed-out commit reconciliation",
		}, []string{"outcome"}),

		LedgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_ledger_call_duration_seconds",
			Help:    "Latency of ledger calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementIssued() {
	m.CertificatesIssued.Inc()
}

func (m *Metrics) IncrementRevoked() {
	m.CertificatesRevoked.Inc()
}

func (m *Metrics) IncrementRenewed() {
	m.CertificatesRenewed.Inc()
}

// IncrementVerification records a verdict; outcome is "valid" or the reason.
func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementCommitFailure(operation, code string) {
	m.CommitFailures.WithLabelValues(operation, code).Inc()
}

// ObserveReconcile implements chain.Recorder.
func (m *Metrics) ObserveReconcile(outcome string) {
	m.Reconciles.WithLabelValues(outcome).Inc()
}

// ObserveLedgerCall implements chain.Recorder.
func (m *Metrics) ObserveLedgerCall(operation string, d time.Duration) {
	m.LedgerLatency.WithLabelValues(operation).Observe(d.Seconds())
}
