package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementIssued()
	m.IncrementIssued()
	m.IncrementRevoked()
	m.IncrementRenewed()
	m.IncrementVerification("valid")
	m.IncrementVerification("revoked")
	m.IncrementVerification("revoked")
	m.IncrementCommitFailure("revoke", "stale_fulfillment")
	m.ObserveReconcile("unknown")
	m.ObserveLedgerCall("commit", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CertificatesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesRevoked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificatesRenewed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verifications.WithLabelValues("revoked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitFailures.WithLabelValues("revoke", "stale_fulfillment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues("unknown")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LedgerLatency))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
