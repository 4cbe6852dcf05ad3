package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.RecordResolution("report", "Fresh", "Fresh")
	m.RecordResolution("report", "Fresh", "Fresh")
	m.RecordGeneration("gemini", OutcomeGenerated, 3*time.Second)
	m.RecordGeneration("gemini", "Timeout", 120*time.Second)
	m.RecordQuotaDenied("free")
	m.RecordQuotaRefund()
	m.RecordRefundFailure()
	m.RecordJoin()

	assert.Equal(t, 2.0, promtest.ToFloat64(m.resolutions.WithLabelValues("report", "Fresh", "Fresh")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.generations.WithLabelValues("gemini", "Timeout")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.quotaDenials.WithLabelValues("free")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.quotaRefunds))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.refundFailures))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.joins))

	count, err := promtest.GatherAndCount(reg, "reportcache_generation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewMetricsWithoutRegistry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.RecordJoin()
	assert.Equal(t, 1.0, promtest.ToFloat64(m.joins))
}
