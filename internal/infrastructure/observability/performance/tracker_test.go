package performance

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsCompletedMarkers(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(nil, nil)

	ok := tracker.StartOperation("resolve:report", "user-1")
	ok.AddMetadata("reason", "Fresh")
	ok.Complete()
	ok.Complete()

	failed := tracker.StartOperation("resolve:report", "user-2")
	failed.SetError(errors.New("boom"))
	failed.Complete()

	pending := tracker.StartOperation("resolve:report", "user-3")
	_ = pending

	recent := tracker.GetRecentMetrics(time.Minute)
	require.Len(t, recent, 2)
	assert.Equal(t, "Fresh", recent[0].Metadata["reason"])
	assert.False(t, recent[1].Success)

	stats := tracker.GetOverallStats()
	assert.Equal(t, 2, stats["completedOperations"])
	assert.Equal(t, 1, stats["failedOperations"])
}

func TestTrackerRaisesGenerationAlert(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	config := logging.DefaultLoggerConfig()
	config.Console = &out
	logger, err := logging.NewChanneledLogger(config)
	require.NoError(t, err)

	tracker := NewTracker(nil, logger)
	tracker.thresholds.GenerationThreshold = time.Nanosecond

	marker := tracker.StartOperation("generation:fallback", "system")
	time.Sleep(time.Millisecond)
	marker.Complete()

	alerts := tracker.GetAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].Severity)
	assert.Equal(t, "generation:fallback", alerts[0].Operation)

	assert.Contains(t, out.String(), `"channel":"alert"`)
	assert.Contains(t, out.String(), "Generation exceeded threshold")
}
