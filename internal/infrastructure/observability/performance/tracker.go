package performance

import (
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
)

// Tracker keeps recent markers and raises alerts when operations run past
// their thresholds.
type Tracker struct {
	markers    []*Marker
	alerts     []*PerformanceAlert
	thresholds *AlertThresholds
	config     *TrackerConfig
	logger     *logging.ChanneledLogger
	started    time.Time
	mu         sync.RWMutex
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers   int  `json:"maxMarkers"`
	MaxAlerts    int  `json:"maxAlerts"`
	EnableAlerts bool `json:"enableAlerts"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:   5000,
		MaxAlerts:    500,
		EnableAlerts: true,
	}
}

// AlertThresholds defines performance thresholds for generating alerts
type AlertThresholds struct {
	SlowResponseThreshold     time.Duration `json:"slowResponseThreshold"`
	CriticalResponseThreshold time.Duration `json:"criticalResponseThreshold"`
	GenerationThreshold       time.Duration `json:"generationThreshold"`
	DatabaseQueryThreshold    time.Duration `json:"databaseQueryThreshold"`
}

// DefaultAlertThresholds returns sensible default alert thresholds
func DefaultAlertThresholds() *AlertThresholds {
	return &AlertThresholds{
		SlowResponseThreshold:     time.Second * 2,
		CriticalResponseThreshold: time.Second * 5,
		GenerationThreshold:       time.Second * 45,
		DatabaseQueryThreshold:    time.Millisecond * 50,
	}
}

// NewTracker creates a new performance tracker with the given configuration.
// Completed operations go to the performance channel and threshold
// violations to the alert channel; logger may be nil.
func NewTracker(config *TrackerConfig, logger *logging.ChanneledLogger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		thresholds: DefaultAlertThresholds(),
		config:     config,
		logger:     logger,
		started:    time.Now(),
	}
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, scope string) *Marker {
	return &Marker{
		Operation: operation,
		Scope:     scope,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true,
		tracker:   t,
	}
}

// record stores a snapshot of a completed marker and evaluates it against
// the alert thresholds. Markers are owned by one goroutine until completed,
// so the tracker only ever holds copies.
func (t *Tracker) record(marker *Marker) {
	snapshot := *marker
	snapshot.tracker = nil
	snapshot.Metadata = make(map[string]any, len(marker.Metadata))
	for k, v := range marker.Metadata {
		snapshot.Metadata[k] = v
	}

	var alerts []*PerformanceAlert
	if t.config.EnableAlerts {
		alerts = t.evaluateThresholds(&snapshot)
	}

	if t.logger != nil {
		t.logger.Perf().Debug("Operation completed", "operation", snapshot.Operation, "scope", snapshot.Scope,
			"duration", snapshot.Duration, "success", snapshot.Success)
		for _, alert := range alerts {
			t.logger.Alert().Warn(alert.Message, "operation", alert.Operation, "severity", alert.Severity,
				"threshold", alert.Threshold, "actual", alert.Actual)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.markers = append(t.markers, &snapshot)
	if len(t.markers) > t.config.MaxMarkers {
		t.markers = t.markers[len(t.markers)-t.config.MaxMarkers:]
	}
	t.alerts = append(t.alerts, alerts...)
	if len(t.alerts) > t.config.MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
	}
}

func (t *Tracker) evaluateThresholds(marker *Marker) []*PerformanceAlert {
	var alerts []*PerformanceAlert

	switch {
	case strings.HasPrefix(marker.Operation, "generation"):
		if marker.Duration > t.thresholds.GenerationThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.GenerationThreshold,
				"Generation exceeded threshold"))
		}
		return alerts
	case strings.HasPrefix(marker.Operation, "db"):
		if marker.Duration > t.thresholds.DatabaseQueryThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.DatabaseQueryThreshold,
				"Database operation exceeded threshold"))
		}
		return alerts
	}

	if marker.Duration > t.thresholds.CriticalResponseThreshold {
		alerts = append(alerts, t.createAlert(marker, AlertCritical, t.thresholds.CriticalResponseThreshold,
			"Operation exceeded critical response time threshold"))
	} else if marker.Duration > t.thresholds.SlowResponseThreshold {
		alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.SlowResponseThreshold,
			"Operation exceeded slow response time threshold"))
	}
	return alerts
}

func (t *Tracker) createAlert(marker *Marker, severity AlertSeverity, threshold time.Duration, message string) *PerformanceAlert {
	return &PerformanceAlert{
		Timestamp: time.Now(),
		Scope:     marker.Scope,
		Severity:  severity,
		Operation: marker.Operation,
		Threshold: threshold,
		Actual:    marker.Duration,
		Message:   message,
	}
}

// GetRecentMetrics returns completed markers started within the window.
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	cutoff := time.Now().Add(-within)

	t.mu.RLock()
	defer t.mu.RUnlock()

	var recent []Marker
	for _, marker := range t.markers {
		if marker.StartTime.After(cutoff) {
			recent = append(recent, *marker)
		}
	}
	return recent
}

// GetAlerts returns a copy of the retained alerts.
func (t *Tracker) GetAlerts() []*PerformanceAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*PerformanceAlert(nil), t.alerts...)
}

// GetOverallStats summarizes the retained markers.
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var completed, failed int
	var total time.Duration
	for _, marker := range t.markers {
		completed++
		total += marker.Duration
		if !marker.Success {
			failed++
		}
	}

	var average time.Duration
	if completed > 0 {
		average = total / time.Duration(completed)
	}

	return map[string]any{
		"uptime":              time.Since(t.started).String(),
		"completedOperations": completed,
		"failedOperations":    failed,
		"averageDuration":     average.String(),
		"alerts":              len(t.alerts),
	}
}
