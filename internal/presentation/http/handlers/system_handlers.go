package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/caching/flight"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SystemHandlers serves health and metrics.
type SystemHandlers struct {
	db       *database.DB
	guard    *flight.Guard
	registry *prometheus.Registry
	started  time.Time
}

// NewSystemHandlers creates system handlers with injected dependencies
func NewSystemHandlers(db *database.DB, guard *flight.Guard, registry *prometheus.Registry) *SystemHandlers {
	return &SystemHandlers{
		db:       db,
		guard:    guard,
		registry: registry,
		started:  time.Now(),
	}
}

// Health reports whether the database answers.
func (h *SystemHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"uptime":            time.Since(h.started).Round(time.Second).String(),
		"driver":            h.db.Driver,
		"flightsInProgress": h.guard.InFlight(),
	})
}

// Metrics exposes the Prometheus registry.
func (h *SystemHandlers) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
}
