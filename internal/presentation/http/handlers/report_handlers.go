package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/application/services"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/reportcache-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

const defaultExchange = "NSE"

// GenerateReportRequest asks for a single-stock report.
type GenerateReportRequest struct {
	Symbol          string `json:"symbol" binding:"required"`
	Exchange        string `json:"exchange"`
	Language        string `json:"language"`
	ForceRegenerate bool   `json:"forceRegenerate"`
}

// CompareRequest asks for a two-stock comparison.
type CompareRequest struct {
	StockA          string `json:"stockA" binding:"required"`
	ExchangeA       string `json:"exchangeA"`
	StockB          string `json:"stockB" binding:"required"`
	ExchangeB       string `json:"exchangeB"`
	Language        string `json:"language"`
	ForceRegenerate bool   `json:"forceRegenerate"`
}

// ReportHandlers serves report generation and lookup.
type ReportHandlers struct {
	coordinator   *services.Coordinator
	thresholdDays int
	logger        *logging.ChanneledLogger
	perfTracker   *performance.Tracker
}

// NewReportHandlers creates report handlers with injected dependencies
func NewReportHandlers(coordinator *services.Coordinator, thresholdDays int, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ReportHandlers {
	return &ReportHandlers{
		coordinator:   coordinator,
		thresholdDays: thresholdDays,
		logger:        logger,
		perfTracker:   perfTracker,
	}
}

func exchangeOrDefault(exchange string) string {
	if exchange == "" {
		return defaultExchange
	}
	return exchange
}

// GenerateReport resolves a report, generating it when needed.
func (h *ReportHandlers) GenerateReport(c *gin.Context) {
	start := time.Now()
	userID, _ := middleware.GetUserID(c)

	var req GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err, "symbol is required")})
		return
	}

	marker := h.perfTracker.StartOperation("generate_report_request", userID)
	defer marker.Complete()

	key, err := research.NewReportKey(research.SubjectFor(exchangeOrDefault(req.Exchange), req.Symbol), req.Language)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.coordinator.Resolve(c.Request.Context(), services.ResolveRequest{
		UserID:          userID,
		Key:             key,
		ForceRegenerate: req.ForceRegenerate,
	})
	if err != nil {
		marker.SetError(err)
		h.logger.Cache().Warn("Report request failed", "key", key.String(), "userId", userID, "error", err.Error(), "duration", time.Since(start))
	}
	writeResolution(c, result, err, h.thresholdDays)
}

// CompareReports resolves a comparison of two stocks.
func (h *ReportHandlers) CompareReports(c *gin.Context) {
	start := time.Now()
	userID, _ := middleware.GetUserID(c)

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err, "stockA and stockB are required")})
		return
	}

	marker := h.perfTracker.StartOperation("compare_reports_request", userID)
	defer marker.Complete()

	key, err := research.NewComparisonKey(
		research.SubjectFor(exchangeOrDefault(req.ExchangeA), req.StockA),
		research.SubjectFor(exchangeOrDefault(req.ExchangeB), req.StockB),
		req.Language,
	)
	if err != nil {
		marker.SetError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.coordinator.Resolve(c.Request.Context(), services.ResolveRequest{
		UserID:          userID,
		Key:             key,
		ForceRegenerate: req.ForceRegenerate,
	})
	if err != nil {
		marker.SetError(err)
		h.logger.Cache().Warn("Comparison request failed", "key", key.String(), "userId", userID, "error", err.Error(), "duration", time.Since(start))
	}
	writeResolution(c, result, err, h.thresholdDays)
}

// GetCachedReport returns a cached report without generating.
func (h *ReportHandlers) GetCachedReport(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	key, err := research.NewReportKey(research.SubjectFor(c.Param("exchange"), c.Param("symbol")), c.Query("language"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.coordinator.Lookup(c.Request.Context(), userID, key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse(result, h.thresholdDays))
}
