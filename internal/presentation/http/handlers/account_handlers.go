package handlers

import (
	"net/http"
	"strconv"

	"github.com/AtRiskMedia/reportcache-go/internal/application/services"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// AccountHandlers serves a user's usage, history and plan.
type AccountHandlers struct {
	ledger        *services.QuotaLedger
	history       *services.HistoryService
	subscriptions *services.SubscriptionService
	logger        *logging.ChanneledLogger
}

// NewAccountHandlers creates account handlers with injected dependencies
func NewAccountHandlers(ledger *services.QuotaLedger, history *services.HistoryService, subscriptions *services.SubscriptionService, logger *logging.ChanneledLogger) *AccountHandlers {
	return &AccountHandlers{
		ledger:        ledger,
		history:       history,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// Enroll puts a first-time user on the default tier. Existing users keep
// their tier.
func (h *AccountHandlers) Enroll(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	if err := h.subscriptions.EnsureSubscribed(c.Request.Context(), userID, middleware.GetEmail(c)); err != nil {
		h.logger.Auth().Error("Failed to enroll user", "userId", userID, "error", err.Error())
		writeError(c, err)
		return
	}
	tier, err := h.subscriptions.GetTier(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "tier": tier})
}

// GetUsage reports the user's consumption against their tier.
func (h *AccountHandlers) GetUsage(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	usage, err := h.ledger.CurrentUsage(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// GetHistory lists what the user has viewed, newest first.
func (h *AccountHandlers) GetHistory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	items, err := h.history.List(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

// GetPlans lists the tier catalog. It needs no authentication.
func (h *AccountHandlers) GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.subscriptions.Plans()})
}
