// Package handlers provides HTTP handlers for the presentation layer.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// statusClientClosedRequest is logged when the caller hung up first.
const statusClientClosedRequest = 499

// bindingMessage tells a missing field apart from a body that is not valid
// JSON for the request at all.
func bindingMessage(err error, missing string) string {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) {
		return missing
	}
	return "Invalid request body"
}

// resultResponse renders a resolution result.
func resultResponse(result *research.Result, thresholdDays int) gin.H {
	return gin.H{
		"key":                result.Key,
		"content":            result.Content,
		"metadata":           result.Metadata,
		"provenance":         result.Provenance,
		"reason":             result.Reason,
		"generatedAt":        result.GeneratedAt,
		"ageDays":            result.AgeDays,
		"generationSequence": result.GenerationSequence,
		"canRegenerate":      result.CanRegenerate,
		"generatedNew":       result.GeneratedNew(),
		"isOutdated":         result.AgeDays > thresholdDays,
		"joined":             result.Joined,
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, research.ErrUnknownUser):
		return http.StatusForbidden
	case errors.Is(err, research.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, research.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, research.ErrGenerationFailed):
		if kind, _ := research.FailureKindOf(err); kind == research.FailureTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	}
	return http.StatusInternalServerError
}

// messageFor keeps internal details out of 5xx bodies.
func messageFor(err error, status int) string {
	switch {
	case errors.Is(err, research.ErrUnknownUser):
		return "No subscription found for this account"
	case errors.Is(err, research.ErrNotFound):
		return "No cached report found"
	case errors.Is(err, research.ErrQuotaExceeded):
		return research.QuotaLimitMessage
	case errors.Is(err, research.ErrGenerationFailed):
		if status == http.StatusGatewayTimeout {
			return "Report generation timed out, please try again"
		}
		return "Report generation failed, please try again"
	case status == http.StatusInternalServerError:
		return "Internal server error"
	}
	return err.Error()
}

// writeResolution answers a resolve call, including the quota fallback.
func writeResolution(c *gin.Context, result *research.Result, err error, thresholdDays int) {
	if err == nil {
		c.JSON(http.StatusOK, resultResponse(result, thresholdDays))
		return
	}

	var exceeded *research.QuotaExceededError
	if errors.As(err, &exceeded) {
		if exceeded.Fallback != nil {
			body := resultResponse(exceeded.Fallback, thresholdDays)
			body["quotaExceeded"] = true
			body["usage"] = exceeded.Usage
			body["message"] = research.QuotaLimitMessage
			c.JSON(http.StatusOK, body)
			return
		}
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": research.QuotaLimitMessage,
			"usage": exceeded.Usage,
		})
		return
	}

	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == statusClientClosedRequest {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": messageFor(err, status)})
}
