package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid key", fmt.Errorf("%w: subject", research.ErrInvalidKey), http.StatusBadRequest},
		{"unknown user", fmt.Errorf("failed to resolve tier: %w", research.ErrUnknownUser), http.StatusForbidden},
		{"not found", research.ErrNotFound, http.StatusNotFound},
		{"quota", &research.QuotaExceededError{}, http.StatusTooManyRequests},
		{"timeout", research.NewGenerationFailed(research.FailureTimeout, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"upstream", research.NewGenerationFailed(research.FailureUpstreamError, errors.New("503")), http.StatusBadGateway},
		{"malformed", research.NewGenerationFailed(research.FailureMalformedOutput, nil), http.StatusBadGateway},
		{"cancelled", context.Canceled, statusClientClosedRequest},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestMessageForHidesInternalErrors(t *testing.T) {
	err := errors.New("database is locked")
	assert.Equal(t, "Internal server error", messageFor(err, statusFor(err)))

	err = fmt.Errorf("%w: cannot compare a stock with itself", research.ErrInvalidKey)
	assert.Equal(t, err.Error(), messageFor(err, statusFor(err)))
}

func bindBody(t *testing.T, body string) error {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/reports/generate", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var req GenerateReportRequest
	return c.ShouldBindJSON(&req)
}

func TestBindingMessageSeparatesMalformedFromMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing symbol", `{"exchange":"NSE"}`, "symbol is required"},
		{"truncated json", `{"symbol":`, "Invalid request body"},
		{"wrong type", `{"symbol":42}`, "Invalid request body"},
		{"not an object", `"TCS"`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bindBody(t, tt.body)
			require.Error(t, err)
			assert.Equal(t, tt.want, bindingMessage(err, "symbol is required"))
		})
	}
}
