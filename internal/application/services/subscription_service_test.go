package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *fakeMailer) SendQuotaExhaustedEmail(toEmail string, usage *research.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, toEmail)
	return nil
}

func TestSubscriptionServiceAssignAndPlans(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()

	tier, err := h.subscriptions.AssignTier(ctx, "alice", "", "FREE")
	require.NoError(t, err)
	assert.Equal(t, "free", tier.Name)

	_, err = h.subscriptions.AssignTier(ctx, "alice", "", "platinum")
	require.Error(t, err)

	plans := h.subscriptions.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, "free", plans[0].Name)
	assert.Equal(t, "pro", plans[1].Name)
}

func TestSubscriptionServiceEnsureSubscribed(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()

	require.NoError(t, h.subscriptions.EnsureSubscribed(ctx, "newcomer", "new@example.com"))
	tier, err := h.subscriptions.GetTier(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "free", tier.Name)

	require.NoError(t, h.subscriptions.EnsureSubscribed(ctx, "alice", ""))
	tier, err = h.subscriptions.GetTier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pro", tier.Name)
}

func TestSubscriptionServiceSendsExhaustedNotice(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	mailer := &fakeMailer{}
	service := NewSubscriptionService(h.subscriptions.subscriptions, h.subscriptions.catalog, "free", mailer, h.clock, h.subscriptions.logger)
	usage := research.NewUsage(&research.Tier{Name: "pro", Limit: 50, ResetPolicy: research.ResetMonthly}, 50, h.clock.Now())

	service.QuotaExhausted("alice", usage)
	service.QuotaExhausted("frugal", usage)
	service.Wait()

	assert.Equal(t, []string{"alice@example.com"}, mailer.sent)

	mailer.err = errors.New("resend unavailable")
	service.QuotaExhausted("bob", usage)
	service.Wait()
	assert.Len(t, mailer.sent, 1)
}
