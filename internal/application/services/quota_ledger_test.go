package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	users  []string
	usages []*research.Usage
}

func (n *recordingNotifier) QuotaExhausted(userID string, usage *research.Usage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.usages = append(n.usages, usage)
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.users...)
}

func TestQuotaLedgerNotifiesOnlyWhenLastUnitIsKept(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	ledger := NewQuotaLedger(h.quotaStore, h.subscriptions, notifier, h.clock, m, logging.NewDiscardLogger())
	ctx := context.Background()

	tier, err := h.subscriptions.GetTier(ctx, "frugal")
	require.NoError(t, err)

	auth, err := ledger.TryConsume(ctx, "frugal", tier)
	require.NoError(t, err)
	assert.Zero(t, auth.PreviousCount)
	assert.Empty(t, notifier.notified())

	_, err = ledger.TryConsume(ctx, "frugal", tier)
	var exceeded *research.QuotaExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "free", exceeded.Usage.Tier)
	assert.Nil(t, exceeded.Usage.ResetsAt)

	require.NoError(t, ledger.Release(ctx, auth))
	require.NoError(t, ledger.Release(ctx, auth))

	// A refunded unit no longer counts, so committing it late says nothing.
	ledger.Commit(ctx, auth, tier)
	assert.Empty(t, notifier.notified())

	usage, err := ledger.CurrentUsage(ctx, "frugal")
	require.NoError(t, err)
	assert.Zero(t, usage.Consumed)
	assert.Equal(t, 1, usage.Remaining)

	auth, err = ledger.TryConsume(ctx, "frugal", tier)
	require.NoError(t, err)
	ledger.Commit(ctx, auth, tier)
	require.Equal(t, []string{"frugal"}, notifier.notified())
	assert.Zero(t, notifier.usages[0].Remaining)
}

func TestQuotaLedgerCommitBelowLimitIsSilent(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()

	tier, err := h.subscriptions.GetTier(ctx, "alice")
	require.NoError(t, err)
	auth, err := h.ledger.TryConsume(ctx, "alice", tier)
	require.NoError(t, err)
	h.ledger.Commit(ctx, auth, tier)
	assert.Empty(t, h.notices.notified())
}

func TestQuotaLedgerCurrentUsageMonthly(t *testing.T) {
	h := newHarness(t, newStubGenerator(), nil)
	ctx := context.Background()

	tier, err := h.subscriptions.GetTier(ctx, "alice")
	require.NoError(t, err)
	for range 3 {
		_, err := h.ledger.TryConsume(ctx, "alice", tier)
		require.NoError(t, err)
	}

	usage, err := h.ledger.CurrentUsage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Consumed)
	assert.Equal(t, 47, usage.Remaining)
	assert.Equal(t, research.ResetMonthly, usage.ResetPolicy)
	require.NotNil(t, usage.ResetsAt)
	assert.True(t, usage.ResetsAt.After(h.clock.Now()))

	_, err = h.ledger.CurrentUsage(ctx, "mallory")
	require.ErrorIs(t, err, research.ErrUnknownUser)
}
