package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/metrics"
	"github.com/coder/quartz"
)

// QuotaNotifier is told when a user has just spent the last unit of their
// allowance.
type QuotaNotifier interface {
	QuotaExhausted(userID string, usage *research.Usage)
}

// QuotaLedger authorizes generations against a user's tier allowance.
type QuotaLedger struct {
	store    repositories.QuotaStore
	tiers    repositories.TierSource
	notifier QuotaNotifier
	clock    quartz.Clock
	metrics  *metrics.Metrics
	logger   *logging.ChanneledLogger
}

// NewQuotaLedger creates a ledger. notifier may be nil.
func NewQuotaLedger(store repositories.QuotaStore, tiers repositories.TierSource, notifier QuotaNotifier, clock quartz.Clock, m *metrics.Metrics, logger *logging.ChanneledLogger) *QuotaLedger {
	return &QuotaLedger{
		store:    store,
		tiers:    tiers,
		notifier: notifier,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// TryConsume takes one unit for userID. A denial is returned as a
// *research.QuotaExceededError carrying the user's usage.
func (l *QuotaLedger) TryConsume(ctx context.Context, userID string, tier *research.Tier) (*research.Authorization, error) {
	now := l.clock.Now()

	auth, err := l.store.TryConsume(ctx, userID, tier, now)
	if errors.Is(err, research.ErrQuotaExceeded) {
		l.metrics.RecordQuotaDenied(tier.Name)
		usage, usageErr := l.usage(ctx, userID, tier)
		if usageErr != nil {
			l.logger.Quota().Error("Failed to load usage after denial", "userId", userID, "error", usageErr)
			usage = research.NewUsage(tier, tier.Limit, now)
		}
		l.logger.Quota().Info("Quota exceeded", "userId", userID, "tier", tier.Name, "consumed", usage.Consumed, "limit", usage.Limit)
		return nil, &research.QuotaExceededError{Usage: usage}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	l.logger.Quota().Debug("Quota consumed", "userId", userID, "tier", tier.Name, "period", auth.Period,
		"consumed", auth.PreviousCount+1, "limit", auth.Limit)
	return auth, nil
}

// Commit marks auth as kept. When it took the last unit of the period and
// the allowance is still used up, the notifier is told.
func (l *QuotaLedger) Commit(ctx context.Context, auth *research.Authorization, tier *research.Tier) {
	if l.notifier == nil || auth.PreviousCount+1 != tier.Limit {
		return
	}
	usage, err := l.usage(context.WithoutCancel(ctx), auth.UserID, tier)
	if err != nil {
		l.logger.Quota().Error("Failed to load usage after commit", "userId", auth.UserID, "error", err)
		return
	}
	if usage.Remaining > 0 {
		return
	}
	l.notifier.QuotaExhausted(auth.UserID, usage)
}

// Release gives back the unit recorded by auth. Releasing the same
// authorization twice has no further effect.
func (l *QuotaLedger) Release(ctx context.Context, auth *research.Authorization) error {
	released, err := l.store.Release(ctx, auth, l.clock.Now())
	if err != nil {
		l.logger.Quota().Error("Failed to release quota", "userId", auth.UserID, "authorization", auth.ID, "error", err)
		return fmt.Errorf("failed to release quota: %w", err)
	}
	if released {
		l.metrics.RecordQuotaRefund()
		l.logger.Quota().Debug("Quota released", "userId", auth.UserID, "authorization", auth.ID)
	}
	return nil
}

// CurrentUsage reports the user's standing against their tier.
func (l *QuotaLedger) CurrentUsage(ctx context.Context, userID string) (*research.Usage, error) {
	tier, err := l.tiers.GetTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.usage(ctx, userID, tier)
}

func (l *QuotaLedger) usage(ctx context.Context, userID string, tier *research.Tier) (*research.Usage, error) {
	now := l.clock.Now()
	account, err := l.store.Account(ctx, userID, tier.ResetPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota account: %w", err)
	}
	return research.NewUsage(tier, account.EffectiveConsumed(tier.ResetPolicy.PeriodToken(now)), now), nil
}
