package research

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-12", ResetMonthly.PeriodToken(now))
	assert.Equal(t, "2027-01", ResetMonthly.PeriodToken(now.Add(time.Minute)))
	assert.Equal(t, LifetimePeriod, ResetLifetime.PeriodToken(now))
}

func TestResetsAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 12, 15, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), ResetMonthly.ResetsAt(now))
	assert.True(t, ResetLifetime.ResetsAt(now).IsZero())
}

func TestEffectiveConsumed(t *testing.T) {
	t.Parallel()

	account := &QuotaAccount{Policy: ResetMonthly, Period: "2026-03", ConsumedCount: 10}
	assert.Equal(t, 10, account.EffectiveConsumed("2026-03"))
	assert.Equal(t, 0, account.EffectiveConsumed("2026-04"))

	var missing *QuotaAccount
	assert.Equal(t, 0, missing.EffectiveConsumed("2026-04"))
}

func TestNewUsage(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	usage := NewUsage(&Tier{Name: "basic", Limit: 10, ResetPolicy: ResetMonthly}, 12, now)
	assert.Equal(t, 0, usage.Remaining)
	assert.Equal(t, "2026-03", usage.Period)
	require.NotNil(t, usage.ResetsAt)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *usage.ResetsAt)

	usage = NewUsage(&Tier{Name: "free", Limit: 3, ResetPolicy: ResetLifetime}, 1, now)
	assert.Equal(t, 2, usage.Remaining)
	assert.Nil(t, usage.ResetsAt)
}

func TestParseResetPolicy(t *testing.T) {
	t.Parallel()

	policy, err := ParseResetPolicy(" Monthly ")
	require.NoError(t, err)
	assert.Equal(t, ResetMonthly, policy)

	_, err = ParseResetPolicy("weekly")
	require.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	quota := fmt.Errorf("resolve: %w", &QuotaExceededError{})
	assert.True(t, errors.Is(quota, ErrQuotaExceeded))
	assert.False(t, errors.Is(quota, ErrGenerationFailed))

	cause := errors.New("503 from upstream")
	failed := fmt.Errorf("resolve: %w", NewGenerationFailed(FailureUpstreamError, cause))
	assert.True(t, errors.Is(failed, ErrGenerationFailed))
	assert.True(t, errors.Is(failed, cause))

	kind, ok := FailureKindOf(failed)
	require.True(t, ok)
	assert.Equal(t, FailureUpstreamError, kind)

	_, ok = FailureKindOf(quota)
	assert.False(t, ok)
}
