package research

import (
	"fmt"
	"strings"
	"time"
)

// ResetPolicy says whether a tier's allowance ever resets.
type ResetPolicy string

const (
	ResetLifetime ResetPolicy = "Lifetime"
	ResetMonthly  ResetPolicy = "Monthly"
)

// LifetimePeriod is the period token of accounts that never reset.
const LifetimePeriod = "lifetime"

const monthTokenLayout = "2006-01"

// ParseResetPolicy accepts "lifetime" or "monthly" in any case.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lifetime":
		return ResetLifetime, nil
	case "monthly":
		return ResetMonthly, nil
	}
	return "", fmt.Errorf("unknown reset policy %q", s)
}

// Tier is a subscription level and the allowance it grants.
type Tier struct {
	Name        string      `json:"name"`
	Limit       int         `json:"limit"`
	ResetPolicy ResetPolicy `json:"resetPolicy"`
}

// PeriodToken returns the accounting period a request at now belongs to.
func (p ResetPolicy) PeriodToken(now time.Time) string {
	if p == ResetLifetime {
		return LifetimePeriod
	}
	return now.UTC().Format(monthTokenLayout)
}

// ResetsAt returns the instant the current period ends, or the zero time for
// lifetime accounts.
func (p ResetPolicy) ResetsAt(now time.Time) time.Time {
	if p == ResetLifetime {
		return time.Time{}
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// QuotaAccount is the stored counter for a user and reset policy.
type QuotaAccount struct {
	UserID        string      `json:"userId"`
	Policy        ResetPolicy `json:"policy"`
	Period        string      `json:"period"`
	ConsumedCount int         `json:"consumedCount"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// EffectiveConsumed returns the count that applies in period; a monthly row
// left over from an earlier month reads as zero.
func (a *QuotaAccount) EffectiveConsumed(period string) int {
	if a == nil || a.Period != period {
		return 0
	}
	return a.ConsumedCount
}

// Authorization is the receipt of one consumed unit. Releasing it gives the
// unit back exactly once.
type Authorization struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	Policy        ResetPolicy `json:"policy"`
	Period        string      `json:"period"`
	PreviousCount int         `json:"previousCount"`
	Limit         int         `json:"limit"`
	ConsumedAt    time.Time   `json:"consumedAt"`
}

// Usage summarizes a user's standing against their tier.
type Usage struct {
	Tier        string      `json:"tier"`
	Consumed    int         `json:"consumed"`
	Limit       int         `json:"limit"`
	Remaining   int         `json:"remaining"`
	ResetPolicy ResetPolicy `json:"resetPolicy"`
	Period      string      `json:"period"`
	ResetsAt    *time.Time  `json:"resetsAt,omitempty"`
}

// NewUsage computes remaining allowance and the reset instant for a tier.
func NewUsage(tier *Tier, consumed int, now time.Time) *Usage {
	usage := &Usage{
		Tier:        tier.Name,
		Consumed:    consumed,
		Limit:       tier.Limit,
		Remaining:   max(0, tier.Limit-consumed),
		ResetPolicy: tier.ResetPolicy,
		Period:      tier.ResetPolicy.PeriodToken(now),
	}
	if resetsAt := tier.ResetPolicy.ResetsAt(now); !resetsAt.IsZero() {
		usage.ResetsAt = &resetsAt
	}
	return usage
}
