// Package repositories defines the repository interfaces for the report cache.
// These repositories abstract the data persistence details, ensuring the core
// application is clean and decoupled from the database.
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
)

// ContentStore is the durable map from cache key to the latest artifact.
// Get returns nil, nil when the key has no entry.
type ContentStore interface {
	Get(ctx context.Context, key research.CacheKey) (*research.CacheEntry, error)
	Put(ctx context.Context, key research.CacheKey, content json.RawMessage, metadata research.GenerationMetadata, now time.Time) (*research.CacheEntry, error)
	Purge(ctx context.Context, key research.CacheKey) (bool, error)
}

// AccessLedger records per-user first and last views of a key.
type AccessLedger interface {
	RecordView(ctx context.Context, userID string, key research.CacheKey, now time.Time) error
	IsFirstView(ctx context.Context, userID string, key research.CacheKey) (bool, error)
	History(ctx context.Context, userID string, limit int) ([]*research.HistoryItem, error)
}

// QuotaStore holds the quota counters and the authorization receipts.
type QuotaStore interface {
	TryConsume(ctx context.Context, userID string, tier *research.Tier, now time.Time) (*research.Authorization, error)
	Release(ctx context.Context, auth *research.Authorization, now time.Time) (bool, error)
	Account(ctx context.Context, userID string, policy research.ResetPolicy) (*research.QuotaAccount, error)
	PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error)
}

// LeaseStore persists generation leases so that exclusivity holds across
// process instances.
type LeaseStore interface {
	TryAcquire(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (*research.GenerationLease, bool, error)
	Release(ctx context.Context, key, owner string) error
	Get(ctx context.Context, key string) (*research.GenerationLease, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TierSource resolves a user's subscription tier.
type TierSource interface {
	GetTier(ctx context.Context, userID string) (*research.Tier, error)
}

// SubscriptionRepository stores which tier each user holds.
type SubscriptionRepository interface {
	TierSource
	AssignTier(ctx context.Context, userID, email, tier string, now time.Time) error
	Email(ctx context.Context, userID string) (string, error)
}
