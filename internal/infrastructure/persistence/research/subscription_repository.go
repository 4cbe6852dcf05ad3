package research

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
)

// SubscriptionRepository maps users to a tier in the configured catalog.
type SubscriptionRepository struct {
	db      *database.DB
	catalog config.TierCatalog
}

func NewSubscriptionRepository(db *database.DB, catalog config.TierCatalog) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, catalog: catalog}
}

// GetTier returns the user's tier, or research.ErrUnknownUser when the user
// has no subscription row.
func (r *SubscriptionRepository) GetTier(ctx context.Context, userID string) (*research.Tier, error) {
	const query = `SELECT tier FROM subscriptions WHERE user_id = ?`

	var name string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, research.ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	tier, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("user holds tier %q which is not in the catalog", name)
	}
	return tier, nil
}

// AssignTier creates or updates the user's subscription. An empty email
// leaves a stored address untouched.
func (r *SubscriptionRepository) AssignTier(ctx context.Context, userID, email, tier string, now time.Time) error {
	const query = `INSERT INTO subscriptions (user_id, email, tier, updated_at)
	               VALUES (?, ?, ?, ?)
	               ON CONFLICT(user_id) DO UPDATE SET
	                   email = CASE WHEN excluded.email = '' THEN subscriptions.email ELSE excluded.email END,
	                   tier = excluded.tier,
	                   updated_at = excluded.updated_at`

	resolved, ok := r.catalog.Lookup(tier)
	if !ok {
		return fmt.Errorf("unknown tier %q", tier)
	}
	if _, err := r.db.ExecContext(ctx, query, userID, email, resolved.Name, database.ToMillis(now)); err != nil {
		return fmt.Errorf("failed to assign tier: %w", err)
	}
	return nil
}

// Email returns the stored address, or "" when none is known.
func (r *SubscriptionRepository) Email(ctx context.Context, userID string) (string, error) {
	const query = `SELECT email FROM subscriptions WHERE user_id = ?`

	var email string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load email: %w", err)
	}
	return email, nil
}
