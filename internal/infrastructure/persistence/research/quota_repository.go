package research

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/security"
)

// QuotaRepository stores one counter row per (user, reset policy) plus a
// receipt row per consumed unit so that refunds can be applied exactly once.
type QuotaRepository struct {
	db *database.DB
}

func NewQuotaRepository(db *database.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// TryConsume atomically takes one unit from the user's allowance for the
// period containing now. It returns research.ErrQuotaExceeded, leaving the
// row untouched, when the allowance is spent.
//
// A monthly row whose period token is not the current month is rewritten
// with the current token and a count of one.
func (r *QuotaRepository) TryConsume(ctx context.Context, userID string, tier *research.Tier, now time.Time) (*research.Authorization, error) {
	if tier.Limit <= 0 {
		return nil, research.ErrQuotaExceeded
	}

	start := time.Now()
	const consumeQuery = `INSERT INTO quota_accounts (user_id, policy, period, consumed_count, updated_at)
	                      VALUES (?, ?, ?, 1, ?)
	                      ON CONFLICT(user_id, policy) DO UPDATE SET
	                          consumed_count = CASE WHEN quota_accounts.period = excluded.period
	                                                THEN quota_accounts.consumed_count + 1
	                                                ELSE 1 END,
	                          period = excluded.period,
	                          updated_at = excluded.updated_at
	                      WHERE quota_accounts.period <> excluded.period
	                         OR quota_accounts.consumed_count < ?
	                      RETURNING consumed_count`
	const receiptQuery = `INSERT INTO quota_authorizations
	                          (id, user_id, policy, period, previous_count, quota_limit, consumed_at)
	                      VALUES (?, ?, ?, ?, ?, ?, ?)`

	auth := &research.Authorization{
		ID:         security.GenerateULID(),
		UserID:     userID,
		Policy:     tier.ResetPolicy,
		Period:     tier.ResetPolicy.PeriodToken(now),
		Limit:      tier.Limit,
		ConsumedAt: now.UTC(),
	}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var consumed int
		err := tx.QueryRowContext(ctx, consumeQuery,
			userID, string(auth.Policy), auth.Period, database.ToMillis(now), tier.Limit,
		).Scan(&consumed)
		if errors.Is(err, sql.ErrNoRows) {
			return research.ErrQuotaExceeded
		}
		if err != nil {
			return fmt.Errorf("failed to consume quota: %w", err)
		}
		auth.PreviousCount = consumed - 1

		if _, err := tx.ExecContext(ctx, receiptQuery,
			auth.ID, userID, string(auth.Policy), auth.Period, auth.PreviousCount, auth.Limit, database.ToMillis(now),
		); err != nil {
			return fmt.Errorf("failed to record authorization: %w", err)
		}
		return nil
	})
	r.db.CheckSlowQuery("QUOTA_TRY_CONSUME", time.Since(start))
	if err != nil {
		return nil, err
	}
	return auth, nil
}

// Release gives back the unit recorded by auth. Only the first call for a
// given authorization has any effect; it reports whether this call did.
func (r *QuotaRepository) Release(ctx context.Context, auth *research.Authorization, now time.Time) (bool, error) {
	const markQuery = `UPDATE quota_authorizations SET released_at = ?
	                   WHERE id = ? AND released_at IS NULL`
	const refundQuery = `UPDATE quota_accounts
	                     SET consumed_count = consumed_count - 1, updated_at = ?
	                     WHERE user_id = ? AND policy = ? AND period = ? AND consumed_count > 0`

	released := false
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, markQuery, database.ToMillis(now), auth.ID)
		if err != nil {
			return fmt.Errorf("failed to mark authorization released: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read release result: %w", err)
		}
		if affected == 0 {
			return nil
		}

		// A counter that has since rolled into a new period has nothing to refund.
		if _, err := tx.ExecContext(ctx, refundQuery,
			database.ToMillis(now), auth.UserID, string(auth.Policy), auth.Period,
		); err != nil {
			return fmt.Errorf("failed to refund quota: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// Account returns the stored counter row, or nil, nil when the user has never
// consumed under policy.
func (r *QuotaRepository) Account(ctx context.Context, userID string, policy research.ResetPolicy) (*research.QuotaAccount, error) {
	const query = `SELECT period, consumed_count, updated_at FROM quota_accounts WHERE user_id = ? AND policy = ?`

	account := &research.QuotaAccount{UserID: userID, Policy: policy}
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, query, userID, string(policy)).Scan(&account.Period, &account.ConsumedCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quota account: %w", err)
	}
	account.UpdatedAt = database.FromMillis(updatedAt)
	return account, nil
}

// PurgeAuthorizations deletes receipts consumed before the cutoff. Receipts
// are only released within the request that created them.
func (r *QuotaRepository) PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM quota_authorizations WHERE consumed_at < ?`

	result, err := r.db.ExecContext(ctx, query, database.ToMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to purge authorizations: %w", err)
	}
	return result.RowsAffected()
}
