package research

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
)

// LeaseRepository keeps one row per key while a generation is in flight.
// A row past its expiry may be taken over by another owner.
type LeaseRepository struct {
	db *database.DB
}

func NewLeaseRepository(db *database.DB) *LeaseRepository {
	return &LeaseRepository{db: db}
}

// TryAcquire claims the lease for key. It returns the current lease and
// whether owner now holds it. A live lease held by someone else is returned
// with false.
func (r *LeaseRepository) TryAcquire(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (*research.GenerationLease, bool, error) {
	start := time.Now()
	const query = `INSERT INTO generation_leases (cache_key, owner, generation, acquired_at, expires_at)
	               VALUES (?, ?, 1, ?, ?)
	               ON CONFLICT(cache_key) DO UPDATE SET
	                   owner = excluded.owner,
	                   generation = generation_leases.generation + 1,
	                   acquired_at = excluded.acquired_at,
	                   expires_at = excluded.expires_at
	               WHERE generation_leases.expires_at <= excluded.acquired_at
	               RETURNING owner, generation, acquired_at, expires_at`

	lease := &research.GenerationLease{Key: key}
	var acquiredAt, expiresAt int64
	err := r.db.QueryRowContext(ctx, query,
		key, owner, database.ToMillis(now), database.ToMillis(now.Add(ttl)),
	).Scan(&lease.Owner, &lease.Generation, &acquiredAt, &expiresAt)
	r.db.CheckSlowQuery("LEASE_TRY_ACQUIRE", time.Since(start))

	if errors.Is(err, sql.ErrNoRows) {
		held, err := r.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return held, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease for %s: %w", key, err)
	}

	lease.AcquiredAt = database.FromMillis(acquiredAt)
	lease.ExpiresAt = database.FromMillis(expiresAt)
	return lease, lease.Owner == owner, nil
}

// Release drops the lease if owner still holds it.
func (r *LeaseRepository) Release(ctx context.Context, key, owner string) error {
	const query = `DELETE FROM generation_leases WHERE cache_key = ? AND owner = ?`

	if _, err := r.db.ExecContext(ctx, query, key, owner); err != nil {
		return fmt.Errorf("failed to release lease for %s: %w", key, err)
	}
	return nil
}

// Get returns the lease row for key, or nil, nil.
func (r *LeaseRepository) Get(ctx context.Context, key string) (*research.GenerationLease, error) {
	const query = `SELECT owner, generation, acquired_at, expires_at FROM generation_leases WHERE cache_key = ?`

	lease := &research.GenerationLease{Key: key}
	var acquiredAt, expiresAt int64
	err := r.db.QueryRowContext(ctx, query, key).Scan(&lease.Owner, &lease.Generation, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lease for %s: %w", key, err)
	}
	lease.AcquiredAt = database.FromMillis(acquiredAt)
	lease.ExpiresAt = database.FromMillis(expiresAt)
	return lease, nil
}

// PurgeExpired deletes leases whose holders crashed or overran.
func (r *LeaseRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM generation_leases WHERE expires_at <= ?`

	result, err := r.db.ExecContext(ctx, query, database.ToMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired leases: %w", err)
	}
	return result.RowsAffected()
}
