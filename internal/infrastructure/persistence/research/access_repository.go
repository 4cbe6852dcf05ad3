package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
)

// AccessRepository is the SQL-backed access ledger. Records are strictly
// per user.
type AccessRepository struct {
	db *database.DB
}

func NewAccessRepository(db *database.DB) *AccessRepository {
	return &AccessRepository{db: db}
}

// RecordView creates the record on a user's first retrieval of key and bumps
// last_viewed_at afterwards.
func (r *AccessRepository) RecordView(ctx context.Context, userID string, key research.CacheKey, now time.Time) error {
	start := time.Now()
	const query = `INSERT INTO access_records
	                   (user_id, cache_key, kind, subject_id, subject_variant, language, first_viewed_at, last_viewed_at)
	               VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	               ON CONFLICT(user_id, cache_key) DO UPDATE SET
	                   last_viewed_at = MAX(access_records.last_viewed_at, excluded.last_viewed_at)`

	viewedAt := database.ToMillis(now)
	_, err := r.db.ExecContext(ctx, query,
		userID, key.String(), string(key.Kind), key.SubjectID, key.SubjectVariant, key.Language,
		viewedAt, viewedAt,
	)
	r.db.CheckSlowQuery("ACCESS_RECORD_VIEW", time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to record view of %s: %w", key, err)
	}
	return nil
}

// IsFirstView reports whether userID has never retrieved key.
func (r *AccessRepository) IsFirstView(ctx context.Context, userID string, key research.CacheKey) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM access_records WHERE user_id = ? AND cache_key = ?)`

	var seen bool
	if err := r.db.QueryRowContext(ctx, query, userID, key.String()).Scan(&seen); err != nil {
		return false, fmt.Errorf("failed to check view of %s: %w", key, err)
	}
	return !seen, nil
}

// Get returns the access record for a pair, or nil, nil.
func (r *AccessRepository) Get(ctx context.Context, userID string, key research.CacheKey) (*research.AccessRecord, error) {
	const query = `SELECT first_viewed_at, last_viewed_at FROM access_records WHERE user_id = ? AND cache_key = ?`

	rows, err := r.db.QueryContext(ctx, query, userID, key.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load access record for %s: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var first, last int64
	if err := rows.Scan(&first, &last); err != nil {
		return nil, fmt.Errorf("failed to scan access record for %s: %w", key, err)
	}
	return &research.AccessRecord{
		UserID:        userID,
		Key:           key,
		FirstViewedAt: database.FromMillis(first),
		LastViewedAt:  database.FromMillis(last),
	}, nil
}

// History lists the user's most recently viewed artifacts joined with the
// current state of each entry. Age fields are left for the caller to fill.
func (r *AccessRepository) History(ctx context.Context, userID string, limit int) ([]*research.HistoryItem, error) {
	start := time.Now()
	const query = `SELECT a.kind, a.subject_id, a.subject_variant, a.language,
	                      a.first_viewed_at, a.last_viewed_at,
	                      c.metadata, c.generated_at, c.generation_sequence
	               FROM access_records a
	               JOIN content_entries c ON c.cache_key = a.cache_key
	               WHERE a.user_id = ?
	               ORDER BY a.last_viewed_at DESC
	               LIMIT ?`

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var items []*research.HistoryItem
	for rows.Next() {
		var kind, metadata string
		var first, last, generatedAt int64
		item := &research.HistoryItem{}
		if err := rows.Scan(&kind, &item.Key.SubjectID, &item.Key.SubjectVariant, &item.Key.Language,
			&first, &last, &metadata, &generatedAt, &item.GenerationSequence); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		item.Key.Kind = research.ArtifactKind(kind)
		item.FirstViewedAt = database.FromMillis(first)
		item.LastViewedAt = database.FromMillis(last)
		item.GeneratedAt = database.FromMillis(generatedAt)
		if err := json.Unmarshal([]byte(metadata), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode history metadata: %w", err)
		}
		items = append(items, item)
	}
	r.db.CheckSlowQuery("ACCESS_HISTORY", time.Since(start))
	return items, rows.Err()
}
