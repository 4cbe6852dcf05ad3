// Package research provides the SQL repositories behind the report cache:
// content entries, viewer records, quota counters, leases and subscriptions.
package research

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/persistence/database"
)

// ContentRepository is the SQL-backed content store. It holds no freshness
// logic.
type ContentRepository struct {
	db *database.DB
}

func NewContentRepository(db *database.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Get returns the entry for key, or nil, nil when there is none.
func (r *ContentRepository) Get(ctx context.Context, key research.CacheKey) (*research.CacheEntry, error) {
	start := time.Now()
	const query = `SELECT content, metadata, generated_at, generation_sequence
	               FROM content_entries WHERE cache_key = ?`

	var content, metadata string
	var generatedAt, sequence int64
	err := r.db.QueryRowContext(ctx, query, key.String()).Scan(&content, &metadata, &generatedAt, &sequence)
	r.db.CheckSlowQuery("CONTENT_GET", time.Since(start))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content entry %s: %w", key, err)
	}

	entry := &research.CacheEntry{
		Key:                key,
		Content:            json.RawMessage(content),
		GeneratedAt:        database.FromMillis(generatedAt),
		GenerationSequence: sequence,
	}
	if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", key, err)
	}
	return entry, nil
}

// Put creates or overwrites the entry for key and bumps its generation
// sequence. generated_at never moves backwards.
func (r *ContentRepository) Put(ctx context.Context, key research.CacheKey, content json.RawMessage, metadata research.GenerationMetadata, now time.Time) (*research.CacheEntry, error) {
	start := time.Now()
	const query = `INSERT INTO content_entries
	                   (cache_key, kind, subject_id, subject_variant, language, content, metadata, generated_at, generation_sequence)
	               VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	               ON CONFLICT(cache_key) DO UPDATE SET
	                   content = excluded.content,
	                   metadata = excluded.metadata,
	                   generated_at = MAX(content_entries.generated_at, excluded.generated_at),
	                   generation_sequence = content_entries.generation_sequence + 1
	               RETURNING generated_at, generation_sequence`

	if !json.Valid(content) {
		return nil, fmt.Errorf("content for %s is not valid JSON", key)
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata for %s: %w", key, err)
	}

	var generatedAt, sequence int64
	err = r.db.QueryRowContext(ctx, query,
		key.String(), string(key.Kind), key.SubjectID, key.SubjectVariant, key.Language,
		string(content), string(metadataJSON), database.ToMillis(now),
	).Scan(&generatedAt, &sequence)
	r.db.CheckSlowQuery("CONTENT_PUT", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to store content entry %s: %w", key, err)
	}

	r.db.Logger().Cache().Debug("Content entry stored", "key", key.String(), "generationSequence", sequence, "duration", time.Since(start))

	return &research.CacheEntry{
		Key:                key,
		Content:            content,
		Metadata:           metadata,
		GeneratedAt:        database.FromMillis(generatedAt),
		GenerationSequence: sequence,
	}, nil
}

// Purge deletes the entry for key. It reports whether a row existed.
func (r *ContentRepository) Purge(ctx context.Context, key research.CacheKey) (bool, error) {
	const query = `DELETE FROM content_entries WHERE cache_key = ?`

	result, err := r.db.ExecContext(ctx, query, key.String())
	if err != nil {
		return false, fmt.Errorf("failed to purge content entry %s: %w", key, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read purge result for %s: %w", key, err)
	}
	return affected > 0, nil
}
