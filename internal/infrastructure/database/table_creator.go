// Package database provides schema creation for the report cache.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS content_entries (
		cache_key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		subject_variant TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		generated_at INTEGER NOT NULL,
		generation_sequence INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS access_records (
		user_id TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		subject_variant TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		first_viewed_at INTEGER NOT NULL,
		last_viewed_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, cache_key)
	)`,
	`CREATE TABLE IF NOT EXISTS quota_accounts (
		user_id TEXT NOT NULL,
		policy TEXT NOT NULL,
		period TEXT NOT NULL,
		consumed_count INTEGER NOT NULL DEFAULT 0 CHECK (consumed_count >= 0),
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, policy)
	)`,
	`CREATE TABLE IF NOT EXISTS quota_authorizations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		policy TEXT NOT NULL,
		period TEXT NOT NULL,
		previous_count INTEGER NOT NULL,
		quota_limit INTEGER NOT NULL,
		consumed_at INTEGER NOT NULL,
		released_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS generation_leases (
		cache_key TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		generation INTEGER NOT NULL DEFAULT 1,
		acquired_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_access_records_user_last_viewed ON access_records(user_id, last_viewed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_quota_authorizations_user ON quota_authorizations(user_id, policy, period)`,
	`CREATE INDEX IF NOT EXISTS idx_quota_authorizations_released ON quota_authorizations(released_at)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_leases_expires ON generation_leases(expires_at)`,
}
