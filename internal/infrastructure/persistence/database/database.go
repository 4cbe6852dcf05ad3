// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver             string
	logger             *logging.ChanneledLogger
	slowQueryThreshold time.Duration
}

// Options tune a connection beyond driver and DSN.
type Options struct {
	MaxOpenConns       int
	SlowQueryThreshold time.Duration
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(driverName, dataSourceName string, opts Options, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	threshold := opts.SlowQueryThreshold
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}

	conn := &DB{DB: db, Driver: driverName, logger: logger, slowQueryThreshold: threshold}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	conn.CheckSlowQuery("DATABASE_CONNECTION", duration)

	return conn, nil
}

// Open connects using the service configuration.
func Open(cfg *config.Config, logger *logging.ChanneledLogger) (*DB, error) {
	if cfg.DBDriver == config.DriverLibSQL {
		if err := TestTursoConnectionWithLogger(cfg.DataSourceName(), logger); err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := NewConnectionWithLogger(cfg.DBDriver, cfg.DataSourceName(), Options{
		MaxOpenConns:       cfg.DBMaxOpenConns,
		SlowQueryThreshold: cfg.SlowQueryThreshold,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DBDriver, err)
	}
	return db, nil
}

// Logger exposes the connection's logger to repositories.
func (db *DB) Logger() *logging.ChanneledLogger {
	return db.logger
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
