// Package database provides database helper functions
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/observability/logging"
)

// TestTursoConnectionWithLogger tests the Turso database connection with logging
func TestTursoConnectionWithLogger(dataSourceName string, logger *logging.ChanneledLogger) error {
	start := time.Now()
	logger.Database().Debug("Testing Turso database connection")

	db, err := sql.Open("libsql", dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open Turso connection", "error", err.Error())
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	var result int
	if err := db.QueryRow("SELECT 1").Scan(&result); err != nil {
		logger.Database().Error("Turso connection test query failed", "error", err.Error())
		return fmt.Errorf("connection test query failed: %w", err)
	}

	if result != 1 {
		logger.Database().Error("Unexpected Turso query result", "result", result, "expected", 1)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Database().Info("Turso connection test successful", "duration", time.Since(start))
	return nil
}

// CheckSlowQuery logs the named operation on the slow-query channel when
// duration exceeds the connection's threshold.
func (db *DB) CheckSlowQuery(operation string, duration time.Duration) {
	if db.logger == nil {
		return
	}
	if duration > db.slowQueryThreshold {
		db.logger.LogSlowQuery(operation, duration)
	}
}

// ToMillis converts a time to unix milliseconds for storage.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts stored unix milliseconds back to UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
