// Package cli implements the reportcache command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/AtRiskMedia/reportcache-go/internal/application/container"
	"github.com/AtRiskMedia/reportcache-go/internal/application/startup"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/coder/quartz"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	dbPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "reportcache",
	Short:         "Shared cache for AI-generated equity research reports",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.DBPath = dbPath
		}
		cfg = loaded
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (default: $DB_PATH)")
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openContainer wires the application against the configured database for
// one-shot administrative commands.
func openContainer(ctx context.Context) (*container.Container, error) {
	logger, err := container.NewLogger(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	db, err := startup.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c, err := container.NewContainer(ctx, cfg, db, logger, nil, quartz.NewReal())
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}
