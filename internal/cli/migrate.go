package cli

import (
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/application/container"
	"github.com/AtRiskMedia/reportcache-go/internal/application/startup"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		RunE:  runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	logger, err := container.NewLogger(cfg, nil)
	if err != nil {
		return err
	}
	defer logger.Close()

	db, err := startup.OpenDatabase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", db.Driver)
	return nil
}
