package cli

import (
	"github.com/AtRiskMedia/reportcache-go/internal/application/startup"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startup.Initialize(cfg)
		},
	}

	RootCmd.AddCommand(cmd)
}
