package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "usage <user-id>",
		Short: "Show a user's consumption for the current period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			usage, err := c.QuotaLedger.CurrentUsage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, usage)
		},
	}

	RootCmd.AddCommand(cmd)
}
