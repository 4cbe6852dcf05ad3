package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var tierEmail string

func init() {
	tierCmd := &cobra.Command{
		Use:   "tier",
		Short: "Inspect and assign subscription tiers",
	}

	setCmd := &cobra.Command{
		Use:   "set <user-id> <tier>",
		Short: "Assign a tier to a user",
		Args:  cobra.ExactArgs(2),
		RunE:  runTierSet,
	}
	setCmd.Flags().StringVar(&tierEmail, "email", "", "Address for allowance notices")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the configured tier catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, cfg.Tiers().Sorted())
		},
	}

	tierCmd.AddCommand(setCmd, listCmd)
	RootCmd.AddCommand(tierCmd)
}

func runTierSet(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	tier, err := c.SubscriptionService.AssignTier(cmd.Context(), args[0], tierEmail, args[1])
	if err != nil {
		return fmt.Errorf("failed to assign tier: %w", err)
	}
	return printJSON(cmd, tier)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
