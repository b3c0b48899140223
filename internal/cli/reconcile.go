package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Retry delivery proofs of unverified transactions once",
	Long: `Reconcile looks up every gateway-backed transaction still carrying a
placeholder reference, resubmits its delivery proof and stores the proof id
when the gateway accepts it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.orch.Reconcile(cmd.Context())
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "checked %d, promoted %d, still pending %d\n",
			report.Checked, report.Promoted, report.Pending)
		return nil
	},
}
