package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconcileCmd(d Deps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay webhook events whose CMS update failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			r, closeFn, err := d.Retrier(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			fixed, failed, err := r.RetryFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d events, %d still failing\n", fixed, failed)
			if failed > 0 {
				return fmt.Errorf("%d events still failing", failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to replay")
	return cmd
}
