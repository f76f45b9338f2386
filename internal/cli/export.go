package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/festival-registration/internal/export"
	"github.com/iliyamo/festival-registration/internal/model"
)

func newExportCmd(d Deps) *cobra.Command {
	var (
		status string
		out    string
		sheets bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export registrations as CSV or to the configured spreadsheet",
		Long: `Export registrations from the CMS.

Without flags every registration is written as CSV to stdout.  --stato
filters by payment state (in_attesa, completato).  --sheets replaces the
configured spreadsheet tab with the completed registrations instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := d.Exporter(ctx)
			if err != nil {
				return err
			}

			if sheets {
				if d.Sheet == nil {
					return errors.New("sheets export not configured")
				}
				w, tab, err := d.Sheet(ctx)
				if err != nil {
					return err
				}
				n, err := exp.SyncSheet(ctx, w, tab)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d registrations to %q\n", n, tab)
				return nil
			}

			st := model.PaymentStatus(status)
			if st != "" && st != model.PaymentPending && st != model.PaymentCompleted {
				return fmt.Errorf("unknown stato %q", status)
			}
			regs, err := exp.List(ctx, st)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := export.WriteCSV(w, regs); err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d registrations to %s\n", len(regs), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "stato", "", "Filter by payment state")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write CSV to file instead of stdout")
	cmd.Flags().BoolVar(&sheets, "sheets", false, "Sync completed registrations to Google Sheets")
	return cmd
}
