// Package cli implements regctl, the organiser command line: registration
// exports, the Sheets sync, replay of failed webhook reconciliations and
// admin password hashing.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/service"
)

// Exporter lists registrations and syncs them to a spreadsheet.
type Exporter interface {
	List(ctx context.Context, status model.PaymentStatus) ([]model.Registration, error)
	SyncSheet(ctx context.Context, w service.SheetWriter, tab string) (int, error)
}

// Retrier replays failed reconciliations.
type Retrier interface {
	RetryFailed(ctx context.Context, limit int) (fixed, failed int, err error)
}

// Deps builds the collaborators on demand so that commands which do not
// need them (hash-password) run without any configuration.
type Deps struct {
	Exporter func(ctx context.Context) (Exporter, error)
	Sheet    func(ctx context.Context) (w service.SheetWriter, tab string, err error)
	Retrier  func(ctx context.Context) (r Retrier, closeFn func(), err error)
}

// NewRootCmd assembles the command tree.
func NewRootCmd(d Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "regctl",
		Short:         "Festival registration operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExportCmd(d))
	root.AddCommand(newReconcileCmd(d))
	root.AddCommand(newHashPasswordCmd())
	return root
}

// Execute runs regctl with the production dependencies.
func Execute(version string) error {
	root := NewRootCmd(DefaultDeps())
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
