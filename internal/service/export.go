package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/festival-registration/internal/export"
	"github.com/iliyamo/festival-registration/internal/model"
)

// SheetWriter replaces the content of a spreadsheet tab.
type SheetWriter interface {
	ReplaceRows(ctx context.Context, tab string, header []string, rows [][]string) error
}

// Exporter serves the administrative listings.
type Exporter struct {
	store RegistrationStore
}

// NewExporter returns an Exporter reading from store.
func NewExporter(store RegistrationStore) *Exporter {
	if store == nil {
		panic("nil registration store")
	}
	return &Exporter{store: store}
}

// List returns registrations in the given payment state; an empty status
// lists all of them.
func (e *Exporter) List(ctx context.Context, status model.PaymentStatus) ([]model.Registration, error) {
	regs, err := e.store.ListRegistrations(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	return regs, nil
}

// SyncSheet writes the completed registrations to tab and returns how many
// rows were written.
func (e *Exporter) SyncSheet(ctx context.Context, w SheetWriter, tab string) (int, error) {
	regs, err := e.List(ctx, model.PaymentCompleted)
	if err != nil {
		return 0, err
	}
	if err := w.ReplaceRows(ctx, tab, export.Header, export.Rows(regs)); err != nil {
		return 0, fmt.Errorf("sync sheet: %w", err)
	}
	return len(regs), nil
}
