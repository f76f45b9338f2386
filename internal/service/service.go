// Package service holds the registration, payment and reconciliation
// workflows.  Collaborators are small interfaces so that handlers, the
// queue consumer and the ops CLI share the same logic and tests can use
// hand-written fakes.
package service

import (
	"context"
	"errors"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
)

var (
	// ErrRegistrationNotFound is returned when the CMS has no record for
	// the requested id.
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrAlreadyPaid rejects a new payment for a completed registration.
	ErrAlreadyPaid = errors.New("registration already paid")
	// ErrSelectionMismatch is returned when the client's add-on selection
	// disagrees with the persisted registration.
	ErrSelectionMismatch = errors.New("selection does not match registration")
	// ErrNotBillable is returned when the persisted registration cannot be
	// priced.
	ErrNotBillable = errors.New("registration is not billable")
)

// RegistrationStore is the CMS collection.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg model.Registration) (uint64, error)
	GetRegistration(ctx context.Context, id uint64) (model.Registration, error)
	UpdatePayment(ctx context.Context, id uint64, status model.PaymentStatus, ref string) error
	ListRegistrations(ctx context.Context, status model.PaymentStatus) ([]model.Registration, error)
	Upload(ctx context.Context, filename, contentType string, data []byte) (uint64, error)
}

// PaidPublisher enqueues fulfillment requests.
type PaidPublisher interface {
	PublishRegistrationPaid(ctx context.Context, ev queue.RegistrationPaidEvent) error
}

// Ledger records what happened to each verified webhook event.
type Ledger interface {
	Record(ctx context.Context, rec repository.PaymentEventRecord) error
	ListFailed(ctx context.Context, limit int) ([]repository.PaymentEventRecord, error)
}

// Claims deduplicates fulfillment per registration.
type Claims interface {
	Claim(ctx context.Context, registrationID uint64, source string) (bool, error)
	Release(ctx context.Context, registrationID uint64) error
}
