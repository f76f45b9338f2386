// Package payment defines the processor abstraction used by the checkout,
// verification and webhook paths.  A Processor is built once at start-up
// and injected; nothing in this package holds global client state.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature is returned by ParseWebhook when the payload was
	// not signed with the shared secret.  The body must not be processed.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidPaymentID is returned by Retrieve for an empty or
	// unrecognised session/intent identifier.
	ErrInvalidPaymentID = errors.New("payment: invalid payment id")
)

// Flow tags which strategy created a processor object.
type Flow string

const (
	FlowHosted   Flow = "hosted"   // redirect checkout
	FlowEmbedded Flow = "embedded" // card element confirmed in the page
)

// Metadata keys attached to every processor object.
const (
	MetaRegistrationID = "registrationId"
	MetaCode           = "codiceRegistrazione"
	MetaFlow           = "flow"
)

// CheckoutRequest describes a hosted checkout session.
type CheckoutRequest struct {
	RegistrationID uint64
	Code           string
	Description    string // line item name
	Amount         int64  // minor units
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// CheckoutSession is the created hosted session.
type CheckoutSession struct {
	ID  string
	URL string
}

// IntentRequest describes an embedded card payment.
type IntentRequest struct {
	RegistrationID uint64
	Code           string
	Description    string
	Amount         int64
	Currency       string
	ReceiptEmail   string
	IdempotencyKey string
}

// Intent is the created payment intent.  ClientSecret is handed to the
// browser to confirm the card.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Status is the read-only view returned by Retrieve.
type Status struct {
	ID             string
	Status         string // processor object status, e.g. "complete" or "succeeded"
	PaymentStatus  string // "paid" or "unpaid"
	Amount         int64
	Currency       string
	PaymentRef     string // payment intent id
	RegistrationID uint64 // from metadata, zero when absent
	Flow           Flow
}

// Paid reports whether the processor considers the payment settled.
func (s Status) Paid() bool { return s.PaymentStatus == "paid" }

// EventKind classifies verified webhook events.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventCheckoutCompleted
	EventIntentSucceeded
)

// Event is a verified webhook notification.
type Event struct {
	ID             string
	Type           string // processor event type
	Kind           EventKind
	RegistrationID uint64
	Code           string
	PaymentRef     string
}

// Settles reports whether the event marks a registration as paid.
func (e Event) Settles() bool {
	return e.Kind == EventCheckoutCompleted || e.Kind == EventIntentSucceeded
}

// Processor is the payment processor contract.
type Processor interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Retrieve(ctx context.Context, id string) (Status, error)
	ParseWebhook(payload []byte, header http.Header) (Event, error)
}

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("festival-registration/payments"))

// IdempotencyKey derives a stable key for a create call, so a retried
// request for the same registration, strategy and amount reuses the
// processor object instead of creating a second one.
func IdempotencyKey(registrationID uint64, flow Flow, amount int64) string {
	name := fmt.Sprintf("%d/%s/%d", registrationID, flow, amount)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// ParseRegistrationID reads the registration id from processor metadata.
func ParseRegistrationID(meta map[string]string) (uint64, bool) {
	v, ok := meta[MetaRegistrationID]
	if !ok || v == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Metadata builds the metadata map attached to processor objects.
func Metadata(registrationID uint64, code string, flow Flow) map[string]string {
	return map[string]string{
		MetaRegistrationID: strconv.FormatUint(registrationID, 10),
		MetaCode:           code,
		MetaFlow:           string(flow),
	}
}
