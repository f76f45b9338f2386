package wizard

import (
	"context"

	"github.com/iliyamo/festival-registration/internal/model"
)

// SubmitRequest is the final registration snapshot sent for persistence.
type SubmitRequest struct {
	Registration model.Registration
	WaiverPDF    []byte
	IP           string
	UserAgent    string
}

// Submitted is the persisted registration as acknowledged by the server.
type Submitted struct {
	ID             uint64
	Code           string
	Status         model.PaymentStatus
	WaiverAttached bool
}

// Checkout is a hosted checkout session.
type Checkout struct {
	SessionID string
	URL       string
}

// Intent is an embedded card payment awaiting confirmation.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

// Verification is the read-only processor state of a session or intent.
type Verification struct {
	Status            string
	PaymentStatus     string
	Amount            int64
	Currency          string
	FulfillmentQueued bool
}

// Paid reports whether the processor considers the payment settled.
func (v Verification) Paid() bool { return v.PaymentStatus == "paid" }

// Backend is the server API the wizard talks to.  Implementations must
// return model.ValidationErrors for rejected submissions and wrap
// payment.ErrInvalidPaymentID when verification rejects the id.
type Backend interface {
	GenerateWaiver(ctx context.Context, reg model.Registration) ([]byte, error)
	SubmitRegistration(ctx context.Context, req SubmitRequest) (Submitted, error)
	CreateCheckout(ctx context.Context, registrationID uint64, mealAddOn bool, mealCount int) (Checkout, error)
	CreatePaymentIntent(ctx context.Context, registrationID uint64, receiptEmail string) (Intent, error)
	VerifyPayment(ctx context.Context, id string) (Verification, error)
}

// CardConfirmer confirms a card payment against an intent's client secret
// and returns the confirmed intent id.  Any error is a decline or a
// processor side confirmation failure.
type CardConfirmer interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string) (intentID string, err error)
}

// IPLookup resolves the participant's public address for the consent log.
type IPLookup interface {
	PublicIP(ctx context.Context) (string, error)
}
