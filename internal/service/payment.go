package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/festival-registration/internal/cms"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/utils"
)

// Return paths on the public site.  The processor substitutes
// {CHECKOUT_SESSION_ID} before redirecting.
const (
	successPath = "/iscrizione/successo?session_id={CHECKOUT_SESSION_ID}"
	cancelPath  = "/iscrizione?annullato=1"
)

// CheckoutInput selects the registration to pay.  MealAddOn and MealCount
// are optional echoes of the client's selection; when present they must
// match the stored registration.
type CheckoutInput struct {
	RegistrationID uint64
	MealAddOn      *bool
	MealCount      *int
}

// IntentInput requests an embedded card payment.
type IntentInput struct {
	RegistrationID uint64
	ReceiptEmail   string
}

// VerifyResult is the read-only verification answer.
type VerifyResult struct {
	payment.Status
	FulfillmentQueued bool
}

// PaymentService creates processor objects with server computed amounts
// and verifies their state.  It never writes the payment status.
type PaymentService struct {
	store   RegistrationStore
	proc    payment.Processor
	prices  model.PriceList
	baseURL string
	pub     PaidPublisher
}

// NewPaymentService wires the payment workflow.  publicBaseURL is the site
// origin used for the hosted checkout return URLs.
func NewPaymentService(store RegistrationStore, proc payment.Processor, prices model.PriceList, publicBaseURL string, pub PaidPublisher) *PaymentService {
	if store == nil || proc == nil || pub == nil {
		panic("nil dependency")
	}
	return &PaymentService{store: store, proc: proc, prices: prices, baseURL: publicBaseURL, pub: pub}
}

// Prices returns the price list used for every charge.
func (s *PaymentService) Prices() model.PriceList { return s.prices }

// priced loads the registration and computes the amount to charge.
func (s *PaymentService) priced(ctx context.Context, id uint64, addOn *bool, count *int) (model.Registration, int64, error) {
	reg, err := s.store.GetRegistration(ctx, id)
	if errors.Is(err, cms.ErrNotFound) {
		return model.Registration{}, 0, ErrRegistrationNotFound
	}
	if err != nil {
		return model.Registration{}, 0, fmt.Errorf("load registration %d: %w", id, err)
	}
	if reg.PaymentStatus == model.PaymentCompleted {
		return model.Registration{}, 0, ErrAlreadyPaid
	}
	if !reg.Billable() {
		return model.Registration{}, 0, ErrNotBillable
	}
	if addOn != nil && *addOn != reg.MealAddOn {
		return model.Registration{}, 0, ErrSelectionMismatch
	}
	if count != nil && reg.MealAddOn && *count != reg.MealCount {
		return model.Registration{}, 0, ErrSelectionMismatch
	}
	amount, err := s.prices.TotalFor(reg)
	if err != nil {
		return model.Registration{}, 0, fmt.Errorf("%w: %v", ErrNotBillable, err)
	}
	return reg, amount, nil
}

// CreateCheckout opens a hosted checkout session for the registration.
func (s *PaymentService) CreateCheckout(ctx context.Context, in CheckoutInput) (payment.CheckoutSession, error) {
	reg, amount, err := s.priced(ctx, in.RegistrationID, in.MealAddOn, in.MealCount)
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	sess, err := s.proc.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		RegistrationID: reg.ID,
		Code:           reg.Code,
		Description:    model.Describe(reg),
		Amount:         amount,
		Currency:       s.prices.Currency,
		CustomerEmail:  reg.Email,
		SuccessURL:     s.baseURL + successPath,
		CancelURL:      s.baseURL + cancelPath,
		IdempotencyKey: payment.IdempotencyKey(reg.ID, payment.FlowHosted, amount),
	})
	if err != nil {
		return payment.CheckoutSession{}, err
	}
	log.Printf("payment: checkout session %s for registration %d amount=%d", sess.ID, reg.ID, amount)
	return sess, nil
}

// CreateIntent creates a payment intent for the embedded card flow.
func (s *PaymentService) CreateIntent(ctx context.Context, in IntentInput) (payment.Intent, error) {
	reg, amount, err := s.priced(ctx, in.RegistrationID, nil, nil)
	if err != nil {
		return payment.Intent{}, err
	}
	email := in.ReceiptEmail
	if email == "" {
		email = reg.Email
	}
	intent, err := s.proc.CreatePaymentIntent(ctx, payment.IntentRequest{
		RegistrationID: reg.ID,
		Code:           reg.Code,
		Description:    fmt.Sprintf("%s (%s)", model.Describe(reg), model.FormatAmount(amount)),
		Amount:         amount,
		Currency:       s.prices.Currency,
		ReceiptEmail:   email,
		IdempotencyKey: payment.IdempotencyKey(reg.ID, payment.FlowEmbedded, amount),
	})
	if err != nil {
		return payment.Intent{}, err
	}
	log.Printf("payment: intent %s for registration %d amount=%d", intent.ID, reg.ID, amount)
	return intent, nil
}

// Verify reports the processor state of a session or intent.  A paid
// result enqueues the confirmation email; an enqueue failure only clears
// FulfillmentQueued.  Verify never updates the registration.
func (s *PaymentService) Verify(ctx context.Context, id string) (VerifyResult, error) {
	st, err := s.proc.Retrieve(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}
	out := VerifyResult{Status: st}
	if st.Paid() && st.RegistrationID != 0 {
		res := utils.Try(func() (struct{}, error) {
			return struct{}{}, s.pub.PublishRegistrationPaid(ctx, queue.RegistrationPaidEvent{
				RegistrationID: st.RegistrationID,
				PaymentRef:     st.PaymentRef,
				Source:         queue.SourceVerify,
				PaidAt:         time.Now().UTC().Format(time.RFC3339),
			})
		}).Logged("payment: fulfillment enqueue")
		out.FulfillmentQueued = res.Ok()
	}
	return out, nil
}
