// Package stripe implements payment.Processor on top of stripe-go.  Each
// Processor owns its own client.API; the package level stripe.Key is never
// set.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/iliyamo/festival-registration/internal/payment"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// Processor is the Stripe payment.Processor.
type Processor struct {
	api           *client.API
	webhookSecret string
}

// New returns a Processor using the live Stripe API.
func New(secretKey, webhookSecret string) *Processor {
	return NewWithBackends(secretKey, webhookSecret, nil)
}

// NewWithBackends is like New but routes API calls through the given
// backends.  Tests point them at an httptest server.
func NewWithBackends(secretKey, webhookSecret string, backends *stripego.Backends) *Processor {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Processor{api: api, webhookSecret: webhookSecret}
}

func (p *Processor) Name() string { return "stripe" }

func (p *Processor) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.Code),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			Quantity: stripego.Int64(1),
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(req.Currency),
				UnitAmount: stripego.Int64(req.Amount),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(req.Description),
				},
			},
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripego.String(req.CustomerEmail)
	}
	params.Context = ctx
	for k, v := range payment.Metadata(req.RegistrationID, req.Code, payment.FlowHosted) {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return payment.CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return payment.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *Processor) CreatePaymentIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:      stripego.Int64(req.Amount),
		Currency:    stripego.String(req.Currency),
		Description: stripego.String(req.Description),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripego.String(req.ReceiptEmail)
	}
	params.Context = ctx
	for k, v := range payment.Metadata(req.RegistrationID, req.Code, payment.FlowEmbedded) {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// Retrieve looks up a checkout session (cs_...) or a payment intent
// (pi_...).  Any other identifier is rejected without calling Stripe.
func (p *Processor) Retrieve(ctx context.Context, id string) (payment.Status, error) {
	id = strings.TrimSpace(id)
	switch {
	case strings.HasPrefix(id, "cs_"):
		params := &stripego.CheckoutSessionParams{}
		params.Context = ctx
		sess, err := p.api.CheckoutSessions.Get(id, params)
		if err != nil {
			return payment.Status{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
		}
		return sessionStatus(sess), nil
	case strings.HasPrefix(id, "pi_"):
		params := &stripego.PaymentIntentParams{}
		params.Context = ctx
		pi, err := p.api.PaymentIntents.Get(id, params)
		if err != nil {
			return payment.Status{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
		}
		return intentStatus(pi), nil
	default:
		return payment.Status{}, payment.ErrInvalidPaymentID
	}
}

func sessionStatus(s *stripego.CheckoutSession) payment.Status {
	st := payment.Status{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Amount:        s.AmountTotal,
		Currency:      string(s.Currency),
		Flow:          payment.Flow(s.Metadata[payment.MetaFlow]),
	}
	if s.PaymentIntent != nil {
		st.PaymentRef = s.PaymentIntent.ID
	}
	st.RegistrationID, _ = payment.ParseRegistrationID(s.Metadata)
	return st
}

func intentStatus(pi *stripego.PaymentIntent) payment.Status {
	paid := "unpaid"
	if pi.Status == stripego.PaymentIntentStatusSucceeded {
		paid = "paid"
	}
	st := payment.Status{
		ID:            pi.ID,
		Status:        string(pi.Status),
		PaymentStatus: paid,
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
		PaymentRef:    pi.ID,
		Flow:          payment.Flow(pi.Metadata[payment.MetaFlow]),
	}
	st.RegistrationID, _ = payment.ParseRegistrationID(pi.Metadata)
	return st
}

// ParseWebhook verifies the Stripe-Signature header and classifies the
// event.  Hosted checkouts settle on checkout.session.completed; embedded
// payments settle on payment_intent.succeeded carrying flow=embedded.
func (p *Processor) ParseWebhook(payload []byte, header http.Header) (payment.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, header.Get(SignatureHeader), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return payment.Event{}, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}
	out := payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch string(ev.Type) {
	case "checkout.session.completed":
		var s stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return out, fmt.Errorf("stripe: decode checkout session: %w", err)
		}
		id, ok := payment.ParseRegistrationID(s.Metadata)
		if !ok {
			return out, errors.New("stripe: checkout session without registration id")
		}
		out.Kind = payment.EventCheckoutCompleted
		out.RegistrationID = id
		out.Code = s.Metadata[payment.MetaCode]
		if s.PaymentIntent != nil {
			out.PaymentRef = s.PaymentIntent.ID
		}
		if out.PaymentRef == "" {
			out.PaymentRef = s.ID
		}
	case "payment_intent.succeeded":
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("stripe: decode payment intent: %w", err)
		}
		if payment.Flow(pi.Metadata[payment.MetaFlow]) != payment.FlowEmbedded {
			return out, nil
		}
		id, ok := payment.ParseRegistrationID(pi.Metadata)
		if !ok {
			return out, errors.New("stripe: payment intent without registration id")
		}
		out.Kind = payment.EventIntentSucceeded
		out.RegistrationID = id
		out.Code = pi.Metadata[payment.MetaCode]
		out.PaymentRef = pi.ID
	}
	return out, nil
}
