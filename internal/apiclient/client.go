// Package apiclient is the HTTP client of the registration API.  It
// implements wizard.Backend for front ends written in Go and for the end
// to end tests.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/festival-registration/internal/draft"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/waiver"
	"github.com/iliyamo/festival-registration/internal/wizard"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status  int
	Message string
	Code    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// errorBody is the shape of every error answer.
type errorBody struct {
	Error  string                 `json:"error"`
	Code   string                 `json:"code"`
	Field  string                 `json:"field"`
	Fields model.ValidationErrors `json:"fields"`
}

// Client talks to the registration API at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ wizard.Backend = (*Client)(nil)

// New returns a Client.  A nil httpClient uses a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// do sends body as JSON and returns the raw answer of a 2xx response.
// Error answers are decoded into *StatusError, or model.ValidationErrors
// when the server reports field errors.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, http.Header, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("api: marshal: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, application/pdf")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("api: read body: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, resp.Header, nil
	}

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	if len(eb.Fields) > 0 {
		return nil, nil, eb.Fields
	}
	msg := eb.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	se := &StatusError{Status: resp.StatusCode, Message: msg, Code: eb.Code}
	if eb.Code == waiver.CodeMissingRequiredField {
		return nil, nil, fmt.Errorf("%w: %w", &waiver.FieldError{Field: eb.Field}, se)
	}
	return nil, nil, se
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	raw, _, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

// GenerateWaiver renders the waiver PDF for reg.
func (c *Client) GenerateWaiver(ctx context.Context, reg model.Registration) ([]byte, error) {
	raw, hdr, err := c.do(ctx, http.MethodPost, "/v1/waiver", reg)
	if err != nil {
		return nil, err
	}
	if ct := hdr.Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		return nil, fmt.Errorf("api: unexpected waiver content type %q", ct)
	}
	return raw, nil
}

// SubmitRegistration persists the registration.
func (c *Client) SubmitRegistration(ctx context.Context, req wizard.SubmitRequest) (wizard.Submitted, error) {
	body := map[string]any{
		"registration": req.Registration,
		"ip":           req.IP,
		"user_agent":   req.UserAgent,
	}
	if len(req.WaiverPDF) > 0 {
		body["waiver_pdf"] = req.WaiverPDF
	}
	var out struct {
		ID             uint64              `json:"id"`
		Code           string              `json:"codiceRegistrazione"`
		Status         model.PaymentStatus `json:"stato_pagamento"`
		WaiverAttached bool                `json:"liberatoria_allegata"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/registrations", body, &out); err != nil {
		return wizard.Submitted{}, err
	}
	return wizard.Submitted{ID: out.ID, Code: out.Code, Status: out.Status, WaiverAttached: out.WaiverAttached}, nil
}

// CreateCheckout starts a hosted checkout for the registration.
func (c *Client) CreateCheckout(ctx context.Context, registrationID uint64, mealAddOn bool, mealCount int) (wizard.Checkout, error) {
	body := map[string]any{
		"registration_id":      registrationID,
		"pasta_party":          mealAddOn,
		"conteggio_pastaparty": mealCount,
	}
	var out struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/checkout", body, &out); err != nil {
		return wizard.Checkout{}, err
	}
	return wizard.Checkout{SessionID: out.SessionID, URL: out.URL}, nil
}

// CreatePaymentIntent starts an embedded card payment.
func (c *Client) CreatePaymentIntent(ctx context.Context, registrationID uint64, receiptEmail string) (wizard.Intent, error) {
	body := map[string]any{"registration_id": registrationID, "receipt_email": receiptEmail}
	var out struct {
		ClientSecret string `json:"client_secret"`
		ID           string `json:"payment_intent_id"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/payment-intents", body, &out); err != nil {
		return wizard.Intent{}, err
	}
	return wizard.Intent{ID: out.ID, ClientSecret: out.ClientSecret, Amount: out.Amount, Currency: out.Currency}, nil
}

// VerifyPayment reads the processor state of a session or intent.  A 400
// answer wraps payment.ErrInvalidPaymentID.
func (c *Client) VerifyPayment(ctx context.Context, id string) (wizard.Verification, error) {
	var out struct {
		Status            string `json:"status"`
		PaymentStatus     string `json:"payment_status"`
		Amount            int64  `json:"amount"`
		Currency          string `json:"currency"`
		FulfillmentQueued bool   `json:"fulfillment_queued"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/payments/verify?id="+url.QueryEscape(id), nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusBadRequest {
		return wizard.Verification{}, fmt.Errorf("%w: %w", payment.ErrInvalidPaymentID, se)
	}
	if err != nil {
		return wizard.Verification{}, err
	}
	return wizard.Verification{
		Status:            out.Status,
		PaymentStatus:     out.PaymentStatus,
		Amount:            out.Amount,
		Currency:          out.Currency,
		FulfillmentQueued: out.FulfillmentQueued,
	}, nil
}

// Pricing returns the server price list, for display only.
func (c *Client) Pricing(ctx context.Context) (model.PriceList, error) {
	var out model.PriceList
	err := c.doJSON(ctx, http.MethodGet, "/v1/pricing", nil, &out)
	return out, err
}

// DraftStore is a draft.Store backed by the server side draft endpoints.
type DraftStore struct {
	c *Client
}

var _ draft.Store = (*DraftStore)(nil)

// Drafts returns the server side draft store.
func (c *Client) Drafts() *DraftStore { return &DraftStore{c: c} }

func (s *DraftStore) Load(ctx context.Context, key string) (draft.Snapshot, error) {
	var snap draft.Snapshot
	err := s.c.doJSON(ctx, http.MethodGet, "/v1/drafts/"+url.PathEscape(key), nil, &snap)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return draft.Snapshot{}, draft.ErrNotFound
	}
	return snap, err
}

func (s *DraftStore) Save(ctx context.Context, key string, snap draft.Snapshot) error {
	return s.c.doJSON(ctx, http.MethodPut, "/v1/drafts/"+url.PathEscape(key), snap, nil)
}

func (s *DraftStore) Clear(ctx context.Context, key string) error {
	return s.c.doJSON(ctx, http.MethodDelete, "/v1/drafts/"+url.PathEscape(key), nil, nil)
}
