// Package cms is a small client for the headless CMS collection that stores
// registrations.  The CMS speaks the Strapi v4 REST dialect: request bodies
// are wrapped in {"data": ...} and single records come back as
// {"data": {"id": N, "attributes": {...}}}.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/iliyamo/festival-registration/internal/model"
)

const (
	maxRetries   = 3
	initialDelay = 500 * time.Millisecond
	listPageSize = 100
)

// ErrNotFound is returned when the CMS answers 404 for a record.
var ErrNotFound = errors.New("cms: not found")

// APIError carries a non-2xx CMS response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cms: status %d: %s", e.Status, e.Message)
}

// Client talks to the registrations collection and the upload plugin.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client for baseURL (e.g. "https://cms.example.org/api").
// A nil httpClient selects a client with a 10 second timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

type record struct {
	ID         uint64          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

type singleResponse struct {
	Data record `json:"data"`
}

type listResponse struct {
	Data []record `json:"data"`
	Meta struct {
		Pagination struct {
			Page      int `json:"page"`
			PageCount int `json:"pageCount"`
			Total     int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

type errorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r record) registration() (model.Registration, error) {
	var reg model.Registration
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &reg); err != nil {
			return model.Registration{}, fmt.Errorf("cms: decode registration %d: %w", r.ID, err)
		}
	}
	reg.ID = r.ID
	return reg, nil
}

// CreateRegistration stores reg and returns the id assigned by the CMS.
// The call is not retried: a create is not idempotent.
func (c *Client) CreateRegistration(ctx context.Context, reg model.Registration) (uint64, error) {
	reg.ID = 0
	body, err := json.Marshal(map[string]any{"data": reg})
	if err != nil {
		return 0, fmt.Errorf("cms: marshal registration: %w", err)
	}
	var out singleResponse
	if err := c.do(ctx, http.MethodPost, "/registrations", body, "application/json", &out, false); err != nil {
		return 0, err
	}
	if out.Data.ID == 0 {
		return 0, errors.New("cms: create returned no id")
	}
	return out.Data.ID, nil
}

// GetRegistration loads a single registration.
func (c *Client) GetRegistration(ctx context.Context, id uint64) (model.Registration, error) {
	var out singleResponse
	if err := c.do(ctx, http.MethodGet, "/registrations/"+strconv.FormatUint(id, 10), nil, "", &out, true); err != nil {
		return model.Registration{}, err
	}
	return out.Data.registration()
}

// UpdatePayment overwrites the payment status and reference of a
// registration.  Repeating the call with the same values is harmless.
func (c *Client) UpdatePayment(ctx context.Context, id uint64, status model.PaymentStatus, ref string) error {
	body, err := json.Marshal(map[string]any{"data": map[string]any{
		"stato_pagamento": status,
		"id_pagamento":    ref,
	}})
	if err != nil {
		return fmt.Errorf("cms: marshal payment update: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/registrations/"+strconv.FormatUint(id, 10), body, "application/json", nil, true)
}

// ListRegistrations returns every registration in the given payment state,
// following the CMS pagination.  An empty status lists everything.
func (c *Client) ListRegistrations(ctx context.Context, status model.PaymentStatus) ([]model.Registration, error) {
	var all []model.Registration
	for page := 1; ; page++ {
		q := url.Values{}
		if status != "" {
			q.Set("filters[stato_pagamento][$eq]", string(status))
		}
		q.Set("pagination[page]", strconv.Itoa(page))
		q.Set("pagination[pageSize]", strconv.Itoa(listPageSize))
		q.Set("sort", "id:asc")

		var out listResponse
		if err := c.do(ctx, http.MethodGet, "/registrations?"+q.Encode(), nil, "", &out, true); err != nil {
			return nil, err
		}
		for _, rec := range out.Data {
			reg, err := rec.registration()
			if err != nil {
				return nil, err
			}
			all = append(all, reg)
		}
		if page >= out.Meta.Pagination.PageCount || len(out.Data) == 0 {
			return all, nil
		}
	}
}

// Upload stores a file through the upload plugin and returns its id.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (uint64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return 0, fmt.Errorf("cms: create upload part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("cms: write upload part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("cms: close upload body: %w", err)
	}

	var out []struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodPost, "/uploads", buf.Bytes(), mw.FormDataContentType(), &out, false); err != nil {
		return 0, err
	}
	if len(out) == 0 || out[0].ID == 0 {
		return 0, errors.New("cms: upload returned no file")
	}
	return out[0].ID, nil
}

// do sends one request and decodes the JSON answer into out (when not nil).
// Idempotent requests are retried with exponential backoff on transport
// errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out any, retry bool) error {
	attempts := 1
	if retry {
		attempts = maxRetries
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return fmt.Errorf("cms: build request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("cms: %s %s: %w", method, path, err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("cms: read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := string(respBody)
			var e errorResponse
			if json.Unmarshal(respBody, &e) == nil && e.Error.Message != "" {
				msg = e.Error.Message
			}
			lastErr = &APIError{Status: resp.StatusCode, Message: msg}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return lastErr
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("cms: decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}
