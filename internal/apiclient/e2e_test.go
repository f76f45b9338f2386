package apiclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/festival-registration/internal/alert"
	"github.com/iliyamo/festival-registration/internal/cms"
	"github.com/iliyamo/festival-registration/internal/draft"
	"github.com/iliyamo/festival-registration/internal/handler"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/payment/stripe"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
	"github.com/iliyamo/festival-registration/internal/router"
	"github.com/iliyamo/festival-registration/internal/service"
	"github.com/iliyamo/festival-registration/internal/wizard"
)

const webhookSecret = "whsec_e2e"

// strapi is an in-memory stand-in for the CMS REST API.
type strapi struct {
	mu      sync.Mutex
	nextID  uint64
	records map[uint64]map[string]any
	uploads int
}

func newStrapi() *strapi {
	return &strapi{records: map[uint64]map[string]any{}}
}

func (s *strapi) get(id uint64) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]any{}
	for k, v := range s.records[id] {
		out[k] = v
	}
	return out
}

func (s *strapi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodPost && path == "/uploads":
		s.uploads++
		fmt.Fprintf(w, `[{"id":%d,"name":"liberatoria.pdf"}]`, 900+s.uploads)
	case r.Method == http.MethodPost && path == "/registrations":
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.nextID++
		s.records[s.nextID] = body.Data
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": s.nextID, "attributes": body.Data}})
	case strings.HasPrefix(path, "/registrations/"):
		id, _ := strconv.ParseUint(strings.TrimPrefix(path, "/registrations/"), 10, 64)
		rec, ok := s.records[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"Not Found"}}`)
			return
		}
		if r.Method == http.MethodPut {
			var body struct {
				Data map[string]any `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for k, v := range body.Data {
				rec[k] = v
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": id, "attributes": rec}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// processor verifies webhooks with the real Stripe code and fakes the API
// calls.
type processor struct {
	*stripe.Processor
	mu      sync.Mutex
	intents map[string]payment.IntentRequest
}

func (p *processor) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("pi_e2e_%d", req.RegistrationID)
	p.intents[id] = req
	return payment.Intent{ID: id, ClientSecret: id + "_secret", Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *processor) Retrieve(_ context.Context, id string) (payment.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.intents[id]
	if !ok {
		return payment.Status{}, payment.ErrInvalidPaymentID
	}
	return payment.Status{
		ID: id, Status: "succeeded", PaymentStatus: "paid",
		Amount: req.Amount, Currency: req.Currency, PaymentRef: id,
		RegistrationID: req.RegistrationID, Flow: payment.FlowEmbedded,
	}, nil
}

type publisher struct {
	mu     sync.Mutex
	events []queue.RegistrationPaidEvent
}

func (p *publisher) PublishRegistrationPaid(_ context.Context, ev queue.RegistrationPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type ledger struct {
	mu   sync.Mutex
	recs map[string]repository.PaymentEventRecord
}

func (l *ledger) Record(_ context.Context, rec repository.PaymentEventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs[rec.ProviderEventID] = rec
	return nil
}

func (l *ledger) ListFailed(context.Context, int) ([]repository.PaymentEventRecord, error) {
	return nil, nil
}

type card struct{}

func (card) ConfirmCardPayment(_ context.Context, secret string) (string, error) {
	return strings.TrimSuffix(secret, "_secret"), nil
}

type fixedIP string

func (ip fixedIP) PublicIP(context.Context) (string, error) { return string(ip), nil }

type harness struct {
	cms    *strapi
	api    *httptest.Server
	client *Client
	pub    *publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cmsFake := newStrapi()
	cmsSrv := httptest.NewServer(cmsFake)
	t.Cleanup(cmsSrv.Close)

	store := cms.New(cmsSrv.URL+"/api", "token", cmsSrv.Client())
	proc := &processor{Processor: stripe.New("sk_test", webhookSecret), intents: map[string]payment.IntentRequest{}}
	pub := &publisher{}
	prices := model.DefaultPriceList()

	e := echo.New()
	router.RegisterAll(e, router.Handlers{
		Waiver:       handler.NewWaiverHandler(),
		Registration: handler.NewRegistrationHandler(service.NewRegistrationService(store)),
		Draft:        handler.NewDraftHandler(draft.NewMemoryStore()),
		Payment:      handler.NewPaymentHandler(service.NewPaymentService(store, proc, prices, "http://localhost:3000", pub)),
		Webhook:      handler.NewWebhookHandler(proc, service.NewReconciler(store, &ledger{recs: map[string]repository.PaymentEventRecord{}}, pub, alert.LogNotifier{})),
		Admin:        handler.NewAdminHandler(service.NewExporter(store), "", "secret", 5),
	}, router.Middleware{}, "secret")
	api := httptest.NewServer(e)
	t.Cleanup(api.Close)

	return &harness{cms: cmsFake, api: api, client: New(api.URL, api.Client()), pub: pub}
}

func (e *harness) webhook(t *testing.T, payload []byte, secret string) int {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	req, err := http.NewRequest(http.MethodPost, e.api.URL+"/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stripe.SignatureHeader, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	resp, err := e.api.Client().Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func sessionCompleted(regID uint64, code, intentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_%d","object":"event","api_version":"2023-10-16","type":"checkout.session.completed",`+
		`"data":{"object":{"id":"cs_e2e_%d","object":"checkout.session","payment_intent":%q,`+
		`"metadata":{"registrationId":"%d","codiceRegistrazione":%q,"flow":"hosted"}}}}`,
		regID, regID, intentID, regID, code))
}

func runningParticipant(r *model.Registration) {
	r.FirstName = "Giulia"
	r.LastName = "Bianchi"
	r.BirthPlace = "Lecco"
	r.BirthDate = "1988-07-03"
	r.City = "Lecco"
	r.Street = "Corso Matteotti"
	r.StreetNumber = "5"
	r.PostalCode = "23900"
	r.Email = "giulia@example.com"
	r.DocumentType = "Patente"
	r.DocumentNumber = "LC1234567"
	r.DocumentCity = "Lecco"
	r.DocumentDate = "2019-05-20"
	r.RaceType = model.RaceRunning
	r.ShirtSize = "S"
	r.MealAddOn = false
}

func TestRunningRegistrationEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	c := wizard.NewController(wizard.Options{
		Backend:   h.client,
		Drafts:    h.client.Drafts(),
		IP:        fixedIP("198.51.100.4"),
		Card:      card{},
		UserAgent: "e2e",
		Modality:  wizard.ModalityPrecision,
	})
	c.Mount(ctx)
	if err := c.Update(ctx, runningParticipant); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.NextFromPersonal(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if !bytes.HasPrefix(c.Document(), []byte("%PDF")) {
		t.Fatal("expected a rendered waiver")
	}
	if !c.ViewerScrolled(0, 0) {
		t.Fatal("expected unlock")
	}
	if err := c.SetAccepted(ctx, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	sub, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.WaiverAttached {
		t.Fatal("expected the waiver to be attached")
	}

	stored := h.cms.get(sub.ID)
	if stored["stato_pagamento"] != "in_attesa" || stored["pasta_party"] != false || stored["conteggio_pastaparty"] != float64(0) {
		t.Fatalf("unexpected stored registration %v", stored)
	}
	if stored["codiceRegistrazione"] != c.Registration().Code {
		t.Fatalf("code mismatch: %v vs %q", stored["codiceRegistrazione"], c.Registration().Code)
	}
	consent, _ := stored["log_firma"].(map[string]any)
	if consent["ip"] != "198.51.100.4" || consent["userAgent"] != "e2e" {
		t.Fatalf("unexpected consent log %v", consent)
	}

	res, err := c.PayWithCard(ctx)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.Outcome != wizard.OutcomeConfirmed || res.Warning != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.cms.get(sub.ID)["stato_pagamento"]; got != "in_attesa" {
		t.Fatalf("verification must not write the status, got %v", got)
	}

	// a forged completion is rejected and changes nothing
	payload := sessionCompleted(sub.ID, sub.Code, res.PaymentRef)
	if code := h.webhook(t, payload, "whsec_forged"); code != http.StatusBadRequest {
		t.Fatalf("forged webhook status %d", code)
	}
	if got := h.cms.get(sub.ID)["stato_pagamento"]; got != "in_attesa" {
		t.Fatalf("forged webhook mutated status to %v", got)
	}

	for i := 0; i < 2; i++ {
		if code := h.webhook(t, payload, webhookSecret); code != http.StatusOK {
			t.Fatalf("delivery %d status %d", i, code)
		}
		stored = h.cms.get(sub.ID)
		if stored["stato_pagamento"] != "completato" || stored["id_pagamento"] != res.PaymentRef {
			t.Fatalf("delivery %d: unexpected registration %v", i, stored)
		}
	}
}

func TestPendingRegistrationStaysPendingWithoutWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := wizard.NewController(wizard.Options{Backend: h.client, IP: fixedIP("198.51.100.4")})
	_ = c.Update(ctx, runningParticipant)
	if err := c.NextFromPersonal(ctx); err != nil {
		t.Fatal(err)
	}
	c.ViewerScrolled(0, 0)
	_ = c.SetAccepted(ctx, true)
	sub, err := c.Submit(ctx)
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.ConfirmReturn(ctx, "cs_unknown")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != wizard.OutcomeInvalidReference {
		t.Fatalf("unexpected outcome %+v", res)
	}
	if got := h.cms.get(sub.ID)["stato_pagamento"]; got != "in_attesa" {
		t.Fatalf("status = %v", got)
	}
}

func TestClientErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.GenerateWaiver(ctx, model.Registration{LastName: "Rossi"})
	var fe interface{ Code() string }
	if !errors.As(err, &fe) || fe.Code() != "MISSING_REQUIRED_FIELD" {
		t.Fatalf("expected missing field error, got %v", err)
	}

	_, err = h.client.SubmitRegistration(ctx, wizard.SubmitRequest{Registration: model.Registration{FirstName: "Mario"}})
	var verrs model.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		t.Fatalf("expected validation errors, got %v", err)
	}

	_, err = h.client.CreateCheckout(ctx, 404, false, 0)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	prices, err := h.client.Pricing(ctx)
	if err != nil || prices.Base[model.RaceRunning] != 1000 {
		t.Fatalf("pricing %+v %v", prices, err)
	}
}

func TestServerDrafts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.client.Drafts()

	if _, err := s.Load(ctx, draft.DefaultKey); !errors.Is(err, draft.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var reg model.Registration
	runningParticipant(&reg)
	if err := s.Save(ctx, draft.DefaultKey, draft.Snapshot{Registration: reg, Step: "dati_personali"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := s.Load(ctx, draft.DefaultKey)
	if err != nil || snap.Registration.FirstName != "Giulia" {
		t.Fatalf("load %+v %v", snap, err)
	}
	if err := s.Clear(ctx, draft.DefaultKey); err != nil {
		t.Fatalf("clear: %v", err)
	}
}
