package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/iliyamo/festival-registration/internal/cms"
	"github.com/iliyamo/festival-registration/internal/mailer"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
)

// memStore is an in-memory RegistrationStore with injectable failures.
type memStore struct {
	mu        sync.Mutex
	nextID    uint64
	regs      map[uint64]model.Registration
	uploads   int
	updates   int
	createErr error
	uploadErr error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, regs: map[uint64]model.Registration{}}
}

func (s *memStore) CreateRegistration(_ context.Context, reg model.Registration) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return 0, s.createErr
	}
	id := s.nextID
	s.nextID++
	reg.ID = id
	s.regs[id] = reg
	return id, nil
}

func (s *memStore) GetRegistration(_ context.Context, id uint64) (model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return model.Registration{}, cms.ErrNotFound
	}
	return reg, nil
}

func (s *memStore) UpdatePayment(_ context.Context, id uint64, status model.PaymentStatus, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	reg, ok := s.regs[id]
	if !ok {
		return cms.ErrNotFound
	}
	reg.PaymentStatus = status
	reg.PaymentRef = ref
	s.regs[id] = reg
	return nil
}

func (s *memStore) ListRegistrations(_ context.Context, status model.PaymentStatus) ([]model.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Registration
	for id := uint64(1); id < s.nextID; id++ {
		reg, ok := s.regs[id]
		if ok && (status == "" || reg.PaymentStatus == status) {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (s *memStore) Upload(_ context.Context, _, _ string, _ []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return 0, s.uploadErr
	}
	s.uploads++
	return 900 + uint64(s.uploads), nil
}

func (s *memStore) put(reg model.Registration) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	reg.ID = id
	s.regs[id] = reg
	return id
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.RegistrationPaidEvent
	err    error
}

func (p *fakePublisher) PublishRegistrationPaid(_ context.Context, ev queue.RegistrationPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]repository.PaymentEventRecord
	err     error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]repository.PaymentEventRecord{}}
}

func (l *fakeLedger) Record(_ context.Context, rec repository.PaymentEventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	prev := l.records[rec.ProviderEventID]
	rec.Attempts = prev.Attempts + 1
	l.records[rec.ProviderEventID] = rec
	return nil
}

func (l *fakeLedger) ListFailed(_ context.Context, _ int) ([]repository.PaymentEventRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []repository.PaymentEventRecord
	for _, rec := range l.records {
		if rec.Outcome == repository.OutcomeFailed {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeClaims struct {
	mu      sync.Mutex
	claimed map[uint64]bool
}

func newFakeClaims() *fakeClaims { return &fakeClaims{claimed: map[uint64]bool{}} }

func (c *fakeClaims) Claim(_ context.Context, id uint64, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed[id] {
		return false, nil
	}
	c.claimed[id] = true
	return true, nil
}

func (c *fakeClaims) Release(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, id)
	return nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeNotifier struct{ texts []string }

func (n *fakeNotifier) Notify(_ context.Context, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

// fakeProcessor records create requests and answers Retrieve from a map.
type fakeProcessor struct {
	CheckoutFunc func(payment.CheckoutRequest) (payment.CheckoutSession, error)
	IntentFunc   func(payment.IntentRequest) (payment.Intent, error)
	statuses     map[string]payment.Status
	retrieveErr  error
	checkouts    []payment.CheckoutRequest
	intents      []payment.IntentRequest
}

func (p *fakeProcessor) Name() string { return "fake" }

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	p.checkouts = append(p.checkouts, req)
	if p.CheckoutFunc != nil {
		return p.CheckoutFunc(req)
	}
	return payment.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (p *fakeProcessor) CreatePaymentIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	p.intents = append(p.intents, req)
	if p.IntentFunc != nil {
		return p.IntentFunc(req)
	}
	return payment.Intent{ID: "pi_test_1", ClientSecret: "pi_test_1_secret", Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *fakeProcessor) Retrieve(_ context.Context, id string) (payment.Status, error) {
	if p.retrieveErr != nil {
		return payment.Status{}, p.retrieveErr
	}
	st, ok := p.statuses[id]
	if !ok {
		return payment.Status{}, payment.ErrInvalidPaymentID
	}
	return st, nil
}

func (p *fakeProcessor) ParseWebhook(_ []byte, _ http.Header) (payment.Event, error) {
	return payment.Event{}, payment.ErrInvalidSignature
}

func testRegistration() model.Registration {
	return model.Registration{
		Code:           "AB12CD34EF",
		FirstName:      "Mario",
		LastName:       "Rossi",
		BirthPlace:     "Bergamo",
		BirthDate:      "1990-04-12",
		City:           "Bergamo",
		Street:         "Via Roma",
		StreetNumber:   "10",
		PostalCode:     "24100",
		Email:          "mario.rossi@example.com",
		DocumentType:   "Carta d'identità",
		DocumentNumber: "CA12345AB",
		DocumentCity:   "Bergamo",
		DocumentDate:   "2020-01-02",
		RaceType:       model.RaceRunning,
		ShirtSize:      "M",
		WaiverAccepted: true,
	}
}
