package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/festival-registration/internal/draft"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/utils"
)

// Step is a wizard page.
type Step int

const (
	StepPersonal Step = iota
	StepWaiver
	StepPayment
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPersonal:
		return "dati_personali"
	case StepWaiver:
		return "liberatoria"
	case StepPayment:
		return "pagamento"
	case StepDone:
		return "completato"
	}
	return "unknown"
}

var (
	ErrBusy              = errors.New("wizard: another operation is in progress")
	ErrWrongStep         = errors.New("wizard: operation not allowed in the current step")
	ErrCannotGoBack      = errors.New("wizard: cannot go back from this step")
	ErrWaiverNotRead     = errors.New("wizard: waiver has not been read")
	ErrWaiverNotAccepted = errors.New("wizard: waiver has not been accepted")
	ErrCancelled         = errors.New("wizard: operation cancelled by navigation")
	ErrNoCardConfirmer   = errors.New("wizard: card payments are not configured")
)

// Outcome classifies what the participant is told after a payment step.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota + 1
	OutcomeNotCompleted
	OutcomeUnconfirmed
	OutcomeInvalidReference
	OutcomeDeclined
)

// Message is the plain language text for o.
func (o Outcome) Message() string {
	switch o {
	case OutcomeConfirmed:
		return "Pagamento confermato, grazie per la tua iscrizione!"
	case OutcomeNotCompleted:
		return "Il pagamento non risulta completato. Puoi riprovare."
	case OutcomeUnconfirmed:
		return "Non siamo riusciti a confermare il pagamento, contatta il supporto."
	case OutcomeInvalidReference:
		return "Riferimento di pagamento non valido."
	case OutcomeDeclined:
		return "Pagamento rifiutato."
	}
	return ""
}

// Warning texts shown next to a confirmed card payment.
const (
	warnUnverified   = "Il pagamento è stato autorizzato ma non siamo riusciti a confermarlo, contatta il supporto se non ricevi la email."
	warnNoEmailQueue = "Il pagamento è confermato ma la email di conferma potrebbe arrivare in ritardo."
)

// PaymentResult is the display state after a payment action.
type PaymentResult struct {
	Outcome    Outcome
	Message    string
	Warning    string
	PaymentRef string
}

func result(o Outcome) PaymentResult {
	return PaymentResult{Outcome: o, Message: o.Message()}
}

// Options configures a Controller.  Backend is required; every other
// collaborator is optional.
type Options struct {
	Backend   Backend
	Drafts    draft.Store
	DraftKey  string
	IP        IPLookup
	Card      CardConfirmer
	UserAgent string
	Modality  Modality
	NewCode   func() (string, error)
}

// Controller is one participant's wizard session.  Methods may be called
// from several goroutines: network calls run outside the lock, and Back
// cancels whatever is in flight.
type Controller struct {
	backend   Backend
	drafts    draft.Store
	draftKey  string
	ip        IPLookup
	card      CardConfirmer
	userAgent string
	modality  Modality
	newCode   func() (string, error)

	mu        sync.Mutex
	step      Step
	reg       model.Registration
	gate      *Gate
	pdf       []byte
	submitted Submitted
	fieldErrs model.ValidationErrors
	busy      bool
	cancel    context.CancelFunc
	epoch     uint64
}

// NewController panics on a nil Backend.
func NewController(opts Options) *Controller {
	if opts.Backend == nil {
		panic("nil backend")
	}
	if opts.DraftKey == "" {
		opts.DraftKey = draft.DefaultKey
	}
	if opts.NewCode == nil {
		opts.NewCode = utils.NewRegistrationCode
	}
	return &Controller{
		backend:   opts.Backend,
		drafts:    opts.Drafts,
		draftKey:  opts.DraftKey,
		ip:        opts.IP,
		card:      opts.Card,
		userAgent: opts.UserAgent,
		modality:  opts.Modality,
		newCode:   opts.NewCode,
	}
}

// begin marks the controller busy.  Callers hold mu.
func (c *Controller) begin(ctx context.Context) (context.Context, uint64, error) {
	if c.busy {
		return nil, 0, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	return ctx, c.epoch, nil
}

// end clears the busy flag and reports whether the operation started at
// epoch is still current.  Callers hold mu.
func (c *Controller) end(epoch uint64) bool {
	if epoch != c.epoch {
		return false
	}
	c.busy = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return true
}

// save overwrites the cached snapshot.  Callers hold mu.
func (c *Controller) save(ctx context.Context) {
	if c.drafts == nil {
		return
	}
	snap := draft.Snapshot{Registration: c.reg, Step: c.step.String(), SavedAt: time.Now().UTC()}
	utils.Try(func() (struct{}, error) {
		return struct{}{}, c.drafts.Save(ctx, c.draftKey, snap)
	}).Logged("wizard: draft save")
}

// Mount restores the cached form, if any, and reports whether it did.
// A snapshot of a persisted registration resumes on the payment step, so
// a participant coming back from the hosted checkout keeps the same
// registration.  Any other snapshot resumes on the personal step: the
// waiver document is never cached and must be generated and read again.
func (c *Controller) Mount(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = StepPersonal
	c.gate = nil
	c.pdf = nil
	c.submitted = Submitted{}
	c.fieldErrs = nil
	if c.drafts == nil {
		return false
	}
	snap, err := c.drafts.Load(ctx, c.draftKey)
	if err != nil {
		if !errors.Is(err, draft.ErrNotFound) {
			log.Printf("wizard: draft load failed (non-fatal): %v", err)
		}
		return false
	}
	c.reg = snap.Registration
	if c.reg.ID != 0 {
		c.step = StepPayment
		c.submitted = Submitted{ID: c.reg.ID, Code: c.reg.Code, Status: c.reg.PaymentStatus}
		return true
	}
	c.reg.WaiverAccepted = false
	return true
}

// finish moves to the done step and drops the cached snapshot.  Callers
// hold mu.
func (c *Controller) finish(ctx context.Context) {
	c.step = StepDone
	if c.drafts != nil {
		utils.Try(func() (struct{}, error) {
			return struct{}{}, c.drafts.Clear(ctx, c.draftKey)
		}).Logged("wizard: draft clear")
	}
}

// Step returns the current page.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Registration returns a copy of the form.
func (c *Controller) Registration() model.Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg
}

// Busy reports whether a network call is in flight.  Advance controls are
// disabled while it is true.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// FieldErrors returns the last validation errors.
func (c *Controller) FieldErrors() model.ValidationErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fieldErrs
}

// Phase returns the waiver gate phase, PhaseIdle outside the waiver step.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate == nil {
		return PhaseIdle
	}
	return c.gate.Phase()
}

// Document returns the generated waiver PDF, nil when none is current.
func (c *Controller) Document() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pdf
}

// Submitted returns the persisted registration once Submit succeeded.
func (c *Controller) Submitted() Submitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted
}

// Update applies fn to the form and caches the complete snapshot.  The
// code and payment fields cannot be changed.  On the waiver step the
// current document is discarded and a new one generated.
func (c *Controller) Update(ctx context.Context, fn func(*model.Registration)) error {
	c.mu.Lock()
	if c.step >= StepPayment {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	code, id, status, ref := c.reg.Code, c.reg.ID, c.reg.PaymentStatus, c.reg.PaymentRef
	fn(&c.reg)
	c.reg.Code, c.reg.ID, c.reg.PaymentStatus, c.reg.PaymentRef = code, id, status, ref

	regenerate := c.step == StepWaiver
	if regenerate {
		c.reg.NormalizeMeal()
		c.pdf = nil
		c.reg.WaiverAccepted = false
	}
	c.save(ctx)
	c.mu.Unlock()

	if regenerate {
		return c.generate(ctx)
	}
	return nil
}

// NextFromPersonal validates the personal step and enters the waiver step.
func (c *Controller) NextFromPersonal(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPersonal {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.reg.Trim()
	c.reg.NormalizeMeal()
	if errs := model.ValidatePersonal(c.reg); len(errs) > 0 {
		c.fieldErrs = errs
		c.mu.Unlock()
		return errs
	}
	c.fieldErrs = nil
	c.step = StepWaiver
	c.gate = NewGate(c.modality)
	c.pdf = nil
	c.reg.WaiverAccepted = false
	c.save(ctx)
	c.mu.Unlock()

	return c.generate(ctx)
}

// RetryWaiver regenerates the document after a failure.
func (c *Controller) RetryWaiver(ctx context.Context) error {
	c.mu.Lock()
	ok := c.step == StepWaiver && c.gate != nil && c.gate.Phase() == PhaseFailed
	c.mu.Unlock()
	if !ok {
		return ErrWrongStep
	}
	return c.generate(ctx)
}

func (c *Controller) generate(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepWaiver || c.gate == nil {
		c.mu.Unlock()
		return ErrWrongStep
	}
	ctx, epoch, err := c.begin(ctx)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.gate.Begin()
	reg := c.reg
	c.mu.Unlock()

	pdf, err := c.backend.GenerateWaiver(ctx, reg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.end(epoch) {
		return ErrCancelled
	}
	if err != nil {
		c.gate.GenerationFailed()
		return fmt.Errorf("generate waiver: %w", err)
	}
	c.pdf = pdf
	c.gate.Generated()
	return nil
}

// OpenDocument records that the participant opened the document in its
// own viewer (touch devices).  It returns true when the gate unlocked.
func (c *Controller) OpenDocument() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepWaiver || c.gate == nil {
		return false
	}
	return c.gate.OpenDocument()
}

// ViewerScrolled forwards the embedded viewer's scroll position (precision
// devices).  It returns true when the gate unlocked.
func (c *Controller) ViewerScrolled(pos, max float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepWaiver || c.gate == nil {
		return false
	}
	return c.gate.ViewerScrolled(pos, max)
}

// CheckboxEnabled reports whether the acceptance checkbox may be enabled.
func (c *Controller) CheckboxEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step == StepWaiver && c.gate != nil && c.gate.CheckboxEnabled()
}

// SetAccepted ticks or clears the acceptance checkbox.  Ticking is refused
// while the gate is locked.
func (c *Controller) SetAccepted(ctx context.Context, accepted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepWaiver || c.gate == nil {
		return ErrWrongStep
	}
	if accepted && !c.gate.CheckboxEnabled() {
		return ErrWaiverNotRead
	}
	c.reg.WaiverAccepted = accepted
	c.save(ctx)
	return nil
}

// Submit persists the registration and moves to the payment step.  The
// registration code is generated on the first attempt and reused by
// every retry.  On failure the wizard stays on the waiver step.  The
// cached snapshot keeps the persisted id until the payment is confirmed.
func (c *Controller) Submit(ctx context.Context) (Submitted, error) {
	c.mu.Lock()
	if c.step != StepWaiver || c.gate == nil {
		c.mu.Unlock()
		return Submitted{}, ErrWrongStep
	}
	if c.busy {
		c.mu.Unlock()
		return Submitted{}, ErrBusy
	}
	if !c.gate.CheckboxEnabled() {
		c.mu.Unlock()
		return Submitted{}, ErrWaiverNotRead
	}
	if !c.reg.WaiverAccepted {
		c.mu.Unlock()
		return Submitted{}, ErrWaiverNotAccepted
	}
	// the selection may have changed on the waiver step
	c.reg.Trim()
	c.reg.NormalizeMeal()
	if errs := model.ValidatePersonal(c.reg); len(errs) > 0 {
		c.fieldErrs = errs
		c.mu.Unlock()
		return Submitted{}, errs
	}
	c.fieldErrs = nil
	if c.reg.Code == "" {
		code, err := c.newCode()
		if err != nil {
			c.mu.Unlock()
			return Submitted{}, fmt.Errorf("generate registration code: %w", err)
		}
		c.reg.Code = code
		c.save(ctx)
	}
	callCtx, epoch, err := c.begin(ctx)
	if err != nil {
		c.mu.Unlock()
		return Submitted{}, err
	}
	c.gate.submitting()
	req := SubmitRequest{Registration: c.reg, WaiverPDF: c.pdf, UserAgent: c.userAgent}
	c.mu.Unlock()

	req.IP = model.UnknownIP
	if c.ip != nil {
		req.IP = utils.Try(func() (string, error) {
			return c.ip.PublicIP(callCtx)
		}).Logged("wizard: ip lookup").OrElse(model.UnknownIP)
	}
	res, err := c.backend.SubmitRegistration(callCtx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.end(epoch) {
		return Submitted{}, ErrCancelled
	}
	if err != nil {
		c.gate.submitted(false)
		var verrs model.ValidationErrors
		if errors.As(err, &verrs) {
			c.fieldErrs = verrs
		}
		return Submitted{}, fmt.Errorf("submit registration: %w", err)
	}
	c.gate.submitted(true)
	c.submitted = res
	c.reg.ID = res.ID
	c.reg.PaymentStatus = res.Status
	c.step = StepPayment
	c.save(ctx)
	return res, nil
}

// paymentCall starts a payment step call.  Callers must not hold mu.
func (c *Controller) paymentCall(ctx context.Context, steps ...Step) (context.Context, uint64, model.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allowed := false
	for _, s := range steps {
		if c.step == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, 0, model.Registration{}, ErrWrongStep
	}
	callCtx, epoch, err := c.begin(ctx)
	if err != nil {
		return nil, 0, model.Registration{}, err
	}
	return callCtx, epoch, c.reg, nil
}

// StartHostedCheckout creates a hosted checkout session and returns the
// URL to redirect to.  The amount is computed by the server.
func (c *Controller) StartHostedCheckout(ctx context.Context) (string, error) {
	callCtx, epoch, reg, err := c.paymentCall(ctx, StepPayment)
	if err != nil {
		return "", err
	}
	co, err := c.backend.CreateCheckout(callCtx, reg.ID, reg.MealAddOn, reg.MealCount)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.end(epoch) {
		return "", ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	return co.URL, nil
}

// ConfirmReturn verifies a session after the processor redirected back.
// The answer is informational: the webhook marks the registration paid.
// It is read-only and allowed on every step, since the return page may
// run on a wizard that restored nothing.
func (c *Controller) ConfirmReturn(ctx context.Context, sessionID string) (PaymentResult, error) {
	callCtx, epoch, _, err := c.paymentCall(ctx, StepPersonal, StepWaiver, StepPayment, StepDone)
	if err != nil {
		return PaymentResult{}, err
	}
	v, err := c.backend.VerifyPayment(callCtx, sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.end(epoch) {
		return PaymentResult{}, ErrCancelled
	}
	switch {
	case errors.Is(err, payment.ErrInvalidPaymentID):
		return result(OutcomeInvalidReference), nil
	case err != nil:
		log.Printf("wizard: verify %s: %v", sessionID, err)
		return result(OutcomeUnconfirmed), nil
	case !v.Paid():
		return result(OutcomeNotCompleted), nil
	}
	c.finish(ctx)
	r := result(OutcomeConfirmed)
	r.PaymentRef = sessionID
	return r, nil
}

// PayWithCard runs the embedded card flow: create the intent, confirm the
// card, then verify.  A confirmed card payment always ends in
// OutcomeConfirmed; a failed verification only adds a warning.  A decline
// keeps the wizard on the payment step with the same registration.
func (c *Controller) PayWithCard(ctx context.Context) (PaymentResult, error) {
	if c.card == nil {
		return PaymentResult{}, ErrNoCardConfirmer
	}
	callCtx, epoch, reg, err := c.paymentCall(ctx, StepPayment)
	if err != nil {
		return PaymentResult{}, err
	}

	intent, err := c.backend.CreatePaymentIntent(callCtx, reg.ID, reg.Email)
	if err != nil {
		c.mu.Lock()
		c.end(epoch)
		c.mu.Unlock()
		return PaymentResult{}, fmt.Errorf("create payment intent: %w", err)
	}

	intentID, err := c.card.ConfirmCardPayment(callCtx, intent.ClientSecret)
	if err != nil {
		c.mu.Lock()
		c.end(epoch)
		c.mu.Unlock()
		r := result(OutcomeDeclined)
		r.Message = fmt.Sprintf("%s %v", r.Message, err)
		return r, nil
	}
	if intentID == "" {
		intentID = intent.ID
	}

	v, verr := c.backend.VerifyPayment(callCtx, intentID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.end(epoch)
	r := result(OutcomeConfirmed)
	r.PaymentRef = intentID
	switch {
	case verr != nil:
		log.Printf("wizard: verify %s after card confirmation: %v", intentID, verr)
		r.Warning = warnUnverified
	case !v.Paid():
		r.Warning = warnUnverified
	case !v.FulfillmentQueued:
		r.Warning = warnNoEmailQueue
	}
	c.finish(ctx)
	return r, nil
}

// Back returns from the waiver step to the personal step, cancelling any
// call in flight.  Once the registration is persisted there is no way
// back.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepWaiver {
		return ErrCannotGoBack
	}
	if c.busy {
		c.cancel()
		c.cancel = nil
		c.busy = false
	}
	c.epoch++
	c.step = StepPersonal
	c.gate = nil
	c.pdf = nil
	c.reg.WaiverAccepted = false
	c.save(ctx)
	return nil
}
