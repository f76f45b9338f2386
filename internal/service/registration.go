package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/utils"
)

// SubmitInput is a finalized wizard snapshot plus request metadata.
type SubmitInput struct {
	Registration model.Registration
	WaiverPDF    []byte // optional generated waiver
	IP           string // best effort client address
	UserAgent    string
	SignedAt     time.Time // zero means now
}

// SubmitResult is returned after the registration was stored.
type SubmitResult struct {
	ID             uint64
	Code           string
	Status         model.PaymentStatus
	WaiverAttached bool
}

// RegistrationService persists finalized registrations.
type RegistrationService struct {
	store RegistrationStore
	now   func() time.Time
}

// NewRegistrationService returns a RegistrationService backed by store.
func NewRegistrationService(store RegistrationStore) *RegistrationService {
	if store == nil {
		panic("nil registration store")
	}
	return &RegistrationService{store: store, now: time.Now}
}

// Submit validates and stores a registration.  A failed waiver upload is
// logged and the registration proceeds without attachment; a failed
// create is returned to the caller.  The stored status is always pending.
func (s *RegistrationService) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	reg := in.Registration
	reg.Trim()
	reg.NormalizeMeal()
	if err := model.ValidateSubmission(reg, utils.ValidRegistrationCode).Err(); err != nil {
		return SubmitResult{}, err
	}

	reg.ID = 0
	reg.PaymentStatus = model.PaymentPending
	reg.PaymentRef = ""
	reg.WaiverFileID = nil

	if len(in.WaiverPDF) > 0 {
		up := utils.Try(func() (uint64, error) {
			return s.store.Upload(ctx, waiverFileName(reg), "application/pdf", in.WaiverPDF)
		}).Logged("registration: waiver upload")
		if up.Ok() {
			id := up.Value
			reg.WaiverFileID = &id
		}
	}

	signedAt := in.SignedAt
	if signedAt.IsZero() {
		signedAt = s.now()
	}
	ip := strings.TrimSpace(in.IP)
	if ip == "" {
		ip = model.UnknownIP
	}
	reg.Consent = &model.ConsentLog{
		Timestamp: signedAt.UTC(),
		IP:        ip,
		UserAgent: in.UserAgent,
	}

	id, err := s.store.CreateRegistration(ctx, reg)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create registration: %w", err)
	}
	log.Printf("registration: stored id=%d code=%s race=%s meals=%d", id, reg.Code, reg.RaceType, reg.MealCount)
	return SubmitResult{
		ID:             id,
		Code:           reg.Code,
		Status:         reg.PaymentStatus,
		WaiverAttached: reg.WaiverFileID != nil,
	}, nil
}

func waiverFileName(r model.Registration) string {
	return fmt.Sprintf("liberatoria-%s.pdf", r.Code)
}
