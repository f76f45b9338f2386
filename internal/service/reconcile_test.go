package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/repository"
)

func completedEvent(id uint64) payment.Event {
	return payment.Event{
		ID: "evt_1", Type: "checkout.session.completed", Kind: payment.EventCheckoutCompleted,
		RegistrationID: id, PaymentRef: "pi_123", Code: "AB12CD34EF",
	}
}

func TestApplyMarksCompletedIdempotently(t *testing.T) {
	store := newMemStore()
	reg := testRegistration()
	reg.PaymentStatus = model.PaymentPending
	id := store.put(reg)
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	r := NewReconciler(store, ledger, pub, &fakeNotifier{})

	for i := 0; i < 2; i++ {
		if got := r.Apply(context.Background(), completedEvent(id)); got != repository.OutcomeProcessed {
			t.Fatalf("delivery %d: outcome %q", i, got)
		}
	}
	stored, _ := store.GetRegistration(context.Background(), id)
	if stored.PaymentStatus != model.PaymentCompleted || stored.PaymentRef != "pi_123" {
		t.Fatalf("unexpected stored registration %+v", stored)
	}
	rec := ledger.records["evt_1"]
	if rec.Outcome != repository.OutcomeProcessed || rec.Attempts != 2 {
		t.Fatalf("unexpected ledger row %+v", rec)
	}
	if len(pub.events) != 2 {
		t.Fatalf("expected a fulfillment request per delivery, got %d", len(pub.events))
	}
}

func TestApplyIgnoresOtherEvents(t *testing.T) {
	store := newMemStore()
	id := store.put(testRegistration())
	ledger := newFakeLedger()
	pub := &fakePublisher{}
	r := NewReconciler(store, ledger, pub, &fakeNotifier{})

	got := r.Apply(context.Background(), payment.Event{ID: "evt_2", Type: "charge.refunded"})
	if got != repository.OutcomeIgnored {
		t.Fatalf("outcome %q", got)
	}
	stored, _ := store.GetRegistration(context.Background(), id)
	if stored.PaymentStatus != "" || store.updates != 0 || len(pub.events) != 0 {
		t.Fatal("ignored event must not mutate anything")
	}
}

func TestApplyUpdateFailureAlertsAndRecords(t *testing.T) {
	store := newMemStore()
	id := store.put(testRegistration())
	store.updateErr = errors.New("cms 503")
	ledger := newFakeLedger()
	alerts := &fakeNotifier{}
	pub := &fakePublisher{}
	r := NewReconciler(store, ledger, pub, alerts)

	if got := r.Apply(context.Background(), completedEvent(id)); got != repository.OutcomeFailed {
		t.Fatalf("outcome %q", got)
	}
	if len(alerts.texts) != 1 || len(pub.events) != 0 {
		t.Fatalf("alerts=%v events=%v", alerts.texts, pub.events)
	}
	if ledger.records["evt_1"].Error == "" {
		t.Fatal("ledger must keep the failure reason")
	}

	// the sweep fixes it once the CMS recovers
	store.updateErr = nil
	fixed, failed, err := r.RetryFailed(context.Background(), 10)
	if err != nil || fixed != 1 || failed != 0 {
		t.Fatalf("retry: fixed=%d failed=%d err=%v", fixed, failed, err)
	}
	stored, _ := store.GetRegistration(context.Background(), id)
	if stored.PaymentStatus != model.PaymentCompleted {
		t.Fatalf("status %q after sweep", stored.PaymentStatus)
	}
	if ledger.records["evt_1"].Outcome != repository.OutcomeProcessed {
		t.Fatal("ledger row not marked processed")
	}
}

func TestApplyLedgerFailureDoesNotBlock(t *testing.T) {
	store := newMemStore()
	id := store.put(testRegistration())
	ledger := newFakeLedger()
	ledger.err = errors.New("mysql down")
	r := NewReconciler(store, ledger, &fakePublisher{}, &fakeNotifier{})

	if got := r.Apply(context.Background(), completedEvent(id)); got != repository.OutcomeProcessed {
		t.Fatalf("outcome %q", got)
	}
	stored, _ := store.GetRegistration(context.Background(), id)
	if stored.PaymentStatus != model.PaymentCompleted {
		t.Fatal("registration must be updated even when the ledger is down")
	}
}
