package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/festival-registration/internal/alert"
	"github.com/iliyamo/festival-registration/internal/model"
	"github.com/iliyamo/festival-registration/internal/payment"
	"github.com/iliyamo/festival-registration/internal/queue"
	"github.com/iliyamo/festival-registration/internal/repository"
	"github.com/iliyamo/festival-registration/internal/utils"
)

// Reconciler applies verified payment events to the CMS.  It is the only
// writer of the completed payment status.
type Reconciler struct {
	store  RegistrationStore
	ledger Ledger
	pub    PaidPublisher
	alerts alert.Notifier
}

// NewReconciler wires the reconciliation workflow.
func NewReconciler(store RegistrationStore, ledger Ledger, pub PaidPublisher, alerts alert.Notifier) *Reconciler {
	if store == nil || ledger == nil || pub == nil || alerts == nil {
		panic("nil dependency")
	}
	return &Reconciler{store: store, ledger: ledger, pub: pub, alerts: alerts}
}

// Apply handles one verified event and returns the ledger outcome.  It
// never returns an error: a failed CMS update is logged, recorded and
// alerted so the webhook can still be acknowledged.  Applying the same
// event twice overwrites the same fields with the same values.
func (r *Reconciler) Apply(ctx context.Context, ev payment.Event) string {
	rec := repository.PaymentEventRecord{
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		RegistrationID:  ev.RegistrationID,
		PaymentRef:      ev.PaymentRef,
	}
	if !ev.Settles() {
		rec.Outcome = repository.OutcomeIgnored
		r.record(ctx, rec)
		return rec.Outcome
	}

	if err := r.store.UpdatePayment(ctx, ev.RegistrationID, model.PaymentCompleted, ev.PaymentRef); err != nil {
		log.Printf("webhook: update registration %d failed: %v", ev.RegistrationID, err)
		rec.Outcome = repository.OutcomeFailed
		rec.Error = err.Error()
		r.record(ctx, rec)
		r.alert(ctx, fmt.Sprintf("Pagamento %s ricevuto ma l'iscrizione %d non è stata aggiornata: %v",
			ev.PaymentRef, ev.RegistrationID, err))
		return rec.Outcome
	}

	rec.Outcome = repository.OutcomeProcessed
	r.record(ctx, rec)
	log.Printf("webhook: registration %d marked %s (ref=%s)", ev.RegistrationID, model.PaymentCompleted, ev.PaymentRef)
	r.enqueue(ctx, ev.RegistrationID, ev.Code, ev.PaymentRef)
	return rec.Outcome
}

// RetryFailed re-applies up to limit failed ledger rows.  It returns how
// many were fixed and how many still fail.
func (r *Reconciler) RetryFailed(ctx context.Context, limit int) (fixed, failed int, err error) {
	recs, err := r.ledger.ListFailed(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list failed events: %w", err)
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return fixed, failed, ctx.Err()
		}
		if rec.RegistrationID == 0 {
			continue
		}
		if uerr := r.store.UpdatePayment(ctx, rec.RegistrationID, model.PaymentCompleted, rec.PaymentRef); uerr != nil {
			log.Printf("reconcile: registration %d still failing: %v", rec.RegistrationID, uerr)
			rec.Error = uerr.Error()
			r.record(ctx, rec)
			failed++
			continue
		}
		rec.Outcome = repository.OutcomeProcessed
		rec.Error = ""
		r.record(ctx, rec)
		r.enqueue(ctx, rec.RegistrationID, "", rec.PaymentRef)
		fixed++
	}
	return fixed, failed, nil
}

func (r *Reconciler) record(ctx context.Context, rec repository.PaymentEventRecord) {
	if rec.ProviderEventID == "" {
		return
	}
	utils.Try(func() (struct{}, error) {
		return struct{}{}, r.ledger.Record(ctx, rec)
	}).Logged("webhook: ledger record " + rec.ProviderEventID)
}

func (r *Reconciler) alert(ctx context.Context, text string) {
	utils.Try(func() (struct{}, error) {
		return struct{}{}, r.alerts.Notify(ctx, text)
	}).Logged("webhook: ops alert")
}

func (r *Reconciler) enqueue(ctx context.Context, id uint64, code, ref string) {
	utils.Try(func() (struct{}, error) {
		return struct{}{}, r.pub.PublishRegistrationPaid(ctx, queue.RegistrationPaidEvent{
			RegistrationID: id,
			Code:           code,
			PaymentRef:     ref,
			Source:         queue.SourceWebhook,
			PaidAt:         time.Now().UTC().Format(time.RFC3339),
		})
	}).Logged("webhook: fulfillment enqueue")
}
