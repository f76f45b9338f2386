package repository

import (
	"context"
	"database/sql"
	"time"
)

// Ledger outcomes stored in payment_events.outcome.
const (
	OutcomeProcessed = "processed" // CMS record updated
	OutcomeFailed    = "failed"    // CMS update failed; eligible for the reconcile sweep
	OutcomeIgnored   = "ignored"   // event type not handled
)

// PaymentEventRecord mirrors the payment_events table.  One row exists per
// processor event id; redeliveries update the row and bump Attempts.
type PaymentEventRecord struct {
	ID              uint64
	ProviderEventID string
	EventType       string
	RegistrationID  uint64 // zero for ignored events
	PaymentRef      string
	Outcome         string
	Error           string
	Attempts        uint32
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentEventRepo is the reconciliation ledger.  It records what the
// webhook did with every verified event so that failed CMS updates can be
// found and re-applied.
type PaymentEventRepo struct {
	db *sql.DB
}

// NewPaymentEventRepo returns a new PaymentEventRepo bound to the given database.
func NewPaymentEventRepo(db *sql.DB) *PaymentEventRepo { return &PaymentEventRepo{db: db} }

// Record upserts the row for rec.ProviderEventID.  A redelivery overwrites
// the outcome and error of the previous attempt and increments attempts.
func (r *PaymentEventRepo) Record(ctx context.Context, rec PaymentEventRecord) error {
	const q = `INSERT INTO payment_events
	             (provider_event_id, event_type, registration_id, payment_ref, outcome, error, attempts)
	           VALUES (?, ?, ?, ?, ?, ?, 1)
	           ON DUPLICATE KEY UPDATE
	             registration_id = VALUES(registration_id),
	             payment_ref = VALUES(payment_ref),
	             outcome = VALUES(outcome),
	             error = VALUES(error),
	             attempts = attempts + 1`
	_, err := r.db.ExecContext(ctx, q,
		rec.ProviderEventID, rec.EventType, rec.RegistrationID, rec.PaymentRef, rec.Outcome, truncate(rec.Error, 1000))
	return err
}

// ListFailed returns up to limit events whose CMS update failed, oldest first.
func (r *PaymentEventRepo) ListFailed(ctx context.Context, limit int) ([]PaymentEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, provider_event_id, event_type, registration_id, payment_ref, outcome, error, attempts, created_at, updated_at
	           FROM payment_events
	           WHERE outcome = ?
	           ORDER BY created_at ASC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, OutcomeFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentEventRecord
	for rows.Next() {
		var rec PaymentEventRecord
		if err := rows.Scan(&rec.ID, &rec.ProviderEventID, &rec.EventType, &rec.RegistrationID, &rec.PaymentRef,
			&rec.Outcome, &rec.Error, &rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
