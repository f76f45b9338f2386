package repository

import (
	"context"
	"database/sql"
)

// FulfillmentRepo guards confirmation emails so that each registration is
// fulfilled at most once even when both the webhook and the verification
// endpoint enqueue a request.
type FulfillmentRepo struct {
	db *sql.DB
}

// NewFulfillmentRepo returns a new FulfillmentRepo bound to the given database.
func NewFulfillmentRepo(db *sql.DB) *FulfillmentRepo { return &FulfillmentRepo{db: db} }

// Claim inserts the fulfillment row for registrationID.  It returns true
// when this call created the row, false when another delivery already
// claimed it.
func (r *FulfillmentRepo) Claim(ctx context.Context, registrationID uint64, source string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO fulfillments (registration_id, source) VALUES (?, ?)`,
		registrationID, source)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release deletes the claim so a later delivery can retry the email.
func (r *FulfillmentRepo) Release(ctx context.Context, registrationID uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM fulfillments WHERE registration_id = ?`, registrationID)
	return err
}
