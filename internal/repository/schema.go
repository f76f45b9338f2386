package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates the tables owned by this service.  Registrations live in
// the CMS; only reconciliation bookkeeping is stored locally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_events (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		provider_event_id VARCHAR(191) NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		registration_id BIGINT UNSIGNED NOT NULL DEFAULT 0,
		payment_ref VARCHAR(191) NOT NULL DEFAULT '',
		outcome ENUM('processed','failed','ignored') NOT NULL,
		error TEXT NOT NULL,
		attempts INT UNSIGNED NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY ux_payment_events_provider_event (provider_event_id),
		KEY ix_payment_events_outcome (outcome, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS fulfillments (
		registration_id BIGINT UNSIGNED PRIMARY KEY,
		source VARCHAR(32) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema runs the idempotent CREATE TABLE statements.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
