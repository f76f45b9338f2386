// Package queue defines the fulfillment message exchanged over RabbitMQ and
// the consumer that processes it.
package queue

import "time"

// Queues.  A failed message waits RetryDelay in the retry queue, which
// dead-letters it back to RegistrationPaidQueue.  Messages that cannot be
// decoded or failed MaxAttempts times are parked for inspection.
const (
	RegistrationPaidQueue        = "registration.paid"
	RegistrationPaidRetryQueue   = "registration.paid.retry"
	RegistrationPaidParkingQueue = "registration.paid.parked"
)

// Retry policy of the fulfillment consumer.
const (
	MaxAttempts = 5
	RetryDelay  = time.Minute
)

// attemptHeader counts how many times a message has been handled.
const attemptHeader = "x-attempt"

// Event sources.
const (
	SourceWebhook = "webhook" // reconciliation webhook
	SourceVerify  = "verify"  // embedded flow verification
)

// RegistrationPaidEvent asks for the confirmation email of a paid
// registration.  It may be published more than once for the same
// registration; the consumer deduplicates.
type RegistrationPaidEvent struct {
	RegistrationID uint64 `json:"registration_id"`
	Code           string `json:"codice_registrazione,omitempty"`
	PaymentRef     string `json:"payment_ref,omitempty"`
	Source         string `json:"source"`
	PaidAt         string `json:"paid_at"` // RFC 3339
}
