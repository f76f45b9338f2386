package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one decoded RegistrationPaidEvent.
type Handler interface {
	HandleRegistrationPaid(ctx context.Context, ev RegistrationPaidEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev RegistrationPaidEvent) error

func (f HandlerFunc) HandleRegistrationPaid(ctx context.Context, ev RegistrationPaidEvent) error {
	return f(ctx, ev)
}

// Consumer reads registration.paid messages and hands them to a Handler.
type Consumer struct {
	url     string
	handler Handler
}

// NewConsumer returns a Consumer for the broker at url.
func NewConsumer(url string, h Handler) *Consumer {
	if h == nil {
		panic("nil handler")
	}
	return &Consumer{url: url, handler: h}
}

// ErrMalformedMessage is returned by HandleMessage for a body that can
// never be processed.  Such messages are parked without retry.
var ErrMalformedMessage = errors.New("malformed registration.paid message")

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the connection drops.  A
// message whose handling fails is rescheduled through the retry queue;
// see settle.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("fulfillment-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("fulfillment-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("fulfillment-consumer: set QoS failed: %v", err)
	}
	if err := declareTopology(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(RegistrationPaidQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(ctx, ch, d)
		}
	}
}

// declareTopology declares the main, retry and parking queues.
func declareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(RegistrationPaidQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	retryArgs := amqp.Table{
		"x-message-ttl":             int64(RetryDelay / time.Millisecond),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": RegistrationPaidQueue,
	}
	if _, err := ch.QueueDeclare(RegistrationPaidRetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("retry queue declare: %w", err)
	}
	if _, err := ch.QueueDeclare(RegistrationPaidParkingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("parking queue declare: %w", err)
	}
	return nil
}

// republisher is the part of *amqp.Channel settle needs.
type republisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Attempt returns how many times the message was handled before, from
// its x-attempt header.
func Attempt(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// settle handles d and acknowledges it.  A failure republishes the body to
// the retry queue with the attempt counter bumped, or to the parking queue
// once MaxAttempts is reached or the body is malformed.  When the
// republish itself fails the delivery is requeued so it is not lost.
func (c *Consumer) settle(ctx context.Context, ch republisher, d amqp.Delivery) {
	err := c.HandleMessage(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempt := Attempt(d.Headers) + 1
	target := RegistrationPaidRetryQueue
	if errors.Is(err, ErrMalformedMessage) || attempt >= MaxAttempts {
		target = RegistrationPaidParkingQueue
	}
	log.Printf("fulfillment-consumer: attempt %d failed: %v; moving to %s", attempt, err, target)

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptHeader: int32(attempt), "x-last-error": err.Error()},
		Body:         d.Body,
	}
	if perr := ch.PublishWithContext(ctx, "", target, false, false, pub); perr != nil {
		log.Printf("fulfillment-consumer: republish to %s failed: %v; requeueing", target, perr)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// HandleMessage decodes body and dispatches it to the handler.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	var ev RegistrationPaidEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if ev.RegistrationID == 0 {
		return fmt.Errorf("%w: no registration id", ErrMalformedMessage)
	}
	return c.handler.HandleRegistrationPaid(ctx, ev)
}
