package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestHandleMessage(t *testing.T) {
	var got RegistrationPaidEvent
	c := NewConsumer("amqp://unused", HandlerFunc(func(_ context.Context, ev RegistrationPaidEvent) error {
		got = ev
		return nil
	}))

	body := []byte(`{"registration_id":12,"codice_registrazione":"ABCDEFGHIJ","payment_ref":"pi_1","source":"webhook","paid_at":"2024-09-01T10:00:00Z"}`)
	if err := c.HandleMessage(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RegistrationID != 12 || got.PaymentRef != "pi_1" || got.Source != SourceWebhook {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	calls := 0
	c := NewConsumer("amqp://unused", HandlerFunc(func(context.Context, RegistrationPaidEvent) error {
		calls++
		return nil
	}))
	for _, body := range []string{`not json`, `{"source":"webhook"}`} {
		if err := c.HandleMessage(context.Background(), []byte(body)); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage for %s, got %v", body, err)
		}
	}
	if calls != 0 {
		t.Fatalf("handler must not run for invalid messages, ran %d times", calls)
	}
}

func TestHandleMessagePropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewConsumer("amqp://unused", HandlerFunc(func(context.Context, RegistrationPaidEvent) error { return boom }))
	if err := c.HandleMessage(context.Background(), []byte(`{"registration_id":1}`)); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewConsumer("amqp://127.0.0.1:1/", HandlerFunc(func(context.Context, RegistrationPaidEvent) error { return nil }))
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// acker records how a delivery was settled.
type acker struct {
	acks, nacks, rejects int
	requeue              bool
}

func (a *acker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *acker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}
func (a *acker) Reject(_ uint64, requeue bool) error {
	a.rejects++
	a.requeue = requeue
	return nil
}

type published struct {
	key string
	msg amqp.Publishing
}

type channel struct {
	out []published
	err error
}

func (c *channel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.out = append(c.out, published{key, msg})
	return nil
}

func delivery(a *acker, body string, attempt int) amqp.Delivery {
	d := amqp.Delivery{Acknowledger: a, Body: []byte(body)}
	if attempt > 0 {
		d.Headers = amqp.Table{attemptHeader: int32(attempt)}
	}
	return d
}

func TestSettle(t *testing.T) {
	boom := errors.New("smtp down")
	tests := []struct {
		name      string
		body      string
		attempt   int
		handleErr error
		pubErr    error
		wantKey   string // empty: nothing republished
		wantAck   bool
		wantNack  bool
	}{
		{name: "success", body: `{"registration_id":1}`, wantAck: true},
		{name: "first failure", body: `{"registration_id":1}`, handleErr: boom, wantKey: RegistrationPaidRetryQueue, wantAck: true},
		{name: "last attempt", body: `{"registration_id":1}`, attempt: MaxAttempts - 1, handleErr: boom, wantKey: RegistrationPaidParkingQueue, wantAck: true},
		{name: "malformed", body: `not json`, wantKey: RegistrationPaidParkingQueue, wantAck: true},
		{name: "republish fails", body: `{"registration_id":1}`, handleErr: boom, pubErr: errors.New("closed"), wantNack: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer("amqp://unused", HandlerFunc(func(context.Context, RegistrationPaidEvent) error { return tt.handleErr }))
			a := &acker{}
			ch := &channel{err: tt.pubErr}
			c.settle(context.Background(), ch, delivery(a, tt.body, tt.attempt))

			if (a.acks == 1) != tt.wantAck || (a.nacks == 1) != tt.wantNack || a.rejects != 0 {
				t.Fatalf("settled %+v", a)
			}
			if tt.wantNack && !a.requeue {
				t.Fatal("nack must requeue")
			}
			if tt.wantKey == "" {
				if len(ch.out) != 0 {
					t.Fatalf("unexpected republish %+v", ch.out)
				}
				return
			}
			if len(ch.out) != 1 || ch.out[0].key != tt.wantKey {
				t.Fatalf("republished %+v, want one to %s", ch.out, tt.wantKey)
			}
			msg := ch.out[0].msg
			if Attempt(msg.Headers) != tt.attempt+1 || string(msg.Body) != tt.body || msg.DeliveryMode != amqp.Persistent {
				t.Fatalf("republished message %+v", msg)
			}
			if e, _ := msg.Headers["x-last-error"].(string); e == "" {
				t.Fatal("missing last error header")
			}
		})
	}
}

func TestFailedSendIsRetried(t *testing.T) {
	sent := 0
	calls := 0
	c := NewConsumer("amqp://unused", HandlerFunc(func(context.Context, RegistrationPaidEvent) error {
		calls++
		if calls < 3 {
			return errors.New("smtp timeout")
		}
		sent++
		return nil
	}))

	ch := &channel{}
	d := delivery(&acker{}, `{"registration_id":7,"source":"webhook"}`, 0)
	for i := 0; i < MaxAttempts; i++ {
		before := len(ch.out)
		c.settle(context.Background(), ch, d)
		if len(ch.out) == before {
			break
		}
		// the retry queue dead-letters the message back unchanged
		next := ch.out[len(ch.out)-1]
		if next.key != RegistrationPaidRetryQueue {
			t.Fatalf("attempt %d went to %s", i+1, next.key)
		}
		d = amqp.Delivery{Acknowledger: &acker{}, Headers: next.msg.Headers, Body: next.msg.Body}
	}
	if sent != 1 || calls != 3 {
		t.Fatalf("sent=%d calls=%d, want the third attempt to send once", sent, calls)
	}
	if Attempt(d.Headers) != 2 {
		t.Fatalf("final delivery attempt = %d", Attempt(d.Headers))
	}
}

func TestAttempt(t *testing.T) {
	for _, tt := range []struct {
		h    amqp.Table
		want int
	}{
		{nil, 0},
		{amqp.Table{attemptHeader: int32(2)}, 2},
		{amqp.Table{attemptHeader: int64(3)}, 3},
		{amqp.Table{attemptHeader: "4"}, 0},
	} {
		if got := Attempt(tt.h); got != tt.want {
			t.Errorf("Attempt(%v) = %d, want %d", tt.h, got, tt.want)
		}
	}
}
