package payment

import "testing"

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	a := IdempotencyKey(12, FlowHosted, 6100)
	if a != IdempotencyKey(12, FlowHosted, 6100) {
		t.Fatal("same inputs must give the same key")
	}
	for _, other := range []string{
		IdempotencyKey(13, FlowHosted, 6100),
		IdempotencyKey(12, FlowEmbedded, 6100),
		IdempotencyKey(12, FlowHosted, 2500),
	} {
		if other == a {
			t.Fatalf("distinct inputs collided on %s", a)
		}
	}
}

func TestParseRegistrationID(t *testing.T) {
	tests := []struct {
		meta map[string]string
		want uint64
		ok   bool
	}{
		{meta: Metadata(42, "ABCDEFGHIJ", FlowHosted), want: 42, ok: true},
		{meta: map[string]string{}, ok: false},
		{meta: map[string]string{MetaRegistrationID: "x"}, ok: false},
		{meta: map[string]string{MetaRegistrationID: "0"}, ok: false},
		{meta: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseRegistrationID(tt.meta)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRegistrationID(%v) = %d, %v", tt.meta, got, ok)
		}
	}
}

func TestEventSettles(t *testing.T) {
	if (Event{Kind: EventIgnored}).Settles() {
		t.Fatal("ignored events must not settle")
	}
	if !(Event{Kind: EventCheckoutCompleted}).Settles() || !(Event{Kind: EventIntentSucceeded}).Settles() {
		t.Fatal("completion events must settle")
	}
}
