package utils

import "log"

// Result carries the outcome of a side call whose failure must not stop
// the caller (IP lookup, attachment upload, fulfillment enqueue).  The
// caller decides explicitly what to do with Err instead of swallowing it.
type Result[T any] struct {
	Value T
	Err   error
}

// Try runs fn and wraps its return values.
func Try[T any](fn func() (T, error)) Result[T] {
	v, err := fn()
	return Result[T]{Value: v, Err: err}
}

// Ok reports whether the call succeeded.
func (r Result[T]) Ok() bool { return r.Err == nil }

// OrElse returns Value on success and def otherwise.
func (r Result[T]) OrElse(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// Logged logs a failed call with the given description and returns r
// unchanged so the call site reads as a deliberate discard.
func (r Result[T]) Logged(what string) Result[T] {
	if r.Err != nil {
		log.Printf("%s failed (non-fatal): %v", what, r.Err)
	}
	return r
}
