package model

import (
	"strings"
	"time"
)

// dateLayout is the wire format for calendar dates (HTML date inputs and
// CMS date attributes).
const dateLayout = "2006-01-02"

// Date is a calendar date kept in its wire form.  An empty Date is a
// missing value, which is legal for every optional field.
type Date string

// NewDate formats t as a Date.
func NewDate(t time.Time) Date { return Date(t.Format(dateLayout)) }

// Time parses the date.  ok is false for empty or malformed values.
func (d Date) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return time.Time{}, false
	}
	// accept full timestamps as well, the CMS sometimes returns them
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Valid reports whether the date is present and parseable.
func (d Date) Valid() bool {
	_, ok := d.Time()
	return ok
}

// Localized renders the date as dd/mm/yyyy, or placeholder when the date
// is missing or malformed.
func (d Date) Localized(placeholder string) string {
	t, ok := d.Time()
	if !ok {
		return placeholder
	}
	return t.Format("02/01/2006")
}
