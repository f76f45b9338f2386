// Package wizard drives the registration wizard: personal data, waiver
// reading and acceptance, persistence and payment.  It holds no UI code;
// a front end renders Controller state and forwards user actions.
package wizard

// Phase is the state of the waiver step for one mount of the step.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
	PhaseReadyUnread
	PhaseReadyRead
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhaseReadyUnread:
		return "ready_unread"
	case PhaseReadyRead:
		return "ready_read"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Event drives a Phase transition.
type Event int

const (
	EventBegin Event = iota
	EventGenerated
	EventGenerationFailed
	EventRead
	EventSubmit
	EventSubmitOK
	EventSubmitFailed
)

type edge struct {
	from Phase
	ev   Event
}

// transitions lists every legal move.  EventRead only leaves
// PhaseReadyUnread, which is what makes the unlock fire once.  A new
// document (EventBegin from a ready phase) needs to be read again.
var transitions = map[edge]Phase{
	{PhaseIdle, EventBegin}:                  PhaseGenerating,
	{PhaseFailed, EventBegin}:                PhaseGenerating,
	{PhaseReadyUnread, EventBegin}:           PhaseGenerating,
	{PhaseReadyRead, EventBegin}:             PhaseGenerating,
	{PhaseGenerating, EventGenerated}:        PhaseReadyUnread,
	{PhaseGenerating, EventGenerationFailed}: PhaseFailed,
	{PhaseReadyUnread, EventRead}:            PhaseReadyRead,
	{PhaseReadyRead, EventSubmit}:            PhaseSubmitting,
	{PhaseSubmitting, EventSubmitOK}:         PhaseSucceeded,
	{PhaseSubmitting, EventSubmitFailed}:     PhaseReadyRead,
}

// Transition returns the phase reached from p on ev.  ok is false when the
// event is not legal in p, in which case p is returned unchanged.
func Transition(p Phase, ev Event) (Phase, bool) {
	next, ok := transitions[edge{p, ev}]
	if !ok {
		return p, false
	}
	return next, true
}

// Unlocked reports whether the acceptance checkbox may be enabled in p.
func (p Phase) Unlocked() bool {
	return p == PhaseReadyRead || p == PhaseSubmitting || p == PhaseSucceeded
}
