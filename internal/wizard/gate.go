package wizard

// Modality selects how reading the waiver is proven.
type Modality int

const (
	// ModalityPrecision is a fine pointer on a wide viewport: the embedded
	// viewer must be scrolled to the end.
	ModalityPrecision Modality = iota
	// ModalityTouch is a coarse pointer or a narrow viewport: the document
	// must be opened in its own viewer.
	ModalityTouch
)

const (
	// NarrowViewport is the first width, in CSS pixels, treated as wide.
	NarrowViewport = 768
	// ScrollTolerance is how close to the bottom, in pixels, counts as
	// read.
	ScrollTolerance = 10
)

// DetectModality maps the client's pointer and viewport to a Modality.
func DetectModality(coarsePointer bool, viewportWidth int) Modality {
	if coarsePointer || viewportWidth < NarrowViewport {
		return ModalityTouch
	}
	return ModalityPrecision
}

// Gate is the waiver acceptance gate for one mount of the waiver step.
// It is not safe for concurrent use; Controller serializes access.
type Gate struct {
	modality Modality
	phase    Phase
}

// NewGate returns a locked gate in PhaseIdle.
func NewGate(m Modality) *Gate {
	return &Gate{modality: m, phase: PhaseIdle}
}

func (g *Gate) fire(ev Event) bool {
	next, ok := Transition(g.phase, ev)
	g.phase = next
	return ok
}

// Phase returns the current phase.
func (g *Gate) Phase() Phase { return g.phase }

// Modality returns the reading proof in use.
func (g *Gate) Modality() Modality { return g.modality }

// Begin starts (or restarts) document generation.
func (g *Gate) Begin() bool { return g.fire(EventBegin) }

// Generated records a successful generation.
func (g *Gate) Generated() bool { return g.fire(EventGenerated) }

// GenerationFailed records a failed generation.  The gate stays locked.
func (g *Gate) GenerationFailed() bool { return g.fire(EventGenerationFailed) }

// OpenDocument records that the participant opened the document in its
// own viewer.  It only counts on touch devices and returns true when this
// call unlocked the gate.
func (g *Gate) OpenDocument() bool {
	if g.modality != ModalityTouch {
		return false
	}
	return g.fire(EventRead)
}

// ViewerScrolled records the embedded viewer's scroll position.  It only
// counts on precision devices and unlocks once pos is within
// ScrollTolerance of max.  It returns true when this call unlocked the
// gate; scrolling back up afterwards has no effect.
func (g *Gate) ViewerScrolled(pos, max float64) bool {
	if g.modality != ModalityPrecision || g.phase != PhaseReadyUnread {
		return false
	}
	if max < 0 {
		max = 0
	}
	if max-pos > ScrollTolerance {
		return false
	}
	return g.fire(EventRead)
}

// CheckboxEnabled reports whether the acceptance checkbox may be enabled.
func (g *Gate) CheckboxEnabled() bool { return g.phase.Unlocked() }

func (g *Gate) submitting() bool { return g.fire(EventSubmit) }

func (g *Gate) submitted(ok bool) {
	if ok {
		g.fire(EventSubmitOK)
		return
	}
	g.fire(EventSubmitFailed)
}
