// Package lifecycle defines the processor lifecycle phases and the state
// machine that keeps calls in setup, bundle, teardown order.
package lifecycle

import (
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
)

// Phase identifies the lifecycle call currently executing.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseSetup
	PhaseBundleStart
	PhasePerElement
	PhaseBundleFinish
	PhaseTeardown
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "Setup"
	case PhaseBundleStart:
		return "BundleStart"
	case PhasePerElement:
		return "PerElement"
	case PhaseBundleFinish:
		return "BundleFinish"
	case PhaseTeardown:
		return "Teardown"
	default:
		return "None"
	}
}

// Phases lists every callable phase in lifecycle order.
var Phases = []Phase{PhaseSetup, PhaseBundleStart, PhasePerElement, PhaseBundleFinish, PhaseTeardown}

type state int

const (
	stateNew state = iota
	stateReady
	stateInBundle
	stateBroken
	stateTornDown
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "New"
	case stateReady:
		return "Ready"
	case stateInBundle:
		return "InBundle"
	case stateBroken:
		return "Broken"
	default:
		return "TornDown"
	}
}

// Tracker enforces the call order Setup, (BundleStart, PerElement*,
// BundleFinish)*, Teardown. It is not safe for concurrent use; a processor
// instance is driven by one worker at a time.
type Tracker struct {
	state   state
	active  Phase
	last    Phase
	failed  bool
	bundles int
}

// NewTracker returns a tracker in its initial state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Enter validates that p may run next and marks it active.
func (t *Tracker) Enter(p Phase) error {
	if t.active != PhaseNone {
		return t.reject(p)
	}

	switch p {
	case PhaseSetup:
		if t.state != stateNew {
			return t.reject(p)
		}
		t.state = stateReady
	case PhaseBundleStart:
		switch {
		case t.state == stateReady:
		case t.state == stateInBundle && t.failed:
			// the engine abandoned a failed bundle and starts over
		default:
			return t.reject(p)
		}
		t.state = stateInBundle
		t.failed = false
		t.bundles++
	case PhasePerElement:
		if t.state != stateInBundle {
			return t.reject(p)
		}
	case PhaseBundleFinish:
		if t.state != stateInBundle {
			return t.reject(p)
		}
		t.state = stateReady
	case PhaseTeardown:
		if t.state == stateTornDown {
			return t.reject(p)
		}
		t.state = stateTornDown
	default:
		return t.reject(p)
	}

	t.active = p
	return nil
}

// Exit closes the active phase. A non-nil err marks the phase as failed.
func (t *Tracker) Exit(err error) {
	if err != nil {
		t.failed = true
		if t.active == PhaseSetup {
			t.state = stateBroken
		}
	}
	t.last = t.active
	t.active = PhaseNone
}

// Active returns the phase currently executing, or PhaseNone between calls.
func (t *Tracker) Active() Phase {
	return t.active
}

// Last returns the most recently completed phase.
func (t *Tracker) Last() Phase {
	return t.last
}

// Bundles returns how many bundles have been started.
func (t *Tracker) Bundles() int {
	return t.bundles
}

// TornDown reports whether teardown has run.
func (t *Tracker) TornDown() bool {
	return t.state == stateTornDown
}

func (t *Tracker) reject(p Phase) error {
	from := t.state.String()
	if t.active != PhaseNone {
		from = t.active.String() + " (in progress)"
	}
	return &errspkg.LifecycleError{From: from, To: p.String()}
}
