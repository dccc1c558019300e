// Package capability implements the phase-scoped contexts handed to
// processor methods. Each context exposes only the capabilities legal for
// its lifecycle phase and stops working once the call that created it
// returns.
package capability

import (
	"fmt"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
)

// Capability names an operation a context may offer.
type Capability string

const (
	Emit           Capability = "output"
	OutputReceiver Capability = "output receiver"
	Element        Capability = "element"
	Timestamp      Capability = "timestamp"
	Pane           Capability = "pane"
	Window         Capability = "window"
	SideInput      Capability = "side input"
	InputProvider  Capability = "input provider"
	Options        Capability = "options"
)

var legality = map[Capability][]lifecycle.Phase{
	Emit:           {lifecycle.PhaseBundleStart, lifecycle.PhasePerElement, lifecycle.PhaseBundleFinish},
	OutputReceiver: {lifecycle.PhaseBundleStart, lifecycle.PhasePerElement, lifecycle.PhaseBundleFinish},
	Element:        {lifecycle.PhasePerElement},
	Timestamp:      {lifecycle.PhasePerElement},
	Pane:           {lifecycle.PhasePerElement},
	Window:         {lifecycle.PhasePerElement},
	SideInput:      {lifecycle.PhasePerElement},
	InputProvider:  {lifecycle.PhasePerElement},
	Options:        {lifecycle.PhaseSetup, lifecycle.PhaseBundleStart, lifecycle.PhasePerElement, lifecycle.PhaseBundleFinish},
}

// Allowed reports whether c may be requested during p.
func Allowed(c Capability, p lifecycle.Phase) bool {
	for _, allowed := range legality[c] {
		if allowed == p {
			return true
		}
	}
	return false
}

// scope tracks the phase a context belongs to and whether its call is over.
type scope struct {
	phase    lifecycle.Phase
	released bool
}

func (s *scope) check(c Capability) error {
	if s.released {
		return s.deny(c, "context used after its call returned")
	}
	if !Allowed(c, s.phase) {
		return s.deny(c, "")
	}
	return nil
}

func (s *scope) deny(c Capability, reason string, args ...any) error {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &errspkg.CapabilityError{Capability: string(c), Phase: s.phase.String(), Reason: reason}
}
