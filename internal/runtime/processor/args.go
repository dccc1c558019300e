package processor

import (
	"fmt"
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
	"github.com/drblury/procflow/internal/runtime/window"
)

// LifecycleCapabilities is the capability set shared by every phase.
// Requests that are illegal for the active phase return a CapabilityError.
type LifecycleCapabilities interface {
	Phase() string
	Options() (engine.Options, error)
	// Window always fails outside per-element processing.
	Window() (window.Window, error)
}

// BundleCapabilities adds output emission to the lifecycle capabilities.
type BundleCapabilities[O any] interface {
	LifecycleCapabilities
	Output(value O) error
	OutputWithTimestamp(value O, ts time.Time) error
	OutputTagged(tag string, value any) error
	OutputTaggedWithTimestamp(tag string, value any, ts time.Time) error
}

// ElementCapabilities is the per-element capability set.
type ElementCapabilities[I, O any] interface {
	BundleCapabilities[O]
	Element() (I, error)
	Timestamp() (time.Time, error)
	Pane() (window.PaneInfo, error)
	SideInput(tag string) (any, error)
}

// OutputReceiver emits to the primary output.
type OutputReceiver[O any] interface {
	Output(value O) error
	OutputWithTimestamp(value O, ts time.Time) error
}

// InputProvider yields the current element.
type InputProvider[I any] interface {
	Get() (I, error)
}

// SideInputs looks up the side inputs a processor declared.
type SideInputs interface {
	Get(tag string) (any, error)
}

// SideInputAs looks up tag and asserts its type.
func SideInputAs[T any](s SideInputs, tag string) (T, error) {
	var zero T
	if s == nil {
		return zero, fmt.Errorf("side input %q was not declared", tag)
	}
	raw, err := s.Get(tag)
	if err != nil {
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("side input %q has type %T, want %T", tag, raw, zero)
	}
	return typed, nil
}

// Bound is one parameter bound for a call, in declaration order.
type Bound struct {
	Param Param
	Value any
}

// BoundParams is the positional view of the parameters supplied to a call.
type BoundParams []Bound

// Has reports whether a parameter of kind k was bound.
func (b BoundParams) Has(k ParamKind) bool {
	for _, p := range b {
		if p.Param.Kind == k {
			return true
		}
	}
	return false
}

// Kinds returns the bound kinds in order.
func (b BoundParams) Kinds() []ParamKind {
	kinds := make([]ParamKind, len(b))
	for i, p := range b {
		kinds[i] = p.Param.Kind
	}
	return kinds
}

// LifecycleArgs is passed to Setup and Teardown.
type LifecycleArgs struct {
	Context LifecycleCapabilities
	Bound   BoundParams
}

// BundleArgs is passed to StartBundle and FinishBundle.
type BundleArgs[O any] struct {
	Context BundleCapabilities[O]
	Output  OutputReceiver[O]
	Bound   BoundParams
}

// ElementArgs is passed to ProcessElement. Only the declared fields are set.
type ElementArgs[I, O any] struct {
	Element    I
	Timestamp  time.Time
	Pane       window.PaneInfo
	Window     window.Window
	SideInputs SideInputs
	Output     OutputReceiver[O]
	Input      InputProvider[I]
	Context    ElementCapabilities[I, O]
	Bound      BoundParams
}
