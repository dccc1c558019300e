// Package engine describes the fixed calling convention a runtime engine uses
// to drive an adapted processor, and the collaborators it hands over: the
// output sink, the side input store, pipeline options, and display data.
package engine

import (
	"context"
	"time"

	"github.com/drblury/procflow/internal/runtime/window"
)

// OutputEvent is a value leaving a processor. An empty Tag addresses the
// primary output.
type OutputEvent struct {
	Value        any
	Tag          string
	Timestamp    time.Time
	HasTimestamp bool
}

// Tagged reports whether the event targets an additional output.
func (e OutputEvent) Tagged() bool {
	return e.Tag != ""
}

// OutputSink receives output events as soon as they are emitted.
type OutputSink interface {
	Emit(event OutputEvent) error
}

// OutputSinkFunc adapts a function to OutputSink.
type OutputSinkFunc func(event OutputEvent) error

func (f OutputSinkFunc) Emit(event OutputEvent) error {
	return f(event)
}

// SideInputReader looks up materialised side inputs. Lookups may block.
type SideInputReader interface {
	Lookup(ctx context.Context, tag string) (any, error)
}

// Options is read-only access to pipeline-wide configuration.
type Options interface {
	Get(key string) (string, bool)
	Keys() []string
}

// BundleContext is what the engine supplies to bundle boundary calls.
type BundleContext interface {
	Options() Options
	Sink() OutputSink
}

// ElementContext is what the engine supplies for each element. Window
// returns the single window of the element when the processor declared that
// it needs window access; otherwise it may return any of its windows.
type ElementContext[I any] interface {
	BundleContext
	Element() I
	Timestamp() time.Time
	Pane() window.PaneInfo
	Window() window.Window
	SideInputs() SideInputReader
}

// Fn is the calling convention the engine drives. Calls never overlap.
type Fn[I any] interface {
	Setup(ctx context.Context, opts Options) error
	StartBundle(ctx context.Context, bc BundleContext) error
	ProcessElement(ctx context.Context, ec ElementContext[I]) error
	FinishBundle(ctx context.Context, bc BundleContext) error
	Teardown(ctx context.Context) error
	AllowedTimestampSkew() time.Duration
	PopulateDisplayData(builder DisplayBuilder)
}

// WindowAccessRequirer marks an Fn whose per-element calls must each be
// scoped to exactly one window. Engines explode multi-window elements before
// calling such an Fn.
type WindowAccessRequirer interface {
	RequiresWindowAccess()
}

// RequiresWindowAccess reports whether fn carries the single-window marker.
func RequiresWindowAccess[I any](fn Fn[I]) bool {
	_, ok := fn.(WindowAccessRequirer)
	return ok
}

type bundleContext struct {
	opts Options
	sink OutputSink
}

// NewBundleContext builds a BundleContext from its collaborators.
func NewBundleContext(opts Options, sink OutputSink) BundleContext {
	return &bundleContext{opts: opts, sink: sink}
}

func (b *bundleContext) Options() Options { return b.opts }
func (b *bundleContext) Sink() OutputSink { return b.sink }

// ElementData is the per-element state an engine tracks.
type ElementData[I any] struct {
	Value     I
	Timestamp time.Time
	Pane      window.PaneInfo
	Window    window.Window
}

type elementContext[I any] struct {
	BundleContext
	data ElementData[I]
	side SideInputReader
}

// NewElementContext builds an ElementContext for one element of a bundle.
func NewElementContext[I any](bundle BundleContext, data ElementData[I], side SideInputReader) ElementContext[I] {
	if data.Window == nil {
		data.Window = window.GlobalWindow{}
	}
	return &elementContext[I]{BundleContext: bundle, data: data, side: side}
}

func (e *elementContext[I]) Element() I                  { return e.data.Value }
func (e *elementContext[I]) Timestamp() time.Time        { return e.data.Timestamp }
func (e *elementContext[I]) Pane() window.PaneInfo       { return e.data.Pane }
func (e *elementContext[I]) Window() window.Window       { return e.data.Window }
func (e *elementContext[I]) SideInputs() SideInputReader { return e.side }
