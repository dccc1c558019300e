package capability

import (
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/window"
)

var (
	_ processor.BundleCapabilities[any] = (*BundleContext[any])(nil)
	_ processor.OutputReceiver[any]     = receiver[any]{}
)

// BundleContext serves Setup, StartBundle, FinishBundle and Teardown.
type BundleContext[O any] struct {
	scope
	opts engine.Options
	sink engine.OutputSink
}

// NewBundleContext builds the context for one boundary call. opts and sink
// may be nil for phases that cannot use them.
func NewBundleContext[O any](phase lifecycle.Phase, opts engine.Options, sink engine.OutputSink) *BundleContext[O] {
	return &BundleContext[O]{scope: scope{phase: phase}, opts: opts, sink: sink}
}

// Release ends the context. Every later request fails.
func (b *BundleContext[O]) Release() {
	b.released = true
}

func (b *BundleContext[O]) Phase() string {
	return b.phase.String()
}

func (b *BundleContext[O]) Options() (engine.Options, error) {
	if err := b.check(Options); err != nil {
		return nil, err
	}
	return b.opts, nil
}

// Window always fails; there is no ambient window at bundle boundaries.
func (b *BundleContext[O]) Window() (window.Window, error) {
	return nil, b.deny(Window, "no window exists outside per-element processing")
}

func (b *BundleContext[O]) Output(value O) error {
	return b.emit(Emit, engine.OutputEvent{Value: value})
}

func (b *BundleContext[O]) OutputWithTimestamp(value O, ts time.Time) error {
	return b.emit(Emit, engine.OutputEvent{Value: value, Timestamp: ts, HasTimestamp: true})
}

func (b *BundleContext[O]) OutputTagged(tag string, value any) error {
	return b.emit(Emit, engine.OutputEvent{Value: value, Tag: tag})
}

func (b *BundleContext[O]) OutputTaggedWithTimestamp(tag string, value any, ts time.Time) error {
	return b.emit(Emit, engine.OutputEvent{Value: value, Tag: tag, Timestamp: ts, HasTimestamp: true})
}

// Receiver returns the primary output emitter bound to this context.
func (b *BundleContext[O]) Receiver() processor.OutputReceiver[O] {
	return receiver[O]{ctx: b}
}

func (b *BundleContext[O]) emit(c Capability, event engine.OutputEvent) error {
	if err := b.check(c); err != nil {
		return err
	}
	if b.sink == nil {
		return errspkg.ErrSinkRequired
	}
	return b.sink.Emit(event)
}

type receiver[O any] struct {
	ctx *BundleContext[O]
}

func (r receiver[O]) Output(value O) error {
	return r.ctx.emit(OutputReceiver, engine.OutputEvent{Value: value})
}

func (r receiver[O]) OutputWithTimestamp(value O, ts time.Time) error {
	return r.ctx.emit(OutputReceiver, engine.OutputEvent{Value: value, Timestamp: ts, HasTimestamp: true})
}
