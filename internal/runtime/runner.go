package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/procflow/internal/runtime/metadata"
	"github.com/drblury/procflow/internal/runtime/window"
)

// DefaultBundleSize is used when RunnerConfig.BundleSize is not positive.
const DefaultBundleSize = 100

// ElementDecoder turns an incoming message into the element handed to the
// processor.
type ElementDecoder[I any] func(msg *message.Message) (engine.ElementData[I], error)

// UndecodableElementError marks a message that could not be turned into an
// element. The default poison queue filter matches it.
type UndecodableElementError struct {
	MessageUUID string
	Err         error
}

func (e *UndecodableElementError) Error() string {
	return "undecodable element " + e.MessageUUID + ": " + e.Err.Error()
}

func (e *UndecodableElementError) Unwrap() error {
	return e.Err
}

// JSONElementDecoder decodes the payload as JSON into I. See ElementFromMessage
// for the timestamp, window and pane.
func JSONElementDecoder[I any]() ElementDecoder[I] {
	return func(msg *message.Message) (engine.ElementData[I], error) {
		var value I
		if err := jsoncodec.Unmarshal(msg.Payload, &value); err != nil {
			return engine.ElementData[I]{}, fmt.Errorf("decode payload: %w", err)
		}
		return ElementFromMessage(msg, value)
	}
}

// ElementFromMessage wraps value with the element state carried by msg. The
// timestamp is the event time metadata, else the time in the message ULID,
// else the current time.
func ElementFromMessage[I any](msg *message.Message, value I) (engine.ElementData[I], error) {
	ts, ok, err := metadatapkg.EventTime(msg.Metadata)
	if err != nil {
		return engine.ElementData[I]{}, err
	}
	if !ok {
		if fromID, ok := idspkg.TimeOf(msg.UUID); ok {
			ts = fromID
		} else {
			ts = time.Now().UTC()
		}
	}

	pane, err := metadatapkg.Pane(msg.Metadata)
	if err != nil {
		return engine.ElementData[I]{}, err
	}

	data := engine.ElementData[I]{Value: value, Timestamp: ts, Pane: pane}
	w, ok, err := metadatapkg.Window(msg.Metadata)
	if err != nil {
		return engine.ElementData[I]{}, err
	}
	if ok {
		data.Window = w
	}
	return data, nil
}

// RunnerConfig tunes how a Runner groups messages into bundles.
type RunnerConfig struct {
	Name string
	// BundleSize closes a bundle after that many elements.
	BundleSize int
	// FlushInterval closes an open bundle after that much idle time. Zero
	// keeps bundles open until BundleSize or Close.
	FlushInterval time.Duration
	// WindowSize assigns fixed windows to elements that arrive without one.
	WindowSize time.Duration
	Options    engine.Options
	SideInputs engine.SideInputReader
	Logger     loggingpkg.Logger
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.BundleSize <= 0 {
		c.BundleSize = DefaultBundleSize
	}
	if c.Logger == nil {
		c.Logger = loggingpkg.NopLogger()
	}
	return c
}

// Runner drives an engine.Fn from a Watermill subscription. Handle is a
// message.NoPublishHandlerFunc: it runs Setup on the first message, opens a
// bundle lazily, processes one element per message and closes the bundle on
// size, idle flush, or Close. A returned error nacks the message. A failed
// size-triggered finish is logged, not returned, since the message was
// already processed. A failed Setup is cached and reported for every message.
type Runner[I any] struct {
	cfg    RunnerConfig
	fn     engine.Fn[I]
	decode ElementDecoder[I]
	sink   engine.OutputSink
	logger loggingpkg.Logger
	tracer trace.Tracer

	mu         sync.Mutex
	setupTried bool
	setupErr   error
	closed     bool
	bundle     engine.BundleContext
	bundleCtx  context.Context
	span       trace.Span
	elements   int
	finished   int
	timer      *time.Timer
}

// NewRunner validates its collaborators. A nil decode selects
// JSONElementDecoder.
func NewRunner[I any](fn engine.Fn[I], decode ElementDecoder[I], sink engine.OutputSink, cfg RunnerConfig) (*Runner[I], error) {
	if fn == nil {
		return nil, errspkg.ErrShimRequired
	}
	if sink == nil {
		return nil, errspkg.ErrSinkRequired
	}
	if decode == nil {
		decode = JSONElementDecoder[I]()
	}
	cfg = cfg.withDefaults()
	if cfg.Name == "" {
		if t := ProcessorType(fn); t != nil {
			cfg.Name = t.String()
		}
	}
	return &Runner[I]{
		cfg:    cfg,
		fn:     fn,
		decode: decode,
		sink:   sink,
		logger: cfg.Logger.With(loggingpkg.LogFields{"runner": cfg.Name}),
		tracer: otel.Tracer("procflow"),
	}, nil
}

// Name identifies the runner in logs and spans.
func (r *Runner[I]) Name() string {
	return r.cfg.Name
}

// Bundles returns the number of bundles finished successfully.
func (r *Runner[I]) Bundles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Handle processes msg as one element.
func (r *Runner[I]) Handle(msg *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errspkg.ErrRunnerClosed
	}
	ctx := msg.Context()
	if err := r.setupLocked(ctx); err != nil {
		return err
	}

	data, err := r.decode(msg)
	if err != nil {
		return &UndecodableElementError{MessageUUID: msg.UUID, Err: err}
	}
	if data.Window == nil && r.cfg.WindowSize > 0 {
		data.Window = window.FixedWindowFor(data.Timestamp, r.cfg.WindowSize)
	}

	if r.bundle == nil {
		if err := r.startBundleLocked(ctx); err != nil {
			return err
		}
	}

	ec := engine.NewElementContext(r.bundle, data, r.cfg.SideInputs)
	if err := r.fn.ProcessElement(ctx, ec); err != nil {
		r.abortBundleLocked(err)
		return err
	}
	r.elements++

	if r.elements >= r.cfg.BundleSize {
		// the element is processed and its outputs emitted; a nack would
		// replay them
		if err := r.finishBundleLocked(); err != nil {
			r.logger.Error("Bundle finish failed", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		}
		return nil
	}
	r.armTimerLocked()
	return nil
}

// Flush closes the open bundle, if any.
func (r *Runner[I]) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bundle == nil {
		return nil
	}
	return r.finishBundleLocked()
}

// Close finishes the open bundle and tears the processor down. Teardown runs
// even when finishing fails; both errors are returned.
func (r *Runner[I]) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.stopTimerLocked()

	var errs []error
	if r.bundle != nil {
		errs = append(errs, r.finishBundleLocked())
	}
	if r.setupTried {
		if err := r.fn.Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Debug("Runner closed", loggingpkg.LogFields{"bundles": r.finished})
	return errors.Join(errs...)
}

func (r *Runner[I]) setupLocked(ctx context.Context) error {
	if r.setupTried {
		return r.setupErr
	}
	r.setupTried = true
	if err := r.fn.Setup(ctx, r.cfg.Options); err != nil {
		r.logger.Error("Processor setup failed", err, nil)
		r.setupErr = fmt.Errorf("%w: %w", errspkg.ErrSetupFailed, err)
	}
	return r.setupErr
}

func (r *Runner[I]) startBundleLocked(ctx context.Context) error {
	r.bundleCtx, r.span = r.tracer.Start(
		context.WithoutCancel(ctx),
		"procflow.bundle",
		trace.WithAttributes(
			attribute.String("procflow.runner", r.cfg.Name),
			attribute.Int("procflow.bundle", r.finished+1),
		),
	)
	if ps, ok := r.sink.(*PublisherSink); ok {
		ps.WithContext(r.bundleCtx)
	}
	r.bundle = engine.NewBundleContext(r.cfg.Options, r.sink)
	r.elements = 0

	if err := r.fn.StartBundle(r.bundleCtx, r.bundle); err != nil {
		r.abortBundleLocked(err)
		return err
	}
	return nil
}

func (r *Runner[I]) finishBundleLocked() error {
	r.stopTimerLocked()
	err := r.fn.FinishBundle(r.bundleCtx, r.bundle)
	if err != nil {
		r.abortBundleLocked(err)
		return err
	}

	r.span.SetAttributes(attribute.Int("procflow.elements", r.elements))
	r.span.End()
	r.finished++
	r.logger.Debug("Bundle finished", loggingpkg.LogFields{
		"bundle":   r.finished,
		"elements": r.elements,
	})
	r.resetBundleLocked()
	return nil
}

// abortBundleLocked drops the open bundle after a failure. The next message
// starts a fresh one.
func (r *Runner[I]) abortBundleLocked(err error) {
	r.stopTimerLocked()
	if r.span != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		r.span.End()
	}
	r.logger.Error("Bundle aborted", err, loggingpkg.LogFields{
		"bundle":   r.finished + 1,
		"elements": r.elements,
	})
	r.resetBundleLocked()
}

func (r *Runner[I]) resetBundleLocked() {
	r.bundle = nil
	r.bundleCtx = nil
	r.span = nil
	r.elements = 0
}

func (r *Runner[I]) armTimerLocked() {
	if r.cfg.FlushInterval <= 0 {
		return
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(r.cfg.FlushInterval, r.flushIdle)
		return
	}
	r.timer.Reset(r.cfg.FlushInterval)
}

func (r *Runner[I]) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Runner[I]) flushIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.bundle == nil {
		return
	}
	if err := r.finishBundleLocked(); err != nil {
		r.logger.Error("Idle bundle flush failed", err, nil)
	}
}
