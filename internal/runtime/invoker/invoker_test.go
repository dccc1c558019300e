package invoker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/signature"
	"github.com/drblury/procflow/internal/runtime/window"
)

var (
	eventTime = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	minute    = window.FixedWindowFor(eventTime, time.Minute)
)

// upperFn emits the upper-cased element and records its lifecycle.
type upperFn struct {
	calls    []string
	prepared int
	failOn   string
	kept     processor.ElementCapabilities[string, string]
	lastArgs processor.ElementArgs[string, string]
}

func (*upperFn) Parameters() processor.Declaration {
	return processor.Declaration{
		Setup:          []processor.Param{processor.RawContext},
		StartBundle:    []processor.Param{processor.OutputReceiverParam},
		ProcessElement: []processor.Param{processor.Element, processor.Timestamp, processor.Pane, processor.RawContext, processor.OutputReceiverParam},
		FinishBundle:   []processor.Param{processor.RawContext},
	}
}

func (f *upperFn) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errors.New(name + " exploded")
	}
	return nil
}

func (f *upperFn) PrepareForProcessing() { f.prepared++ }

func (f *upperFn) Setup(_ context.Context, args processor.LifecycleArgs) error {
	if _, err := args.Context.Options(); err != nil {
		return err
	}
	return f.record("setup")
}

func (f *upperFn) StartBundle(_ context.Context, args processor.BundleArgs[string]) error {
	if err := args.Output.Output("start"); err != nil {
		return err
	}
	return f.record("start")
}

func (f *upperFn) ProcessElement(_ context.Context, args processor.ElementArgs[string, string]) error {
	f.lastArgs = args
	f.kept = args.Context
	if err := f.record("process"); err != nil {
		return err
	}
	return args.Output.OutputWithTimestamp(strings.ToUpper(args.Element), args.Timestamp)
}

func (f *upperFn) FinishBundle(_ context.Context, args processor.BundleArgs[string]) error {
	if err := args.Context.OutputTagged("count", len(f.calls)); err != nil {
		return err
	}
	return f.record("finish")
}

func (f *upperFn) Teardown(context.Context, processor.LifecycleArgs) error {
	return f.record("teardown")
}

// windowFn reads the window and its side input.
type windowFn struct {
	windows []window.Window
	stop    any
}

func (windowFn) Parameters() processor.Declaration {
	return processor.Declaration{
		ProcessElement: []processor.Param{processor.Window, processor.SideInput("stop"), processor.InputProviderParam},
	}
}

func (f *windowFn) ProcessElement(_ context.Context, args processor.ElementArgs[string, string]) error {
	f.windows = append(f.windows, args.Window)
	v, err := args.SideInputs.Get("stop")
	if err != nil {
		return err
	}
	f.stop = v
	_, err = args.Input.Get()
	return err
}

type bareFn struct {
	prepared int
}

func (f *bareFn) PrepareForProcessing() { f.prepared++ }

func (*bareFn) ProcessElement(context.Context, processor.ElementArgs[string, string]) error {
	return nil
}

type mapOptions map[string]string

func (m mapOptions) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapOptions) Keys() []string { return nil }

type sinkRecorder struct {
	events []engine.OutputEvent
}

func (s *sinkRecorder) Emit(e engine.OutputEvent) error {
	s.events = append(s.events, e)
	return nil
}

type sideInputs map[string]any

func (s sideInputs) Lookup(_ context.Context, tag string) (any, error) { return s[tag], nil }

func newInvoker[I, O any](t *testing.T, fn processor.Processor[I, O]) Invoker[I, O] {
	t.Helper()
	desc, err := signature.Resolve[I, O](signature.NewResolver(), fn)
	require.NoError(t, err)
	inv, err := New(fn, desc)
	require.NoError(t, err)
	return inv
}

func element(bc engine.BundleContext, value string) engine.ElementContext[string] {
	return engine.NewElementContext(bc, engine.ElementData[string]{
		Value:     value,
		Timestamp: eventTime,
		Pane:      window.PaneInfo{Timing: window.TimingEarly, IsFirst: true},
		Window:    minute,
	}, sideInputs{"stop": "the"})
}

func TestNewSelectsVariantFromWindowBit(t *testing.T) {
	plainInv := newInvoker[string, string](t, &upperFn{})
	assert.False(t, plainInv.Windowed())
	_, marked := plainInv.(engine.WindowAccessRequirer)
	assert.False(t, marked)

	windowedInv := newInvoker[string, string](t, &windowFn{})
	assert.True(t, windowedInv.Windowed())
	_, marked = windowedInv.(engine.WindowAccessRequirer)
	assert.True(t, marked)
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New[string, string](nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrProcessorRequired)

	_, err = New[string, string](&upperFn{}, nil)
	assert.Error(t, err)

	desc, err := signature.Resolve[string, string](signature.NewResolver(), &bareFn{})
	require.NoError(t, err)
	_, err = New[string, string](&upperFn{}, desc)
	assert.ErrorContains(t, err, "does not describe")
}

func TestFullLifecycle(t *testing.T) {
	fn := &upperFn{}
	inv := newInvoker[string, string](t, fn)
	sink := &sinkRecorder{}
	bc := engine.NewBundleContext(mapOptions{}, sink)
	ctx := context.Background()

	require.NoError(t, inv.InvokeSetup(ctx, mapOptions{}))
	for bundle := 0; bundle < 2; bundle++ {
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
		require.NoError(t, inv.InvokeProcessElement(ctx, element(bc, "a")))
		require.NoError(t, inv.InvokeProcessElement(ctx, element(bc, "b")))
		require.NoError(t, inv.InvokeFinishBundle(ctx, bc))
	}
	require.NoError(t, inv.InvokeTeardown(ctx))

	assert.Equal(t, []string{
		"setup",
		"start", "process", "process", "finish",
		"start", "process", "process", "finish",
		"teardown",
	}, fn.calls)
	assert.Equal(t, 2, fn.prepared)
	assert.Equal(t, 2, inv.Tracker().Bundles())
	assert.True(t, inv.Tracker().TornDown())

	require.Len(t, sink.events, 8)
	assert.Equal(t, engine.OutputEvent{Value: "start"}, sink.events[0])
	assert.Equal(t, engine.OutputEvent{Value: "A", Timestamp: eventTime, HasTimestamp: true}, sink.events[1])
	assert.Equal(t, engine.OutputEvent{Value: "B", Timestamp: eventTime, HasTimestamp: true}, sink.events[2])
	assert.Equal(t, engine.OutputEvent{Value: 4, Tag: "count"}, sink.events[3])
}

func TestProcessElementBindsOnlyDeclaredParameters(t *testing.T) {
	fn := &upperFn{}
	inv := newInvoker[string, string](t, fn)
	bc := engine.NewBundleContext(mapOptions{}, &sinkRecorder{})
	ctx := context.Background()

	require.NoError(t, inv.InvokeSetup(ctx, nil))
	require.NoError(t, inv.InvokeStartBundle(ctx, bc))
	require.NoError(t, inv.InvokeProcessElement(ctx, element(bc, "x")))

	args := fn.lastArgs
	assert.Equal(t, "x", args.Element)
	assert.Equal(t, eventTime, args.Timestamp)
	assert.Equal(t, window.TimingEarly, args.Pane.Timing)
	assert.Nil(t, args.Window)
	assert.Nil(t, args.SideInputs)
	assert.Nil(t, args.Input)
	assert.NotNil(t, args.Output)
	assert.Equal(t, []processor.ParamKind{
		processor.ParamElement, processor.ParamTimestamp, processor.ParamPane, processor.ParamContext, processor.ParamOutputReceiver,
	}, args.Bound.Kinds())

	_, err := fn.kept.Window()
	assert.True(t, errspkg.IsCapabilityError(err))
}

func TestContextIsReleasedAfterCall(t *testing.T) {
	fn := &upperFn{}
	inv := newInvoker[string, string](t, fn)
	sink := &sinkRecorder{}
	bc := engine.NewBundleContext(mapOptions{}, sink)
	ctx := context.Background()

	require.NoError(t, inv.InvokeSetup(ctx, nil))
	require.NoError(t, inv.InvokeStartBundle(ctx, bc))
	require.NoError(t, inv.InvokeProcessElement(ctx, element(bc, "x")))
	emitted := len(sink.events)

	err := fn.kept.Output("late")
	assert.True(t, errspkg.IsCapabilityError(err))
	err = fn.lastArgs.Output.Output("late")
	assert.True(t, errspkg.IsCapabilityError(err))
	assert.Len(t, sink.events, emitted)
}

func TestWindowedVariantSuppliesWindowAndSideInputs(t *testing.T) {
	fn := &windowFn{}
	inv := newInvoker[string, string](t, fn)
	bc := engine.NewBundleContext(mapOptions{}, &sinkRecorder{})
	ctx := context.Background()

	require.NoError(t, inv.InvokeSetup(ctx, nil))
	require.NoError(t, inv.InvokeStartBundle(ctx, bc))
	require.NoError(t, inv.InvokeProcessElement(ctx, element(bc, "x")))
	require.NoError(t, inv.InvokeFinishBundle(ctx, bc))

	assert.Equal(t, []window.Window{minute}, fn.windows)
	assert.Equal(t, "the", fn.stop)
}

func TestPrepareRunsWithoutStartBundle(t *testing.T) {
	fn := &bareFn{}
	inv := newInvoker[string, string](t, fn)
	bc := engine.NewBundleContext(nil, nil)
	ctx := context.Background()

	require.NoError(t, inv.InvokeSetup(ctx, nil))
	for i := 0; i < 3; i++ {
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
		require.NoError(t, inv.InvokeFinishBundle(ctx, bc))
	}
	assert.Equal(t, 3, fn.prepared)
}

func TestUserErrorsCarryPhase(t *testing.T) {
	tests := []struct {
		failOn string
		phase  string
	}{
		{"setup", "Setup"},
		{"start", "BundleStart"},
		{"process", "PerElement"},
		{"finish", "BundleFinish"},
		{"teardown", "Teardown"},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			fn := &upperFn{failOn: tt.failOn}
			inv := newInvoker[string, string](t, fn)
			bc := engine.NewBundleContext(mapOptions{}, &sinkRecorder{})
			ctx := context.Background()

			errs := []error{inv.InvokeSetup(ctx, nil)}
			if errs[0] == nil {
				errs = append(errs,
					inv.InvokeStartBundle(ctx, bc),
					inv.InvokeProcessElement(ctx, element(bc, "x")),
					inv.InvokeFinishBundle(ctx, bc),
				)
			}
			errs = append(errs, inv.InvokeTeardown(ctx))
			err := errors.Join(errs...)
			require.Error(t, err)

			var phaseErr *errspkg.PhaseError
			require.True(t, errors.As(err, &phaseErr))
			assert.Equal(t, tt.phase, phaseErr.Phase)
			assert.Equal(t, "invoker.upperFn", phaseErr.Processor)
			assert.EqualError(t, phaseErr.Err, tt.failOn+" exploded")
			assert.True(t, inv.Tracker().TornDown())
		})
	}
}

func TestLifecycleOrderingIsEnforced(t *testing.T) {
	ctx := context.Background()
	bc := engine.NewBundleContext(mapOptions{}, &sinkRecorder{})

	isLifecycleErr := func(t *testing.T, err error) {
		t.Helper()
		var lcErr *errspkg.LifecycleError
		assert.True(t, errors.As(err, &lcErr), "expected LifecycleError, got %v", err)
	}

	t.Run("start before setup", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		isLifecycleErr(t, inv.InvokeStartBundle(ctx, bc))
	})
	t.Run("setup twice", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		isLifecycleErr(t, inv.InvokeSetup(ctx, nil))
	})
	t.Run("element outside bundle", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		isLifecycleErr(t, inv.InvokeProcessElement(ctx, element(bc, "x")))
	})
	t.Run("finish without start", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		isLifecycleErr(t, inv.InvokeFinishBundle(ctx, bc))
	})
	t.Run("nested start", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
		isLifecycleErr(t, inv.InvokeStartBundle(ctx, bc))
	})
	t.Run("teardown twice", func(t *testing.T) {
		fn := &upperFn{}
		inv := newInvoker[string, string](t, fn)
		require.NoError(t, inv.InvokeTeardown(ctx))
		isLifecycleErr(t, inv.InvokeTeardown(ctx))
		isLifecycleErr(t, inv.InvokeSetup(ctx, nil))
		assert.Equal(t, []string{"teardown"}, fn.calls)
	})
	t.Run("restart after failed element", func(t *testing.T) {
		fn := &upperFn{failOn: "process"}
		inv := newInvoker[string, string](t, fn)
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
		require.Error(t, inv.InvokeProcessElement(ctx, element(bc, "x")))
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
	})
	t.Run("teardown mid bundle", func(t *testing.T) {
		inv := newInvoker[string, string](t, &upperFn{})
		require.NoError(t, inv.InvokeSetup(ctx, nil))
		require.NoError(t, inv.InvokeStartBundle(ctx, bc))
		require.NoError(t, inv.InvokeTeardown(ctx))
		isLifecycleErr(t, inv.InvokeFinishBundle(ctx, bc))
	})
}

func TestWindowedRejectsMissingWindow(t *testing.T) {
	inv := newInvoker[string, string](t, &windowFn{})
	err := inv.InvokeProcessElement(context.Background(), nilWindowElement{})
	assert.ErrorIs(t, err, errspkg.ErrWindowRequired)
}

type nilWindowElement struct {
	engine.ElementContext[string]
}

func (nilWindowElement) Window() window.Window { return nil }
