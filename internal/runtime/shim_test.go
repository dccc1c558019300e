package runtime

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
	"github.com/drblury/procflow/internal/runtime/signature"
	"github.com/drblury/procflow/internal/runtime/window"
)

func runBundle(t *testing.T, fn engine.Fn[string], sink engine.OutputSink, lines ...string) {
	t.Helper()
	ctx := context.Background()
	bundle := engine.NewBundleContext(mapOptions{}, sink)
	require.NoError(t, fn.StartBundle(ctx, bundle))
	for _, line := range lines {
		ec := engine.NewElementContext(bundle, engine.ElementData[string]{Value: line, Timestamp: lineTime, Pane: window.NoFiring}, nil)
		require.NoError(t, fn.ProcessElement(ctx, ec))
	}
	require.NoError(t, fn.FinishBundle(ctx, bundle))
}

func TestShimDrivesProcessor(t *testing.T) {
	proc := &splitFn{}
	shim, err := NewShim(proc, WithResolver(signature.NewResolver()))
	require.NoError(t, err)
	assert.False(t, shim.Rehydrated())

	fn := shim.Fn()
	assert.Same(t, shim, fn)
	assert.False(t, engine.RequiresWindowAccess(fn))

	require.NoError(t, fn.Setup(context.Background(), mapOptions{"min_length": "4"}))
	assert.True(t, shim.Rehydrated())

	sink := &CollectingSink{}
	runBundle(t, fn, sink, "the quick brown fox", "jumps over")
	require.NoError(t, fn.Teardown(context.Background()))

	assert.Equal(t, []any{"quick", "brown", "jumps", "over"}, outputValues(sink.Events(), ""))
	assert.Equal(t, []any{4}, outputValues(sink.Events(), "count"))
	for _, e := range sink.Events() {
		if e.Tag == "" {
			assert.True(t, e.HasTimestamp)
			assert.Equal(t, lineTime, e.Timestamp)
		}
	}
	assert.Equal(t, 1, proc.setups)
	assert.Equal(t, 1, proc.prepared)
	assert.Equal(t, 1, proc.teardowns)
}

func TestShimRejectsBadSignature(t *testing.T) {
	_, err := NewShim[string, string](badSignatureFn{}, WithResolver(signature.NewResolver()))
	require.Error(t, err)
	assert.True(t, errspkg.IsSignatureError(err))

	_, err = NewFn[string, string](nil)
	assert.ErrorIs(t, err, errspkg.ErrProcessorRequired)
}

func TestShimEnforcesLifecycleOrder(t *testing.T) {
	fn, err := NewFn[string, string](&splitFn{}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	err = fn.StartBundle(context.Background(), engine.NewBundleContext(nil, &CollectingSink{}))
	var lifecycleErr *errspkg.LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
	assert.Equal(t, "BundleStart", lifecycleErr.To)
}

func TestWindowedShim(t *testing.T) {
	fn, err := NewFn[string, string](windowLabelFn{}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	windowed, ok := fn.(*WindowedShim[string, string])
	require.True(t, ok)
	assert.True(t, engine.RequiresWindowAccess[string](windowed))

	ctx := context.Background()
	sink := &CollectingSink{}
	bundle := engine.NewBundleContext(nil, sink)
	require.NoError(t, fn.Setup(ctx, nil))
	require.NoError(t, fn.StartBundle(ctx, bundle))

	w := window.FixedWindowFor(lineTime, time.Minute)
	require.NoError(t, fn.ProcessElement(ctx, engine.NewElementContext(bundle, engine.ElementData[string]{Value: "fox", Timestamp: lineTime, Window: w}, nil)))
	require.NoError(t, fn.ProcessElement(ctx, engine.NewElementContext(bundle, engine.ElementData[string]{Value: "owl", Timestamp: lineTime}, nil)))
	require.NoError(t, fn.FinishBundle(ctx, bundle))

	assert.Equal(t, []any{"fox@" + w.String(), "owl@" + window.GlobalWindow{}.String()}, outputValues(sink.Events(), ""))
}

func TestShimHooks(t *testing.T) {
	var started, done []lifecycle.Phase
	var failed []error
	hooks := PhaseHooks{
		OnPhaseStart: func(pc PhaseContext) { started = append(started, pc.Phase) },
		OnPhaseDone:  func(pc PhaseContext) { done = append(done, pc.Phase) },
		OnPhaseError: func(pc PhaseContext, err error) {
			assert.Equal(t, lifecycle.PhasePerElement, pc.Phase)
			assert.Equal(t, 1, pc.Bundle)
			failed = append(failed, err)
		},
	}
	fn, err := NewFn[string, string](&splitFn{}, WithResolver(signature.NewResolver()), WithHooks(hooks))
	require.NoError(t, err)

	ctx := context.Background()
	bundle := engine.NewBundleContext(nil, &CollectingSink{})
	require.NoError(t, fn.Setup(ctx, nil))
	require.NoError(t, fn.StartBundle(ctx, bundle))
	err = fn.ProcessElement(ctx, engine.NewElementContext(bundle, engine.ElementData[string]{Value: "boom"}, nil))
	require.Error(t, err)

	var phaseErr *errspkg.PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, "PerElement", phaseErr.Phase)
	assert.Equal(t, []lifecycle.Phase{lifecycle.PhaseSetup, lifecycle.PhaseBundleStart, lifecycle.PhasePerElement}, started)
	assert.Equal(t, []lifecycle.Phase{lifecycle.PhaseSetup, lifecycle.PhaseBundleStart}, done)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], err)
}

func TestProcessorOfAndType(t *testing.T) {
	proc := &splitFn{MinLength: 2}
	fn, err := NewFn[string, string](proc, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	got, ok := ProcessorOf[string, string](fn)
	require.True(t, ok)
	assert.Same(t, proc, got)
	assert.Equal(t, reflect.TypeOf(proc), ProcessorType(fn))

	windowed, err := NewFn[string, string](windowLabelFn{}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)
	_, ok = ProcessorOf[string, string](windowed)
	assert.True(t, ok)

	_, ok = ProcessorOf[string, int](fn)
	assert.False(t, ok)
	assert.Nil(t, ProcessorType[string](nil))
}

func TestShimDelegates(t *testing.T) {
	shim, err := NewShim[string, string](&splitFn{MinLength: 3}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	assert.Equal(t, time.Second, shim.AllowedTimestampSkew())
	assert.Equal(t, reflect.TypeFor[string](), shim.InputType())
	assert.Equal(t, reflect.TypeFor[string](), shim.OutputType())

	other, err := NewShim[string, string](windowLabelFn{}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)
	assert.Zero(t, other.AllowedTimestampSkew())

	display := engine.NewDisplayData("job")
	shim.PopulateDisplayData(display)
	v, ok := display.Get("job", "processor")
	assert.True(t, ok)
	assert.Equal(t, shim.Descriptor().TypeName(), v)
	v, ok = display.Get(shim.Descriptor().TypeName(), "minLength")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestShimRehydrateUsesResolverCache(t *testing.T) {
	resolver := signature.NewResolver()
	first, err := NewShim[string, string](&splitFn{}, WithResolver(resolver))
	require.NoError(t, err)
	second, err := NewShim[string, string](&splitFn{}, WithResolver(resolver))
	require.NoError(t, err)

	require.NoError(t, first.Rehydrate())
	require.NoError(t, second.Rehydrate())
	assert.Equal(t, int64(1), resolver.Introspections())
	assert.Same(t, first.Descriptor(), second.Descriptor())
}

func TestShimRehydrateKeepsRunningLifecycle(t *testing.T) {
	proc := &splitFn{}
	shim, err := NewShim[string, string](proc, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	require.NoError(t, shim.Setup(context.Background(), mapOptions{}))
	require.NoError(t, shim.Rehydrate())

	var lifecycleErr *errspkg.LifecycleError
	assert.ErrorAs(t, shim.Setup(context.Background(), mapOptions{}), &lifecycleErr)
	assert.Equal(t, 1, proc.setups)

	runBundle(t, shim, &CollectingSink{}, "still running")
	require.NoError(t, shim.Teardown(context.Background()))
	assert.Equal(t, 1, proc.teardowns)
}

func TestShimSetupFailureIsPhaseTagged(t *testing.T) {
	fn, err := NewFn[string, string](&splitFn{}, WithResolver(signature.NewResolver()))
	require.NoError(t, err)

	err = fn.Setup(context.Background(), mapOptions{"min_length": "four"})
	require.Error(t, err)
	var phaseErr *errspkg.PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, "Setup", phaseErr.Phase)
}
