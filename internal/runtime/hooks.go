package runtime

import (
	"time"

	"github.com/drblury/procflow/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
)

// PhaseContext describes one lifecycle call to hooks.
type PhaseContext struct {
	// Processor is the type name of the adapted processor.
	Processor string
	// Phase is the lifecycle phase being invoked.
	Phase lifecycle.Phase
	// Bundle counts bundles started on the current invoker, starting at 1.
	// It is 0 for Setup and for calls before the first bundle.
	Bundle int
	// StartedAt is when the call started.
	StartedAt time.Time
	// Duration is how long the call took (only set in OnPhaseDone and OnPhaseError).
	Duration time.Duration
}

// PhaseHooks defines callbacks around every lifecycle call a shim makes.
// All hooks are optional - nil hooks are simply not called.
type PhaseHooks struct {
	// OnPhaseStart is called before the processor method is invoked.
	OnPhaseStart func(ctx PhaseContext)

	// OnPhaseDone is called when the call completed without error.
	OnPhaseDone func(ctx PhaseContext)

	// OnPhaseError is called with the phase-tagged error of a failed call.
	OnPhaseError func(ctx PhaseContext, err error)
}

// Merge combines two PhaseHooks, creating a new PhaseHooks that calls both.
// The hooks from 'other' are called after the hooks from 'h'.
func (h PhaseHooks) Merge(other PhaseHooks) PhaseHooks {
	return PhaseHooks{
		OnPhaseStart: chainPhaseHooks(h.OnPhaseStart, other.OnPhaseStart),
		OnPhaseDone:  chainPhaseHooks(h.OnPhaseDone, other.OnPhaseDone),
		OnPhaseError: chainPhaseErrorHooks(h.OnPhaseError, other.OnPhaseError),
	}
}

func chainPhaseHooks(a, b func(PhaseContext)) func(PhaseContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx PhaseContext) {
		a(ctx)
		b(ctx)
	}
}

func chainPhaseErrorHooks(a, b func(PhaseContext, error)) func(PhaseContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx PhaseContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h PhaseHooks) around(pc PhaseContext, call func() error) error {
	if h.OnPhaseStart != nil {
		h.OnPhaseStart(pc)
	}
	err := call()
	pc.Duration = time.Since(pc.StartedAt)
	if err != nil {
		if h.OnPhaseError != nil {
			h.OnPhaseError(pc, err)
		}
		return err
	}
	if h.OnPhaseDone != nil {
		h.OnPhaseDone(pc)
	}
	return nil
}

// LoggingHooks returns hooks that log lifecycle calls. Per-element calls are
// logged at trace level, boundary calls at debug level.
func LoggingHooks(logger loggingpkg.Logger) PhaseHooks {
	fields := func(ctx PhaseContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"processor": ctx.Processor,
			"phase":     ctx.Phase.String(),
			"bundle":    ctx.Bundle,
		}
	}
	return PhaseHooks{
		OnPhaseStart: func(ctx PhaseContext) {
			if ctx.Phase == lifecycle.PhasePerElement {
				logger.Trace("Phase started", fields(ctx))
				return
			}
			logger.Debug("Phase started", fields(ctx))
		},
		OnPhaseDone: func(ctx PhaseContext) {
			f := fields(ctx)
			f["duration_ms"] = ctx.Duration.Milliseconds()
			if ctx.Phase == lifecycle.PhasePerElement {
				logger.Trace("Phase completed", f)
				return
			}
			logger.Debug("Phase completed", f)
		},
		OnPhaseError: func(ctx PhaseContext, err error) {
			f := fields(ctx)
			f["duration_ms"] = ctx.Duration.Milliseconds()
			logger.Error("Phase failed", err, f)
		},
	}
}

// AlertingHooks returns hooks that only report failures.
func AlertingHooks(alertFunc func(ctx PhaseContext, err error)) PhaseHooks {
	return PhaseHooks{
		OnPhaseError: alertFunc,
	}
}
