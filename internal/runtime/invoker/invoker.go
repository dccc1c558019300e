// Package invoker binds a processor instance to its descriptor and turns the
// engine's lifecycle calls into calls on the processor, supplying exactly the
// parameters each method declared.
package invoker

import (
	"context"
	"fmt"
	"reflect"

	"github.com/drblury/procflow/internal/runtime/capability"
	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/signature"
)

// Invoker drives one processor instance through its lifecycle. Calls must
// not overlap.
type Invoker[I, O any] interface {
	InvokeSetup(ctx context.Context, opts engine.Options) error
	InvokeStartBundle(ctx context.Context, bc engine.BundleContext) error
	InvokeProcessElement(ctx context.Context, ec engine.ElementContext[I]) error
	InvokeFinishBundle(ctx context.Context, bc engine.BundleContext) error
	InvokeTeardown(ctx context.Context) error

	// Windowed reports whether per-element calls must be scoped to a single
	// window.
	Windowed() bool
	Descriptor() *signature.Descriptor
	Processor() processor.Processor[I, O]
	Tracker() *lifecycle.Tracker
}

// New builds the invoker variant selected by the descriptor's window bit.
func New[I, O any](fn processor.Processor[I, O], desc *signature.Descriptor) (Invoker[I, O], error) {
	if fn == nil {
		return nil, errspkg.ErrProcessorRequired
	}
	if desc == nil {
		return nil, fmt.Errorf("procflow: descriptor is required for %T", fn)
	}
	if t := reflect.TypeOf(fn); desc.Type() != t {
		return nil, fmt.Errorf("procflow: descriptor of %s does not describe %s", desc.TypeName(), signature.TypeName(t))
	}
	base := newPlain(fn, desc)
	if desc.UsesSingleWindow() {
		return &windowed[I, O]{plain: base}, nil
	}
	return base, nil
}

type plain[I, O any] struct {
	fn       processor.Processor[I, O]
	desc     *signature.Descriptor
	tracker  *lifecycle.Tracker
	access   capability.Access
	setup    processor.Setupper
	starter  processor.BundleStarter[O]
	finisher processor.BundleFinisher[O]
	teardown processor.Teardowner
}

func newPlain[I, O any](fn processor.Processor[I, O], desc *signature.Descriptor) *plain[I, O] {
	p := &plain[I, O]{
		fn:      fn,
		desc:    desc,
		tracker: lifecycle.NewTracker(),
		access: capability.Access{
			Window:     desc.UsesSingleWindow(),
			SideInputs: desc.SideInputTags(),
		},
	}
	if desc.Implements(processor.MethodSetup) {
		p.setup, _ = fn.(processor.Setupper)
	}
	if desc.Implements(processor.MethodStartBundle) {
		p.starter, _ = fn.(processor.BundleStarter[O])
	}
	if desc.Implements(processor.MethodFinishBundle) {
		p.finisher, _ = fn.(processor.BundleFinisher[O])
	}
	if desc.Implements(processor.MethodTeardown) {
		p.teardown, _ = fn.(processor.Teardowner)
	}
	return p
}

func (p *plain[I, O]) Windowed() bool                        { return false }
func (p *plain[I, O]) Descriptor() *signature.Descriptor     { return p.desc }
func (p *plain[I, O]) Processor() processor.Processor[I, O] { return p.fn }
func (p *plain[I, O]) Tracker() *lifecycle.Tracker           { return p.tracker }

func (p *plain[I, O]) InvokeSetup(ctx context.Context, opts engine.Options) error {
	return p.run(lifecycle.PhaseSetup, func() error {
		if p.setup == nil {
			return nil
		}
		cc := capability.NewBundleContext[O](lifecycle.PhaseSetup, opts, nil)
		defer cc.Release()
		args := processor.LifecycleArgs{}
		for _, param := range p.desc.Params(processor.MethodSetup) {
			if param.Kind == processor.ParamContext {
				args.Context = cc
				args.Bound = append(args.Bound, processor.Bound{Param: param, Value: cc})
			}
		}
		return p.setup.Setup(ctx, args)
	})
}

func (p *plain[I, O]) InvokeStartBundle(ctx context.Context, bc engine.BundleContext) error {
	return p.run(lifecycle.PhaseBundleStart, func() error {
		if prep, ok := p.fn.(processor.Preparer); ok {
			prep.PrepareForProcessing()
		}
		if p.starter == nil {
			return nil
		}
		cc := capability.NewBundleContext[O](lifecycle.PhaseBundleStart, bc.Options(), bc.Sink())
		defer cc.Release()
		return p.starter.StartBundle(ctx, p.bundleArgs(processor.MethodStartBundle, cc))
	})
}

func (p *plain[I, O]) InvokeProcessElement(ctx context.Context, ec engine.ElementContext[I]) error {
	return p.run(lifecycle.PhasePerElement, func() error {
		cc := capability.NewElementContext[I, O](ctx, ec, p.access)
		defer cc.Release()
		args, err := p.elementArgs(cc)
		if err != nil {
			return err
		}
		return p.fn.ProcessElement(ctx, args)
	})
}

func (p *plain[I, O]) InvokeFinishBundle(ctx context.Context, bc engine.BundleContext) error {
	return p.run(lifecycle.PhaseBundleFinish, func() error {
		if p.finisher == nil {
			return nil
		}
		cc := capability.NewBundleContext[O](lifecycle.PhaseBundleFinish, bc.Options(), bc.Sink())
		defer cc.Release()
		return p.finisher.FinishBundle(ctx, p.bundleArgs(processor.MethodFinishBundle, cc))
	})
}

func (p *plain[I, O]) InvokeTeardown(ctx context.Context) error {
	return p.run(lifecycle.PhaseTeardown, func() error {
		if p.teardown == nil {
			return nil
		}
		cc := capability.NewBundleContext[O](lifecycle.PhaseTeardown, nil, nil)
		defer cc.Release()
		args := processor.LifecycleArgs{}
		for _, param := range p.desc.Params(processor.MethodTeardown) {
			if param.Kind == processor.ParamContext {
				args.Context = cc
				args.Bound = append(args.Bound, processor.Bound{Param: param, Value: cc})
			}
		}
		return p.teardown.Teardown(ctx, args)
	})
}

// run enters phase, executes body and tags a failure with the phase. The
// user error stays reachable through errors.Is and errors.As.
func (p *plain[I, O]) run(phase lifecycle.Phase, body func() error) error {
	if err := p.tracker.Enter(phase); err != nil {
		return err
	}
	err := body()
	if err != nil {
		err = &errspkg.PhaseError{Phase: phase.String(), Processor: p.desc.TypeName(), Err: err}
	}
	p.tracker.Exit(err)
	return err
}

func (p *plain[I, O]) bundleArgs(m processor.Method, cc *capability.BundleContext[O]) processor.BundleArgs[O] {
	args := processor.BundleArgs[O]{}
	for _, param := range p.desc.Params(m) {
		var value any
		switch param.Kind {
		case processor.ParamContext:
			args.Context = cc
			value = cc
		case processor.ParamOutputReceiver:
			args.Output = cc.Receiver()
			value = args.Output
		}
		args.Bound = append(args.Bound, processor.Bound{Param: param, Value: value})
	}
	return args
}

func (p *plain[I, O]) elementArgs(cc *capability.ElementContext[I, O]) (processor.ElementArgs[I, O], error) {
	args := processor.ElementArgs[I, O]{}
	for _, param := range p.desc.Params(processor.MethodProcessElement) {
		var (
			value any
			err   error
		)
		switch param.Kind {
		case processor.ParamElement:
			args.Element, err = cc.Element()
			value = args.Element
		case processor.ParamContext:
			args.Context = cc
			value = cc
		case processor.ParamWindow:
			args.Window, err = cc.Window()
			value = args.Window
		case processor.ParamTimestamp:
			args.Timestamp, err = cc.Timestamp()
			value = args.Timestamp
		case processor.ParamPane:
			args.Pane, err = cc.Pane()
			value = args.Pane
		case processor.ParamSideInput:
			if args.SideInputs == nil {
				args.SideInputs = cc.SideInputs()
			}
			value = args.SideInputs
		case processor.ParamOutputReceiver:
			args.Output = cc.Receiver()
			value = args.Output
		case processor.ParamInputProvider:
			args.Input = cc.Provider()
			value = args.Input
		}
		if err != nil {
			return args, err
		}
		args.Bound = append(args.Bound, processor.Bound{Param: param, Value: value})
	}
	return args, nil
}

// windowed is the variant for processors that read the window. The engine
// must call it once per window of an element.
type windowed[I, O any] struct {
	*plain[I, O]
}

// RequiresWindowAccess marks the single-window requirement.
func (w *windowed[I, O]) RequiresWindowAccess() {}

func (w *windowed[I, O]) Windowed() bool { return true }

func (w *windowed[I, O]) InvokeProcessElement(ctx context.Context, ec engine.ElementContext[I]) error {
	if ec.Window() == nil {
		return &errspkg.PhaseError{
			Phase:     lifecycle.PhasePerElement.String(),
			Processor: w.desc.TypeName(),
			Err:       errspkg.ErrWindowRequired,
		}
	}
	return w.plain.InvokeProcessElement(ctx, ec)
}
