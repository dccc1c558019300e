package runtime

import (
	"context"
	"reflect"
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/invoker"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/signature"
)

var (
	_ engine.Fn[any]                 = (*Shim[any, any])(nil)
	_ engine.Fn[any]                 = (*WindowedShim[any, any])(nil)
	_ engine.WindowAccessRequirer    = (*WindowedShim[any, any])(nil)
	_ engine.DisplayDataProvider     = (*Shim[any, any])(nil)
	_ processor.DisplayDataPopulator = (*Shim[any, any])(nil)
)

// ShimOption configures a Shim.
type ShimOption func(*shimOptions)

type shimOptions struct {
	resolver *signature.Resolver
	registry *ProcessorRegistry
	hooks    PhaseHooks
	logger   loggingpkg.Logger
}

// WithResolver selects the signature resolver. Defaults to the process-wide
// resolver.
func WithResolver(r *signature.Resolver) ShimOption {
	return func(o *shimOptions) { o.resolver = r }
}

// WithProcessorRegistry selects the registry used to decode processors.
func WithProcessorRegistry(r *ProcessorRegistry) ShimOption {
	return func(o *shimOptions) { o.registry = r }
}

// WithHooks adds lifecycle hooks. Repeated use merges the hooks.
func WithHooks(h PhaseHooks) ShimOption {
	return func(o *shimOptions) { o.hooks = o.hooks.Merge(h) }
}

// WithLogger sets the shim logger.
func WithLogger(l loggingpkg.Logger) ShimOption {
	return func(o *shimOptions) { o.logger = l }
}

func applyShimOptions(opts []ShimOption) shimOptions {
	o := shimOptions{
		resolver: signature.DefaultResolver,
		registry: DefaultProcessorRegistry,
		logger:   loggingpkg.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.resolver == nil {
		o.resolver = signature.DefaultResolver
	}
	if o.registry == nil {
		o.registry = DefaultProcessorRegistry
	}
	if o.logger == nil {
		o.logger = loggingpkg.NopLogger()
	}
	return o
}

// Shim adapts a processor to the engine calling convention. The processor is
// its only persistent state; the invoker is derived and rebuilt on demand.
type Shim[I, O any] struct {
	fn       processor.Processor[I, O]
	desc     *signature.Descriptor
	resolver *signature.Resolver
	hooks    PhaseHooks
	logger   loggingpkg.Logger

	inv invoker.Invoker[I, O]
}

// NewShim resolves fn's signature and wraps it. Signature errors surface here.
func NewShim[I, O any](fn processor.Processor[I, O], opts ...ShimOption) (*Shim[I, O], error) {
	o := applyShimOptions(opts)
	desc, err := signature.Resolve[I, O](o.resolver, fn)
	if err != nil {
		return nil, err
	}
	s := &Shim[I, O]{
		fn:       fn,
		desc:     desc,
		resolver: o.resolver,
		hooks:    o.hooks,
		logger:   o.logger.With(loggingpkg.LogFields{"processor": desc.TypeName()}),
	}
	return s, nil
}

// NewFn wraps fn and returns the engine-facing Fn. Processors that read the
// window get a WindowedShim.
func NewFn[I, O any](fn processor.Processor[I, O], opts ...ShimOption) (engine.Fn[I], error) {
	s, err := NewShim(fn, opts...)
	if err != nil {
		return nil, err
	}
	return s.Fn(), nil
}

// Fn returns s, or s wrapped in a WindowedShim when the processor requires
// single-window calls.
func (s *Shim[I, O]) Fn() engine.Fn[I] {
	if s.desc.UsesSingleWindow() {
		return &WindowedShim[I, O]{Shim: s}
	}
	return s
}

// Processor returns the adapted processor.
func (s *Shim[I, O]) Processor() processor.Processor[I, O] {
	return s.fn
}

// ProcessorType returns the dynamic type of the adapted processor.
func (s *Shim[I, O]) ProcessorType() reflect.Type {
	return s.desc.Type()
}

// Descriptor returns the resolved signature.
func (s *Shim[I, O]) Descriptor() *signature.Descriptor {
	return s.desc
}

// InputType is the element type the processor consumes.
func (s *Shim[I, O]) InputType() reflect.Type {
	return reflect.TypeFor[I]()
}

// OutputType is the primary output type.
func (s *Shim[I, O]) OutputType() reflect.Type {
	return reflect.TypeFor[O]()
}

// Rehydrated reports whether the invoker is currently built.
func (s *Shim[I, O]) Rehydrated() bool {
	return s.inv != nil
}

// Rehydrate builds the invoker from the processor and its descriptor. The
// descriptor comes from the resolver cache when the type was seen before.
// It does nothing once the invoker exists, so a running lifecycle keeps its
// tracker.
func (s *Shim[I, O]) Rehydrate() error {
	if s.inv != nil {
		return nil
	}
	if s.fn == nil {
		return errspkg.ErrProcessorRequired
	}
	if s.desc == nil {
		desc, err := signature.Resolve[I, O](s.resolver, s.fn)
		if err != nil {
			return err
		}
		s.desc = desc
	}
	inv, err := invoker.New(s.fn, s.desc)
	if err != nil {
		return err
	}
	s.inv = inv
	s.logger.Debug("Invoker built", loggingpkg.LogFields{"windowed": inv.Windowed()})
	return nil
}

func (s *Shim[I, O]) invoker() (invoker.Invoker[I, O], error) {
	if s.inv == nil {
		if err := s.Rehydrate(); err != nil {
			return nil, err
		}
	}
	return s.inv, nil
}

func (s *Shim[I, O]) call(phase lifecycle.Phase, fn func(invoker.Invoker[I, O]) error) error {
	inv, err := s.invoker()
	if err != nil {
		return err
	}
	bundle := inv.Tracker().Bundles()
	if phase == lifecycle.PhaseBundleStart {
		bundle++
	}
	pc := PhaseContext{
		Processor: s.desc.TypeName(),
		Phase:     phase,
		Bundle:    bundle,
		StartedAt: time.Now(),
	}
	return s.hooks.around(pc, func() error { return fn(inv) })
}

func (s *Shim[I, O]) Setup(ctx context.Context, opts engine.Options) error {
	return s.call(lifecycle.PhaseSetup, func(inv invoker.Invoker[I, O]) error {
		return inv.InvokeSetup(ctx, opts)
	})
}

func (s *Shim[I, O]) StartBundle(ctx context.Context, bc engine.BundleContext) error {
	return s.call(lifecycle.PhaseBundleStart, func(inv invoker.Invoker[I, O]) error {
		return inv.InvokeStartBundle(ctx, bc)
	})
}

func (s *Shim[I, O]) ProcessElement(ctx context.Context, ec engine.ElementContext[I]) error {
	return s.call(lifecycle.PhasePerElement, func(inv invoker.Invoker[I, O]) error {
		return inv.InvokeProcessElement(ctx, ec)
	})
}

func (s *Shim[I, O]) FinishBundle(ctx context.Context, bc engine.BundleContext) error {
	return s.call(lifecycle.PhaseBundleFinish, func(inv invoker.Invoker[I, O]) error {
		return inv.InvokeFinishBundle(ctx, bc)
	})
}

func (s *Shim[I, O]) Teardown(ctx context.Context) error {
	return s.call(lifecycle.PhaseTeardown, func(inv invoker.Invoker[I, O]) error {
		return inv.InvokeTeardown(ctx)
	})
}

// AllowedTimestampSkew delegates to the processor, zero when it has no
// opinion.
func (s *Shim[I, O]) AllowedTimestampSkew() time.Duration {
	if skewer, ok := s.fn.(processor.TimestampSkewer); ok {
		return skewer.AllowedTimestampSkew()
	}
	return 0
}

// PopulateDisplayData records the processor type and includes the
// processor's own display data under its type name.
func (s *Shim[I, O]) PopulateDisplayData(builder engine.DisplayBuilder) {
	builder.Add("processor", s.desc.TypeName())
	builder.Add("singleWindow", s.desc.UsesSingleWindow())
	if populator, ok := s.fn.(processor.DisplayDataPopulator); ok {
		builder.Include(s.desc.TypeName(), populator)
	}
}

// WindowedShim is the Shim variant for processors that read the window. It
// tells the engine, through RequiresWindowAccess, to call ProcessElement once
// per window of an element.
type WindowedShim[I, O any] struct {
	*Shim[I, O]
}

// RequiresWindowAccess marks the single-window requirement.
func (*WindowedShim[I, O]) RequiresWindowAccess() {}

// ProcessorOf returns the processor behind an Fn built by this package.
func ProcessorOf[I, O any](fn engine.Fn[I]) (processor.Processor[I, O], bool) {
	switch s := fn.(type) {
	case *Shim[I, O]:
		return s.fn, true
	case *WindowedShim[I, O]:
		return s.fn, true
	default:
		return nil, false
	}
}

// ProcessorType returns the processor type behind fn, or nil when fn was not
// built by this package.
func ProcessorType[I any](fn engine.Fn[I]) reflect.Type {
	if typed, ok := fn.(interface{ ProcessorType() reflect.Type }); ok {
		return typed.ProcessorType()
	}
	return nil
}
