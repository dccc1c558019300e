package signature

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/processor"
)

// Resolver derives descriptors and caches them by type identity. Reads are
// lock free; concurrent first resolutions of one type may both introspect,
// the first stored descriptor wins.
type Resolver struct {
	cache          sync.Map // reflect.Type -> *Descriptor
	declarations   sync.Map // reflect.Type -> processor.Declaration
	introspections atomic.Int64
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// DefaultResolver is the process-wide resolver used by adapter shims.
var DefaultResolver = NewResolver()

// Register records decl for the type of prototype on the default resolver.
// It is meant for processors that cannot implement ParameterDeclarer.
func Register(prototype any, decl processor.Declaration) {
	DefaultResolver.Register(prototype, decl)
}

// Register records decl for the type of prototype. A registered declaration
// takes precedence over ParameterDeclarer. Registering a type that was
// already resolved panics, the cached descriptor would be stale.
func (r *Resolver) Register(prototype any, decl processor.Declaration) {
	if prototype == nil {
		panic("procflow: cannot register a declaration for a nil prototype")
	}
	t := reflect.TypeOf(prototype)
	if _, resolved := r.cache.Load(t); resolved {
		panic(fmt.Sprintf("procflow: declaration for %s registered after it was resolved", TypeName(t)))
	}
	r.declarations.Store(t, decl)
}

// Introspections returns how many descriptors this resolver has derived.
func (r *Resolver) Introspections() int64 {
	return r.introspections.Load()
}

// Cached returns the descriptor stored for t, if any.
func (r *Resolver) Cached(t reflect.Type) (*Descriptor, bool) {
	v, ok := r.cache.Load(t)
	if !ok {
		return nil, false
	}
	return v.(*Descriptor), true
}

// Resolve returns the descriptor of fn's type, introspecting on first use.
func Resolve[I, O any](r *Resolver, fn processor.Processor[I, O]) (*Descriptor, error) {
	if r == nil {
		r = DefaultResolver
	}
	if fn == nil {
		return nil, &errspkg.SignatureError{ProcessorType: "<nil>", Err: errspkg.ErrProcessorRequired}
	}
	t := reflect.TypeOf(fn)
	if v := reflect.ValueOf(fn); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, &errspkg.SignatureError{ProcessorType: TypeName(t), Err: errspkg.ErrNilProcessor}
	}

	if d, ok := r.Cached(t); ok {
		return d, nil
	}

	d, err := introspect[I, O](r, t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

func introspect[I, O any](r *Resolver, t reflect.Type) (*Descriptor, error) {
	r.introspections.Add(1)

	proto := prototypeOf(t)
	_, hasSetup := proto.(processor.Setupper)
	_, hasStart := proto.(processor.BundleStarter[O])
	_, hasFinish := proto.(processor.BundleFinisher[O])
	_, hasTeardown := proto.(processor.Teardowner)
	implemented := map[processor.Method]bool{
		processor.MethodSetup:          hasSetup,
		processor.MethodStartBundle:    hasStart,
		processor.MethodProcessElement: true,
		processor.MethodFinishBundle:   hasFinish,
		processor.MethodTeardown:       hasTeardown,
	}
	for _, m := range processor.Methods {
		if implemented[m] {
			continue
		}
		if _, ok := t.MethodByName(m.String()); ok {
			return nil, &errspkg.SignatureError{
				ProcessorType: TypeName(t),
				Method:        m.String(),
				Reason:        fmt.Sprintf("%s has an unsupported signature", m),
			}
		}
	}

	var decl processor.Declaration
	if v, ok := r.declarations.Load(t); ok {
		decl = v.(processor.Declaration)
	} else if declarer, ok := proto.(processor.ParameterDeclarer); ok {
		decl = declarer.Parameters()
	}

	d := &Descriptor{
		typ:     t,
		name:    TypeName(t),
		methods: make(map[processor.Method]methodSignature, len(processor.Methods)),
	}
	for _, m := range processor.Methods {
		params := decl.For(m)
		if err := validate(d.name, m, implemented[m], params); err != nil {
			return nil, err
		}
		d.methods[m] = methodSignature{implemented: implemented[m], params: append([]processor.Param(nil), params...)}
	}

	for _, p := range d.methods[processor.MethodProcessElement].params {
		switch p.Kind {
		case processor.ParamWindow:
			d.usesWindow = true
		case processor.ParamSideInput:
			d.sideInputs = append(d.sideInputs, p.Tag)
		}
	}
	return d, nil
}

// prototypeOf returns a zero value of t. For pointer types it points at a
// zero element so pointer receiver methods and Parameters can run.
func prototypeOf(t reflect.Type) any {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.Zero(t).Interface()
}

func validate(typeName string, m processor.Method, implemented bool, params []processor.Param) error {
	fail := func(format string, args ...any) error {
		return &errspkg.SignatureError{ProcessorType: typeName, Method: m.String(), Reason: fmt.Sprintf(format, args...)}
	}

	if !implemented && len(params) > 0 {
		return fail("parameters declared for a method the processor does not implement")
	}

	seen := make(map[processor.Param]struct{}, len(params))
	for _, p := range params {
		if !p.Kind.Valid() {
			return fail("unknown parameter kind %s", p.Kind)
		}
		if p.Kind == processor.ParamSideInput && p.Tag == "" {
			return fail("side input requires a tag")
		}
		if p.Kind != processor.ParamSideInput && p.Tag != "" {
			return fail("%s does not take a tag", p.Kind)
		}
		if _, dup := seen[p]; dup {
			return fail("duplicate parameter %s", p)
		}
		seen[p] = struct{}{}

		if elementOnly(p.Kind) && m != processor.MethodProcessElement {
			return fail("%s is only available to ProcessElement", p.Kind)
		}
		if p.Kind == processor.ParamOutputReceiver && (m == processor.MethodSetup || m == processor.MethodTeardown) {
			return fail("%s is not available to %s", p.Kind, m)
		}
	}
	return nil
}

func elementOnly(k processor.ParamKind) bool {
	switch k {
	case processor.ParamElement, processor.ParamTimestamp, processor.ParamPane,
		processor.ParamWindow, processor.ParamSideInput, processor.ParamInputProvider:
		return true
	default:
		return false
	}
}
