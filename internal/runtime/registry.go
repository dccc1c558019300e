package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
)

// ProcessorRegistry maps processor type names to types so serialized shims
// can be decoded in another process.
type ProcessorRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// DefaultProcessorRegistry is the process-wide registry.
var DefaultProcessorRegistry = NewProcessorRegistry()

// NewProcessorRegistry returns an empty registry.
func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{types: make(map[string]reflect.Type)}
}

// RegisterProcessorType registers the type of prototype with the default
// registry and returns its name.
func RegisterProcessorType(prototype any) (string, error) {
	return DefaultProcessorRegistry.Register(prototype)
}

// Register records the type of prototype under its qualified name.
func (r *ProcessorRegistry) Register(prototype any) (string, error) {
	if prototype == nil {
		return "", errspkg.ErrProcessorRequired
	}
	t := reflect.TypeOf(prototype)
	name := ProcessorTypeName(t)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[name]; ok && existing != t {
		return "", fmt.Errorf("procflow: processor type name %q already registered for %s", name, existing)
	}
	r.types[name] = t
	return name, nil
}

// Lookup returns the type registered under name.
func (r *ProcessorRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *ProcessorRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newInstance returns a pointer to a zero value to decode into, and a
// function that yields the value in its registered form.
func (r *ProcessorRegistry) newInstance(name string) (target any, resolve func() any, err error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errspkg.ErrUnknownProcessorType, name)
	}
	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		return ptr.Interface(), ptr.Interface, nil
	}
	ptr := reflect.New(t)
	return ptr.Interface(), func() any { return ptr.Elem().Interface() }, nil
}

// ProcessorTypeName returns the package-qualified name of t, with a leading
// "*" for pointer types.
func ProcessorTypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	prefix := ""
	if t.Kind() == reflect.Pointer {
		prefix = "*"
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return prefix + t.String()
	}
	return prefix + t.PkgPath() + "." + t.Name()
}
