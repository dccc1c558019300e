// Package signature resolves which lifecycle methods a processor type
// implements and which optional parameters each method requests. Results are
// cached per type for the lifetime of the process.
package signature

import (
	"reflect"
	"slices"
	"strings"

	"github.com/drblury/procflow/internal/runtime/processor"
)

type methodSignature struct {
	implemented bool
	params      []processor.Param
}

// Descriptor is the immutable, per-type view of a processor's surface.
type Descriptor struct {
	typ        reflect.Type
	name       string
	methods    map[processor.Method]methodSignature
	sideInputs []string
	usesWindow bool
}

// Type returns the processor type the descriptor was derived from.
func (d *Descriptor) Type() reflect.Type {
	return d.typ
}

// TypeName returns a readable name of the processor type.
func (d *Descriptor) TypeName() string {
	return d.name
}

// Implements reports whether the processor has method m.
func (d *Descriptor) Implements(m processor.Method) bool {
	return d.methods[m].implemented
}

// Params returns a copy of the parameters declared for m, in binding order.
func (d *Descriptor) Params(m processor.Method) []processor.Param {
	return slices.Clone(d.methods[m].params)
}

// Requests reports whether m declared a parameter of kind k.
func (d *Descriptor) Requests(m processor.Method, k processor.ParamKind) bool {
	for _, p := range d.methods[m].params {
		if p.Kind == k {
			return true
		}
	}
	return false
}

// UsesSingleWindow reports whether ProcessElement requests the window. It
// selects the windowed invoker.
func (d *Descriptor) UsesSingleWindow() bool {
	return d.usesWindow
}

// SideInputTags returns the side input tags ProcessElement declared.
func (d *Descriptor) SideInputTags() []string {
	return slices.Clone(d.sideInputs)
}

// DeclaresSideInput reports whether tag was declared.
func (d *Descriptor) DeclaresSideInput(tag string) bool {
	return slices.Contains(d.sideInputs, tag)
}

func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteString(d.name)
	b.WriteString("{")
	first := true
	for _, m := range processor.Methods {
		sig := d.methods[m]
		if !sig.implemented {
			continue
		}
		if !first {
			b.WriteString(" ")
		}
		first = false
		b.WriteString(m.String())
		b.WriteString("(")
		for i, p := range sig.params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		b.WriteString(")")
	}
	b.WriteString("}")
	return b.String()
}

// TypeName renders t without a leading pointer marker.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(t.String(), "*")
}
