package capability

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	"github.com/drblury/procflow/internal/runtime/lifecycle"
	"github.com/drblury/procflow/internal/runtime/processor"
	"github.com/drblury/procflow/internal/runtime/window"
)

var (
	_ processor.ElementCapabilities[any, any] = (*ElementContext[any, any])(nil)
	_ processor.InputProvider[any]            = provider[any, any]{}
	_ processor.SideInputs                    = sideInputs[any, any]{}
)

// Access lists what ProcessElement declared beyond the always-present
// element capabilities.
type Access struct {
	Window     bool
	SideInputs []string
}

// ElementContext serves one ProcessElement call. It wraps the engine's
// element context and narrows it to the declared access.
type ElementContext[I, O any] struct {
	*BundleContext[O]
	ctx    context.Context
	raw    engine.ElementContext[I]
	access Access
}

// NewElementContext builds the per-element context around raw.
func NewElementContext[I, O any](ctx context.Context, raw engine.ElementContext[I], access Access) *ElementContext[I, O] {
	return &ElementContext[I, O]{
		BundleContext: NewBundleContext[O](lifecycle.PhasePerElement, raw.Options(), raw.Sink()),
		ctx:           ctx,
		raw:           raw,
		access:        access,
	}
}

func (e *ElementContext[I, O]) Element() (I, error) {
	if err := e.check(Element); err != nil {
		var zero I
		return zero, err
	}
	return e.raw.Element(), nil
}

func (e *ElementContext[I, O]) Timestamp() (time.Time, error) {
	if err := e.check(Timestamp); err != nil {
		return time.Time{}, err
	}
	return e.raw.Timestamp(), nil
}

func (e *ElementContext[I, O]) Pane() (window.PaneInfo, error) {
	if err := e.check(Pane); err != nil {
		return window.PaneInfo{}, err
	}
	return e.raw.Pane(), nil
}

// Window returns the element's window. It is only available when the
// processor requested window access, which is what makes the engine scope
// each call to a single window.
func (e *ElementContext[I, O]) Window() (window.Window, error) {
	if err := e.check(Window); err != nil {
		return nil, err
	}
	if !e.access.Window {
		return nil, e.deny(Window, "processor did not request window access")
	}
	return e.raw.Window(), nil
}

func (e *ElementContext[I, O]) SideInput(tag string) (any, error) {
	if err := e.check(SideInput); err != nil {
		return nil, err
	}
	if !slices.Contains(e.access.SideInputs, tag) {
		return nil, e.deny(SideInput, "tag %q was not declared", tag)
	}
	reader := e.raw.SideInputs()
	if reader == nil {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrSideInputNotFound, tag)
	}
	return reader.Lookup(e.ctx, tag)
}

// Provider returns an InputProvider bound to this context.
func (e *ElementContext[I, O]) Provider() processor.InputProvider[I] {
	return provider[I, O]{ctx: e}
}

// SideInputs returns a reader limited to the declared tags.
func (e *ElementContext[I, O]) SideInputs() processor.SideInputs {
	return sideInputs[I, O]{ctx: e}
}

type provider[I, O any] struct {
	ctx *ElementContext[I, O]
}

func (p provider[I, O]) Get() (I, error) {
	if err := p.ctx.check(InputProvider); err != nil {
		var zero I
		return zero, err
	}
	return p.ctx.raw.Element(), nil
}

type sideInputs[I, O any] struct {
	ctx *ElementContext[I, O]
}

func (s sideInputs[I, O]) Get(tag string) (any, error) {
	return s.ctx.SideInput(tag)
}
