package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/window"
)

type mapOptions map[string]string

func (m mapOptions) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapOptions) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestElementContextExposesData(t *testing.T) {
	var emitted []OutputEvent
	sink := OutputSinkFunc(func(ev OutputEvent) error {
		emitted = append(emitted, ev)
		return nil
	})
	bundle := NewBundleContext(mapOptions{"job": "wordcount"}, sink)

	at := time.Unix(100, 0)
	ec := NewElementContext(bundle, ElementData[string]{Value: "beam", Timestamp: at, Pane: window.NoFiring}, nil)

	assert.Equal(t, "beam", ec.Element())
	assert.Equal(t, at, ec.Timestamp())
	assert.Equal(t, window.NoFiring, ec.Pane())
	assert.Equal(t, window.GlobalWindow{}, ec.Window())
	assert.Nil(t, ec.SideInputs())

	job, ok := ec.Options().Get("job")
	assert.True(t, ok)
	assert.Equal(t, "wordcount", job)

	require.NoError(t, ec.Sink().Emit(OutputEvent{Value: 1, Tag: "counts"}))
	require.Len(t, emitted, 1)
	assert.True(t, emitted[0].Tagged())
}

type nestedProvider struct {
	name  string
	other DisplayDataProvider
}

func (p *nestedProvider) PopulateDisplayData(b DisplayBuilder) {
	b.Add("name", p.name)
	if p.other != nil {
		b.Include("loop", p.other)
	}
}

func TestDisplayDataIncludeNamespacesAndTerminates(t *testing.T) {
	a := &nestedProvider{name: "a"}
	b := &nestedProvider{name: "b", other: a}
	a.other = b

	dd := NewDisplayData("root")
	dd.Add("job", "wordcount").Include("fn", a)

	v, ok := dd.Get("root", "job")
	require.True(t, ok)
	assert.Equal(t, "wordcount", v)

	v, ok = dd.Get("fn", "name")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = dd.Get("loop", "name")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.Len(t, dd.Items(), 3)
	assert.Equal(t, "fn", dd.Items()[0].Namespace)
}

type stubFn struct{}

func (stubFn) Setup(context.Context, Options) error                       { return nil }
func (stubFn) StartBundle(context.Context, BundleContext) error           { return nil }
func (stubFn) ProcessElement(context.Context, ElementContext[string]) error { return nil }
func (stubFn) FinishBundle(context.Context, BundleContext) error          { return nil }
func (stubFn) Teardown(context.Context) error                             { return nil }
func (stubFn) AllowedTimestampSkew() time.Duration                        { return 0 }
func (stubFn) PopulateDisplayData(DisplayBuilder)                         {}

type windowedStubFn struct{ stubFn }

func (windowedStubFn) RequiresWindowAccess() {}

func TestRequiresWindowAccess(t *testing.T) {
	assert.False(t, RequiresWindowAccess[string](stubFn{}))
	assert.True(t, RequiresWindowAccess[string](windowedStubFn{}))
}
