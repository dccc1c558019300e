package metadata

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/window"
)

func TestNewAndClone(t *testing.T) {
	md := New(KeyOutputTag, "errors", "dangling")
	assert.Equal(t, Metadata{KeyOutputTag: "errors"}, md)

	cloned := md.With(KeyProcessor, "wordFn")
	assert.Equal(t, "wordFn", cloned[KeyProcessor])
	assert.NotContains(t, md, KeyProcessor)
}

func TestWatermillConversions(t *testing.T) {
	wm := ToWatermill(New("a", "1"))
	assert.Equal(t, "1", wm.Get("a"))

	back := FromWatermill(message.Metadata{"b": "2"})
	assert.Equal(t, Metadata{"b": "2"}, back)

	assert.Empty(t, FromWatermill(nil))
}

func TestEventTime(t *testing.T) {
	md := message.Metadata{}
	_, ok, err := EventTime(md)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	SetEventTime(md, at)
	got, ok, err := EventTime(md)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))

	md.Set(KeyEventTime, "yesterday")
	_, ok, err = EventTime(md)
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestWindowMetadata(t *testing.T) {
	md := message.Metadata{}
	_, ok, err := Window(md)
	require.NoError(t, err)
	assert.False(t, ok)

	SetWindow(md, window.GlobalWindow{})
	assert.Empty(t, md.Get(KeyWindowStart))

	w := window.FixedWindowFor(time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC), time.Minute)
	SetWindow(md, w)
	got, ok, err := Window(md)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Start.Equal(w.Start))
	assert.True(t, got.End.Equal(w.End))

	md.Set(KeyWindowEnd, md.Get(KeyWindowStart))
	_, _, err = Window(md)
	assert.Error(t, err)
}

func TestPaneMetadata(t *testing.T) {
	md := message.Metadata{}
	pane, err := Pane(md)
	require.NoError(t, err)
	assert.Equal(t, window.NoFiring, pane)

	SetPane(md, window.PaneInfo{Timing: window.TimingLate, Index: 3})
	pane, err = Pane(md)
	require.NoError(t, err)
	assert.Equal(t, window.PaneInfo{Timing: window.TimingLate, IsLast: true, Index: 3}, pane)

	md.Set(KeyPaneIndex, "third")
	_, err = Pane(md)
	assert.Error(t, err)
}
