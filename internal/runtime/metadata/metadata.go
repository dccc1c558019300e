package metadata

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/procflow/internal/runtime/window"
)

// Keys carried on Watermill messages that enter or leave a processor.
const (
	KeyEventTime   = "procflow_event_time"
	KeyOutputTag   = "procflow_output_tag"
	KeyProcessor   = "procflow_processor"
	KeyWindowStart = "procflow_window_start"
	KeyWindowEnd   = "procflow_window_end"
	KeyPaneTiming  = "procflow_pane_timing"
	KeyPaneIndex   = "procflow_pane_index"
	KeyValueType   = "procflow_value_type"
)

// Metadata represents the headers carried alongside an element or output.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromWatermill copies Watermill metadata.
func FromWatermill(md message.Metadata) Metadata {
	result := make(Metadata, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}

// ToWatermill copies metadata into a Watermill map.
func ToWatermill(md Metadata) message.Metadata {
	wm := make(message.Metadata, len(md))
	for k, v := range md {
		wm[k] = v
	}
	return wm
}

// SetEventTime stores t under KeyEventTime in RFC3339Nano form.
func SetEventTime(md message.Metadata, t time.Time) {
	md.Set(KeyEventTime, t.UTC().Format(time.RFC3339Nano))
}

// EventTime reads KeyEventTime. ok is false when the key is absent.
func EventTime(md message.Metadata) (t time.Time, ok bool, err error) {
	raw := md.Get(KeyEventTime)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("parse %s %q: %w", KeyEventTime, raw, err)
	}
	return t, true, nil
}

// SetWindow stores the bounds of w. Global windows are not written.
func SetWindow(md message.Metadata, w window.Window) {
	iw, ok := w.(window.IntervalWindow)
	if !ok {
		return
	}
	md.Set(KeyWindowStart, iw.Start.UTC().Format(time.RFC3339Nano))
	md.Set(KeyWindowEnd, iw.End.UTC().Format(time.RFC3339Nano))
}

// Window reads the interval window stored by SetWindow. ok is false when
// neither bound is present.
func Window(md message.Metadata) (w window.IntervalWindow, ok bool, err error) {
	rawStart, rawEnd := md.Get(KeyWindowStart), md.Get(KeyWindowEnd)
	if rawStart == "" && rawEnd == "" {
		return window.IntervalWindow{}, false, nil
	}
	start, err := time.Parse(time.RFC3339Nano, rawStart)
	if err != nil {
		return window.IntervalWindow{}, true, fmt.Errorf("parse %s %q: %w", KeyWindowStart, rawStart, err)
	}
	end, err := time.Parse(time.RFC3339Nano, rawEnd)
	if err != nil {
		return window.IntervalWindow{}, true, fmt.Errorf("parse %s %q: %w", KeyWindowEnd, rawEnd, err)
	}
	if !end.After(start) {
		return window.IntervalWindow{}, true, fmt.Errorf("window end %s is not after start %s", rawEnd, rawStart)
	}
	return window.IntervalWindow{Start: start, End: end}, true, nil
}

// SetPane stores the timing and index of p.
func SetPane(md message.Metadata, p window.PaneInfo) {
	md.Set(KeyPaneTiming, p.Timing.String())
	md.Set(KeyPaneIndex, strconv.FormatInt(p.Index, 10))
}

// Pane reads the pane stored by SetPane. Messages without pane metadata get
// window.NoFiring.
func Pane(md message.Metadata) (window.PaneInfo, error) {
	rawTiming, rawIndex := md.Get(KeyPaneTiming), md.Get(KeyPaneIndex)
	if rawTiming == "" && rawIndex == "" {
		return window.NoFiring, nil
	}
	pane := window.PaneInfo{Timing: window.ParseTiming(rawTiming)}
	if rawIndex != "" {
		idx, err := strconv.ParseInt(rawIndex, 10, 64)
		if err != nil {
			return window.PaneInfo{}, fmt.Errorf("parse %s %q: %w", KeyPaneIndex, rawIndex, err)
		}
		pane.Index = idx
	}
	pane.IsFirst = pane.Index == 0
	pane.IsLast = pane.Timing != window.TimingEarly
	return pane, nil
}
