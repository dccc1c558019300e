// Package window holds the window and pane metadata handed to processors
// during per-element processing.
package window

import (
	"fmt"
	"math"
	"time"
)

// Window is the window an element belongs to. Implementations must be
// comparable values.
type Window interface {
	// MaxTimestamp is the largest timestamp that falls inside the window.
	MaxTimestamp() time.Time
	String() string
}

// MaxTime is the end of time used by the global window.
var MaxTime = time.UnixMilli(math.MaxInt64 / int64(time.Millisecond)).UTC()

// GlobalWindow is the single window spanning all time.
type GlobalWindow struct{}

func (GlobalWindow) MaxTimestamp() time.Time { return MaxTime }
func (GlobalWindow) String() string          { return "[global]" }

// IntervalWindow covers [Start, End).
type IntervalWindow struct {
	Start time.Time
	End   time.Time
}

func (w IntervalWindow) MaxTimestamp() time.Time {
	return w.End.Add(-time.Millisecond)
}

func (w IntervalWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.UTC().Format(time.RFC3339Nano), w.End.UTC().Format(time.RFC3339Nano))
}

// Contains reports whether t falls inside the window.
func (w IntervalWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// FixedWindowFor returns the fixed window of the given size that contains t.
// Windows are aligned to the Unix epoch.
func FixedWindowFor(t time.Time, size time.Duration) IntervalWindow {
	if size <= 0 {
		panic("window: fixed window size must be positive")
	}
	ns := t.UnixNano()
	offset := ((ns % int64(size)) + int64(size)) % int64(size)
	start := time.Unix(0, ns-offset).UTC()
	return IntervalWindow{Start: start, End: start.Add(size)}
}

// Timing describes when a pane fired relative to the watermark.
type Timing int

const (
	TimingUnknown Timing = iota
	TimingEarly
	TimingOnTime
	TimingLate
)

func (t Timing) String() string {
	switch t {
	case TimingEarly:
		return "EARLY"
	case TimingOnTime:
		return "ON_TIME"
	case TimingLate:
		return "LATE"
	default:
		return "UNKNOWN"
	}
}

// ParseTiming is the inverse of Timing.String. Unrecognised values map to
// TimingUnknown.
func ParseTiming(s string) Timing {
	switch s {
	case "EARLY":
		return TimingEarly
	case "ON_TIME":
		return TimingOnTime
	case "LATE":
		return TimingLate
	default:
		return TimingUnknown
	}
}

// PaneInfo describes the firing that produced the current element.
type PaneInfo struct {
	Timing  Timing
	IsFirst bool
	IsLast  bool
	Index   int64
}

// NoFiring is the pane of elements that were never grouped by a trigger.
var NoFiring = PaneInfo{Timing: TimingUnknown, IsFirst: true, IsLast: true}

func (p PaneInfo) String() string {
	return fmt.Sprintf("Pane{%s first=%t last=%t index=%d}", p.Timing, p.IsFirst, p.IsLast, p.Index)
}
