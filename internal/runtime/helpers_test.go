package runtime

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/engine"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	"github.com/drblury/procflow/internal/runtime/processor"
)

var lineTime = time.Date(2026, 2, 14, 9, 0, 30, 0, time.UTC)

// splitFn emits every word of a line that is at least MinLength long and
// reports the number of words per bundle on the "count" tag.
type splitFn struct {
	MinLength int `json:"min_length"`

	words     int
	setups    int
	teardowns int
	prepared  int
	finishErr error
}

func (*splitFn) Parameters() processor.Declaration {
	return processor.Declaration{
		Setup:          []processor.Param{processor.RawContext},
		ProcessElement: []processor.Param{processor.Element, processor.Timestamp, processor.OutputReceiverParam},
		FinishBundle:   []processor.Param{processor.RawContext},
	}
}

func (f *splitFn) Setup(_ context.Context, args processor.LifecycleArgs) error {
	f.setups++
	opts, err := args.Context.Options()
	if err != nil {
		return err
	}
	if opts == nil {
		return nil
	}
	if raw, ok := opts.Get("min_length"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		f.MinLength = n
	}
	return nil
}

func (f *splitFn) PrepareForProcessing() {
	f.prepared++
	f.words = 0
}

func (f *splitFn) ProcessElement(_ context.Context, args processor.ElementArgs[string, string]) error {
	if args.Element == "boom" {
		return errors.New("cannot split boom")
	}
	for _, word := range strings.Fields(args.Element) {
		if len(word) < f.MinLength {
			continue
		}
		if err := args.Output.OutputWithTimestamp(word, args.Timestamp); err != nil {
			return err
		}
		f.words++
	}
	return nil
}

func (f *splitFn) FinishBundle(_ context.Context, args processor.BundleArgs[string]) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	return args.Context.OutputTagged("count", f.words)
}

func (f *splitFn) Teardown(context.Context, processor.LifecycleArgs) error {
	f.teardowns++
	return nil
}

func (f *splitFn) AllowedTimestampSkew() time.Duration { return time.Second }

func (f *splitFn) PopulateDisplayData(builder engine.DisplayBuilder) {
	builder.Add("minLength", f.MinLength)
}

// windowLabelFn tags each element with the window it was processed in.
type windowLabelFn struct{}

func (windowLabelFn) Parameters() processor.Declaration {
	return processor.Declaration{
		ProcessElement: []processor.Param{processor.Element, processor.Window, processor.OutputReceiverParam},
	}
}

func (windowLabelFn) ProcessElement(_ context.Context, args processor.ElementArgs[string, string]) error {
	return args.Output.Output(args.Element + "@" + args.Window.String())
}

// badSignatureFn asks for the window outside ProcessElement.
type badSignatureFn struct{}

func (badSignatureFn) Parameters() processor.Declaration {
	return processor.Declaration{StartBundle: []processor.Param{processor.Window}}
}

func (badSignatureFn) StartBundle(context.Context, processor.BundleArgs[string]) error { return nil }

func (badSignatureFn) ProcessElement(context.Context, processor.ElementArgs[string, string]) error {
	return nil
}

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

// lineMessage returns a JSON element message whose ULID carries at.
func lineMessage(t *testing.T, line string, at time.Time) *message.Message {
	t.Helper()
	payload, err := jsoncodec.Marshal(line)
	require.NoError(t, err)
	return message.NewMessage(idspkg.CreateULIDAt(at), payload)
}

func outputValues(events []engine.OutputEvent, tag string) []any {
	var values []any
	for _, e := range events {
		if e.Tag == tag {
			values = append(values, e.Value)
		}
	}
	return values
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// recordingLogger keeps every entry, shared between With children.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.Logger {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{mu: l.mu, entries: l.entries, fields: merged}
}

func (l *recordingLogger) log(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) { l.log("debug", msg, nil, fields) }
func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields)  { l.log("info", msg, nil, fields) }
func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) { l.log("trace", msg, nil, fields) }
func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.log("error", msg, err, fields)
}

func (l *recordingLogger) Entries(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range *l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}
