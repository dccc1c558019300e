// Package cloudevents carries elements and outputs as CloudEvents v1.0 in
// structured JSON mode. The core attributes are mirrored into ce_* message
// metadata so brokers and middlewares can route without decoding the payload.
package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents version produced and accepted.
const SpecVersion = "1.0"

// ContentTypeJSON is the data content type of events built by New.
const ContentTypeJSON = "application/json"

// Metadata keys mirroring the core attributes.
const (
	MetaSpecVersion     = "ce_specversion"
	MetaType            = "ce_type"
	MetaSource          = "ce_source"
	MetaID              = "ce_id"
	MetaTime            = "ce_time"
	MetaSubject         = "ce_subject"
	MetaDataContentType = "ce_datacontenttype"
)

var (
	ErrMissingType   = errors.New("cloudevents: type is required")
	ErrMissingSource = errors.New("cloudevents: source is required")
	ErrMissingID     = errors.New("cloudevents: id is required")
)

// Event is a CloudEvent whose data is kept as raw JSON.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	Subject         string
	DataContentType string
	Data            json.RawMessage
}

type wireEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	ID              string          `json:"id"`
	Time            string          `json:"time,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh ULID id and data encoded as JSON. A zero
// t leaves the time attribute unset.
func New(eventType, source string, t time.Time, data any) (Event, error) {
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("cloudevents: encode data: %w", err)
	}
	return Event{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		ID:              idspkg.CreateULID(),
		Time:            t,
		DataContentType: ContentTypeJSON,
		Data:            raw,
	}, nil
}

// Validate checks the required attributes.
func (e Event) Validate() error {
	var errs []error
	if e.SpecVersion != SpecVersion {
		errs = append(errs, fmt.Errorf("cloudevents: specversion must be %q, got %q", SpecVersion, e.SpecVersion))
	}
	if e.Type == "" {
		errs = append(errs, ErrMissingType)
	}
	if e.Source == "" {
		errs = append(errs, ErrMissingSource)
	}
	if e.ID == "" {
		errs = append(errs, ErrMissingID)
	}
	return errors.Join(errs...)
}

// DecodeData unmarshals the event data into v.
func (e Event) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return errors.New("cloudevents: event has no data")
	}
	return jsoncodec.Unmarshal(e.Data, v)
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		SpecVersion:     e.SpecVersion,
		Type:            e.Type,
		Source:          e.Source,
		ID:              e.ID,
		Subject:         e.Subject,
		DataContentType: e.DataContentType,
		Data:            e.Data,
	}
	if !e.Time.IsZero() {
		w.Time = e.Time.UTC().Format(time.RFC3339Nano)
	}
	return jsoncodec.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := jsoncodec.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		SpecVersion:     w.SpecVersion,
		Type:            w.Type,
		Source:          w.Source,
		ID:              w.ID,
		Subject:         w.Subject,
		DataContentType: w.DataContentType,
		Data:            w.Data,
	}
	if w.Time != "" {
		t, err := ParseTime(w.Time)
		if err != nil {
			return err
		}
		e.Time = t
	}
	return nil
}

// ToMessage validates evt and wraps it in a message whose UUID is the
// event id.
func ToMessage(evt Event) (*message.Message, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	payload, err := jsoncodec.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("cloudevents: encode event: %w", err)
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetaSpecVersion, evt.SpecVersion)
	msg.Metadata.Set(MetaType, evt.Type)
	msg.Metadata.Set(MetaSource, evt.Source)
	msg.Metadata.Set(MetaID, evt.ID)
	if !evt.Time.IsZero() {
		msg.Metadata.Set(MetaTime, evt.Time.UTC().Format(time.RFC3339Nano))
	}
	if evt.Subject != "" {
		msg.Metadata.Set(MetaSubject, evt.Subject)
	}
	if evt.DataContentType != "" {
		msg.Metadata.Set(MetaDataContentType, evt.DataContentType)
	}
	return msg, nil
}

// FromMessage reads a structured-mode event from msg. When the payload is
// not an event, the attributes are taken from the ce_* metadata and the
// payload becomes the data (binary mode).
func FromMessage(msg *message.Message) (Event, error) {
	var evt Event
	if err := jsoncodec.Unmarshal(msg.Payload, &evt); err == nil && evt.Validate() == nil {
		return evt, nil
	}

	evt = Event{
		SpecVersion:     msg.Metadata.Get(MetaSpecVersion),
		Type:            msg.Metadata.Get(MetaType),
		Source:          msg.Metadata.Get(MetaSource),
		ID:              msg.Metadata.Get(MetaID),
		Subject:         msg.Metadata.Get(MetaSubject),
		DataContentType: msg.Metadata.Get(MetaDataContentType),
		Data:            json.RawMessage(msg.Payload),
	}
	if evt.ID == "" {
		evt.ID = msg.UUID
	}
	if v := msg.Metadata.Get(MetaTime); v != "" {
		t, err := ParseTime(v)
		if err != nil {
			return Event{}, err
		}
		evt.Time = t
	}
	if err := evt.Validate(); err != nil {
		return Event{}, fmt.Errorf("message %s is not a CloudEvent: %w", msg.UUID, err)
	}
	return evt, nil
}

// ParseTime accepts RFC3339 with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cloudevents: invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}
