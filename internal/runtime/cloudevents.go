package runtime

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	ce "github.com/drblury/procflow/internal/runtime/cloudevents"
	"github.com/drblury/procflow/internal/runtime/engine"
	metadatapkg "github.com/drblury/procflow/internal/runtime/metadata"
)

// OutputEventType is the CloudEvents type of outputs published with tag.
func OutputEventType(tag string) string {
	if tag == "" {
		return "procflow.output"
	}
	return "procflow.output." + tag
}

// CloudEventElementDecoder decodes messages carrying a CloudEvent whose data
// is the JSON form of I. The event time, when set, is the element timestamp.
func CloudEventElementDecoder[I any]() ElementDecoder[I] {
	return func(msg *message.Message) (engine.ElementData[I], error) {
		evt, err := ce.FromMessage(msg)
		if err != nil {
			return engine.ElementData[I]{}, err
		}
		var value I
		if err := evt.DecodeData(&value); err != nil {
			return engine.ElementData[I]{}, fmt.Errorf("decode %s data: %w", evt.Type, err)
		}
		data, err := ElementFromMessage(msg, value)
		if err != nil {
			return engine.ElementData[I]{}, err
		}
		if !evt.Time.IsZero() {
			data.Timestamp = evt.Time
		}
		return data, nil
	}
}

// NewCloudEventOutputMessage encodes event as a CloudEvent from source. The
// procflow metadata is set as for NewOutputMessage.
func NewCloudEventOutputMessage(event engine.OutputEvent, processor, source string) (*message.Message, error) {
	evt, err := ce.New(OutputEventType(event.Tag), source, event.Timestamp, event.Value)
	if err != nil {
		return nil, err
	}
	msg, err := ce.ToMessage(evt)
	if err != nil {
		return nil, err
	}
	msg.Metadata.Set(metadatapkg.KeyValueType, fmt.Sprintf("%T", event.Value))
	if event.Tag != "" {
		msg.Metadata.Set(metadatapkg.KeyOutputTag, event.Tag)
	}
	if event.HasTimestamp {
		metadatapkg.SetEventTime(msg.Metadata, event.Timestamp)
	}
	if processor != "" {
		msg.Metadata.Set(metadatapkg.KeyProcessor, processor)
	}
	return msg, nil
}
