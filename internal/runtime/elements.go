package runtime

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/procflow/internal/runtime/metadata"
)

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

// NewElementMessage encodes value as a JSON input element. A non-zero ts is
// written as the event time and seeds the message ULID.
func NewElementMessage(value any, ts time.Time, md metadatapkg.Metadata) (*message.Message, error) {
	if value == nil {
		return nil, errspkg.ErrElementRequired
	}
	payload, err := jsoncodec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal element payload: %w", err)
	}
	return newElementMessage(payload, fmt.Sprintf("%T", value), ts, md), nil
}

// NewProtoElementMessage encodes value with protojson. ProtoElementDecoder
// reads it back.
func NewProtoElementMessage(value proto.Message, ts time.Time, md metadatapkg.Metadata) (*message.Message, error) {
	if value == nil || reflect.ValueOf(value).IsNil() {
		return nil, errspkg.ErrElementRequired
	}
	payload, err := protoJSONMarshalOptions.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal element payload: %w", err)
	}
	return newElementMessage(payload, string(value.ProtoReflect().Descriptor().FullName()), ts, md), nil
}

// encodeValue returns the payload and the value type recorded in metadata.
func encodeValue(value any) ([]byte, string, error) {
	if m, ok := value.(proto.Message); ok && !reflect.ValueOf(m).IsNil() {
		payload, err := protoJSONMarshalOptions.Marshal(m)
		return payload, string(m.ProtoReflect().Descriptor().FullName()), err
	}
	payload, err := jsoncodec.Marshal(value)
	return payload, fmt.Sprintf("%T", value), err
}

func newElementMessage(payload []byte, valueType string, ts time.Time, md metadatapkg.Metadata) *message.Message {
	id := idspkg.CreateULID()
	if !ts.IsZero() {
		id = idspkg.CreateULIDAt(ts)
	}
	msg := message.NewMessage(id, payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	msg.Metadata.Set(metadatapkg.KeyValueType, valueType)
	if !ts.IsZero() {
		metadatapkg.SetEventTime(msg.Metadata, ts)
	}
	return msg
}

// ProtoElementDecoder decodes protojson payloads into a fresh T.
func ProtoElementDecoder[T proto.Message]() ElementDecoder[T] {
	return func(msg *message.Message) (engine.ElementData[T], error) {
		var zero T
		value, ok := zero.ProtoReflect().New().Interface().(T)
		if !ok {
			return engine.ElementData[T]{}, fmt.Errorf("cannot instantiate %T", zero)
		}
		if err := protoJSONUnmarshalOptions.Unmarshal(msg.Payload, value); err != nil {
			return engine.ElementData[T]{}, fmt.Errorf("decode payload: %w", err)
		}
		return ElementFromMessage(msg, value)
	}
}

// PublishElement publishes msg to topic with ctx attached.
func PublishElement(ctx context.Context, publisher message.Publisher, topic string, msg *message.Message) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// PublishElement encodes value as JSON and publishes it to topic through the
// service transport.
func (s *Service) PublishElement(ctx context.Context, topic string, value any, ts time.Time) error {
	msg, err := NewElementMessage(value, ts, nil)
	if err != nil {
		return err
	}
	return PublishElement(ctx, s.publisher, topic, msg)
}

// PublishProtoElement encodes value with protojson and publishes it to topic.
func (s *Service) PublishProtoElement(ctx context.Context, topic string, value proto.Message, ts time.Time) error {
	msg, err := NewProtoElementMessage(value, ts, nil)
	if err != nil {
		return err
	}
	return PublishElement(ctx, s.publisher, topic, msg)
}
