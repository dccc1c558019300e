package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/procflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/procflow/internal/runtime/transport"
)

// PublisherSink forwards each output event to a Watermill publisher as soon
// as it is emitted. Untagged events go to Topic; tagged events go to the
// topic mapped for their tag, or Topic + "." + tag.
type PublisherSink struct {
	Publisher message.Publisher
	Topic     string
	TagTopics map[string]string
	// Processor is written to the procflow_processor metadata key.
	Processor string
	// Metrics, when set, counts published outputs.
	Metrics *PhaseMetrics
	// Capabilities of the transport; outputs larger than its message size
	// limit are rejected before publishing.
	Capabilities transportpkg.Capabilities
	// CloudEventSource, when set, publishes outputs as CloudEvents with this
	// source attribute.
	CloudEventSource string

	mu  sync.RWMutex
	ctx context.Context
}

// NewPublisherSink validates its collaborators and returns a sink.
func NewPublisherSink(publisher message.Publisher, topic string, tagTopics map[string]string) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	return &PublisherSink{Publisher: publisher, Topic: topic, TagTopics: tagTopics}, nil
}

// WithContext sets the context attached to published messages.
func (s *PublisherSink) WithContext(ctx context.Context) *PublisherSink {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s
}

// TopicFor returns the topic an event with tag is published to.
func (s *PublisherSink) TopicFor(tag string) string {
	if tag == "" {
		return s.Topic
	}
	if topic, ok := s.TagTopics[tag]; ok {
		return topic
	}
	return s.Topic + "." + tag
}

// Emit publishes event synchronously.
func (s *PublisherSink) Emit(event engine.OutputEvent) error {
	if s.Publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	var (
		msg *message.Message
		err error
	)
	if s.CloudEventSource != "" {
		msg, err = NewCloudEventOutputMessage(event, s.Processor, s.CloudEventSource)
	} else {
		msg, err = NewOutputMessage(event, s.Processor)
	}
	if err != nil {
		return err
	}
	if !s.Capabilities.Fits(len(msg.Payload)) {
		return fmt.Errorf("output of %d bytes exceeds the %s message size limit of %d bytes",
			len(msg.Payload), s.Capabilities.Name, s.Capabilities.MaxMessageSize)
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx != nil {
		msg.SetContext(ctx)
	}

	topic := s.TopicFor(event.Tag)
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if err := s.Publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish output to %s: %w", topic, err)
	}
	if s.Metrics != nil {
		s.Metrics.ObserveOutput(s.Processor, event.Tag)
	}
	return nil
}

// NewOutputMessage encodes event as a Watermill message. The payload is the
// JSON form of the value, protojson for protobuf messages; the tag and
// explicit timestamp travel as metadata.
func NewOutputMessage(event engine.OutputEvent, processor string) (*message.Message, error) {
	payload, valueType, err := encodeValue(event.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output payload: %w", err)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata.Set(metadatapkg.KeyValueType, valueType)
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

// CollectingSink keeps emitted events in memory. It is meant for tests and
// for engines that route outputs themselves.
type CollectingSink struct {
	mu     sync.Mutex
	events []engine.OutputEvent
}

func (c *CollectingSink) Emit(event engine.OutputEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// Events returns a copy of the collected events.
func (c *CollectingSink) Events() []engine.OutputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := make([]engine.OutputEvent, len(c.events))
	copy(clone, c.events)
	return clone
}

// Reset drops the collected events.
func (c *CollectingSink) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
