package runtime

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	idspkg "github.com/drblury/procflow/internal/runtime/ids"
	"github.com/drblury/procflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	"github.com/drblury/procflow/internal/runtime/processor"
)

// Envelope is the persisted form of a shim. Only the processor is stored;
// the invoker and descriptor are rebuilt after decoding.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", errspkg.ErrEnvelopeInvalid)
	}
	if _, ok := idspkg.TimeOf(e.ID); !ok {
		return fmt.Errorf("%w: bad id %q", errspkg.ErrEnvelopeInvalid, e.ID)
	}
	if len(e.Payload) == 0 || !jsoncodec.Valid(e.Payload) {
		return fmt.Errorf("%w: payload is not JSON", errspkg.ErrEnvelopeInvalid)
	}
	return nil
}

// ShimCodec turns envelopes into bytes and back.
type ShimCodec interface {
	Name() string
	EncodeEnvelope(env Envelope) ([]byte, error)
	DecodeEnvelope(data []byte) (Envelope, error)
}

// JSONCodec stores envelopes as JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) EncodeEnvelope(env Envelope) ([]byte, error) {
	return jsoncodec.Marshal(env)
}

func (JSONCodec) DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errspkg.ErrEnvelopeInvalid, err)
	}
	return env, nil
}

// ProtoCodec stores envelopes as a binary google.protobuf.Struct. Numbers in
// the payload round-trip as float64.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) EncodeEnvelope(env Envelope) ([]byte, error) {
	var payload any
	if err := jsoncodec.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload for proto envelope: %w", err)
	}
	st, err := structpb.NewStruct(map[string]any{
		"type":    env.Type,
		"id":      env.ID,
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build proto envelope: %w", err)
	}
	return proto.Marshal(st)
}

func (ProtoCodec) DecodeEnvelope(data []byte) (Envelope, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errspkg.ErrEnvelopeInvalid, err)
	}
	fields := st.GetFields()
	payload, ok := fields["payload"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing payload", errspkg.ErrEnvelopeInvalid)
	}
	raw, err := payload.MarshalJSON()
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errspkg.ErrEnvelopeInvalid, err)
	}
	return Envelope{
		Type:    fields["type"].GetStringValue(),
		ID:      fields["id"].GetStringValue(),
		Payload: raw,
	}, nil
}

// EncodeShim serializes the processor behind s. The processor type must be
// registered for DecodeShim to find it again.
func EncodeShim[I, O any](codec ShimCodec, s *Shim[I, O]) ([]byte, error) {
	if s == nil {
		return nil, errspkg.ErrShimRequired
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	payload, err := jsoncodec.Marshal(s.fn)
	if err != nil {
		return nil, fmt.Errorf("encode processor %s: %w", s.desc.TypeName(), err)
	}
	return codec.EncodeEnvelope(Envelope{
		Type:    ProcessorTypeName(s.desc.Type()),
		ID:      idspkg.CreateULID(),
		Payload: payload,
	})
}

// DecodeShim restores a shim from data. The invoker is rebuilt before the
// shim is returned, so the first engine call behaves like on the original.
func DecodeShim[I, O any](codec ShimCodec, data []byte, opts ...ShimOption) (*Shim[I, O], error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	o := applyShimOptions(opts)

	env, err := codec.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	target, resolve, err := o.registry.newInstance(env.Type)
	if err != nil {
		return nil, err
	}
	if err := jsoncodec.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("decode processor %s: %w", env.Type, err)
	}
	fn, ok := resolve().(processor.Processor[I, O])
	if !ok {
		return nil, fmt.Errorf("procflow: %s does not process %s into %s", env.Type, reflect.TypeFor[I](), reflect.TypeFor[O]())
	}

	s, err := NewShim(fn, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Rehydrate(); err != nil {
		return nil, err
	}
	o.logger.Debug("Shim decoded", loggingpkg.LogFields{
		"processor":   env.Type,
		"envelope_id": env.ID,
		"codec":       codec.Name(),
	})
	return s, nil
}
