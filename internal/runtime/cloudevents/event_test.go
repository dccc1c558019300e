package cloudevents

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurred = time.Date(2026, 3, 2, 8, 15, 0, 250_000_000, time.UTC)

func TestNewAndValidate(t *testing.T) {
	evt, err := New("word.counted", "wordcount", occurred, map[string]int{"fox": 2})
	require.NoError(t, err)

	assert.Equal(t, SpecVersion, evt.SpecVersion)
	assert.Equal(t, ContentTypeJSON, evt.DataContentType)
	assert.NotEmpty(t, evt.ID)
	assert.NoError(t, evt.Validate())

	var data map[string]int
	require.NoError(t, evt.DecodeData(&data))
	assert.Equal(t, 2, data["fox"])

	err = Event{SpecVersion: "0.3"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingType)
	assert.ErrorIs(t, err, ErrMissingSource)
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Contains(t, err.Error(), `specversion must be "1.0"`)
}

func TestMessageRoundTrip(t *testing.T) {
	evt, err := New("line.read", "reader", occurred, "the quick fox")
	require.NoError(t, err)
	evt.Subject = "book-1"

	msg, err := ToMessage(evt)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, msg.UUID)
	assert.Equal(t, "line.read", msg.Metadata.Get(MetaType))
	assert.Equal(t, "2026-03-02T08:15:00.25Z", msg.Metadata.Get(MetaTime))

	decoded, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, evt.Type, decoded.Type)
	assert.Equal(t, evt.Subject, decoded.Subject)
	assert.True(t, occurred.Equal(decoded.Time))

	var line string
	require.NoError(t, decoded.DecodeData(&line))
	assert.Equal(t, "the quick fox", line)
}

func TestFromMessageBinaryMode(t *testing.T) {
	msg := message.NewMessage("01HZZZZZZZZZZZZZZZZZZZZZZZ", []byte(`{"word":"fox"}`))
	msg.Metadata.Set(MetaSpecVersion, SpecVersion)
	msg.Metadata.Set(MetaType, "word.seen")
	msg.Metadata.Set(MetaSource, "splitter")
	msg.Metadata.Set(MetaTime, "2026-03-02T08:15:00Z")

	evt, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, msg.UUID, evt.ID)
	assert.Equal(t, occurred.Truncate(time.Second), evt.Time)
	assert.JSONEq(t, `{"word":"fox"}`, string(evt.Data))
}

func TestFromMessageRejectsPlainPayload(t *testing.T) {
	msg := message.NewMessage("plain", []byte(`"fox"`))
	_, err := FromMessage(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a CloudEvent")

	msg.Metadata.Set(MetaSpecVersion, SpecVersion)
	msg.Metadata.Set(MetaType, "t")
	msg.Metadata.Set(MetaSource, "s")
	msg.Metadata.Set(MetaTime, "yesterday")
	_, err = FromMessage(msg)
	assert.ErrorContains(t, err, "invalid time")
}

func TestToMessageRejectsInvalidEvent(t *testing.T) {
	_, err := ToMessage(Event{SpecVersion: SpecVersion, Source: "s", ID: "1"})
	assert.ErrorIs(t, err, ErrMissingType)
}
