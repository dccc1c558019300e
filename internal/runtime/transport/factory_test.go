package transport

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/internal/runtime/config"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	publictransport "github.com/drblury/procflow/transport"
	"github.com/drblury/procflow/transport/transporttest"
)

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel"}, watermill.NopLogger{})
	require.NoError(t, err)
	defer tr.Close()

	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
	assert.Equal(t, "channel", tr.Capabilities.Name)
}

func TestDefaultFactoryRegistersBuiltins(t *testing.T) {
	for _, name := range []string{"aws", "channel", "kafka", "nats", "rabbitmq"} {
		assert.True(t, publictransport.DefaultRegistry.Has(name), name)
	}
}

func TestRegistryFactory(t *testing.T) {
	reg := publictransport.NewRegistry()
	pub := &transporttest.Publisher{}
	reg.Register("memory", func(context.Context, publictransport.Config, watermill.LoggerAdapter) (publictransport.Transport, error) {
		return publictransport.Transport{Publisher: pub, Subscriber: &transporttest.Subscriber{}}, nil
	}, publictransport.Capabilities{Acks: true})

	factory := RegistryFactory(reg)
	_, err := factory.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	tr, err := factory.Build(context.Background(), &config.Config{PubSubSystem: "memory"}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.True(t, tr.Capabilities.Acks)

	_, err = factory.Build(context.Background(), &config.Config{PubSubSystem: "smoke-signals"}, nil)
	assert.ErrorIs(t, err, publictransport.ErrUnknownTransport)
}
