package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/procflow/transport"
	"github.com/drblury/procflow/transport/transporttest"
)

func stubFactories(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) {
	t.Helper()
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory, SubscriberFactory = origPub, origSub
	})
	PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
		return pub, pubErr
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, "words", cfg.ConsumerGroup)
		require.NotNil(t, cfg.OverwriteSaramaConfig)
		assert.Equal(t, "procflow-test", cfg.OverwriteSaramaConfig.ClientID)
		return sub, subErr
	}
}

func kafkaConfig() *transporttest.Config {
	return &transporttest.Config{
		PubSubSystem:       TransportName,
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaClientID:      "procflow-test",
		KafkaConsumerGroup: "words",
	}
}

func TestBuild(t *testing.T) {
	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
	stubFactories(t, pub, nil, sub, nil)

	tr, err := Build(context.Background(), kafkaConfig(), watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	assert.Equal(t, transport.KafkaCapabilities, tr.Capabilities)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "brokers are required")

	stubFactories(t, nil, errors.New("publisher error"), nil, nil)
	_, err = Build(context.Background(), kafkaConfig(), watermill.NopLogger{})
	assert.ErrorContains(t, err, "publisher error")

	pub := &transporttest.Publisher{}
	stubFactories(t, pub, nil, nil, errors.New("subscriber error"))
	_, err = Build(context.Background(), kafkaConfig(), watermill.NopLogger{})
	assert.ErrorContains(t, err, "subscriber error")
	assert.True(t, pub.Closed())
}
