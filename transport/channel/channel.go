// Package channel registers an in-memory transport backed by Watermill's Go
// channel pub/sub. Publisher and subscriber share one instance, so outputs of
// one processor can feed another in the same process.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/procflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// PubSubConfig is used for every transport built by this package. Messages
// published before a subscriber attaches are replayed to it.
var PubSubConfig = gochannel.Config{Persistent: true}

func init() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a Go channel transport.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := gochannel.NewGoChannel(PubSubConfig, logger)
	return transport.Transport{
		Publisher:    pubSub,
		Subscriber:   pubSub,
		Capabilities: transport.ChannelCapabilities,
	}, nil
}
