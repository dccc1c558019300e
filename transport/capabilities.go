package transport

// Capabilities describes the delivery guarantees of a broker. Runners use it
// to decide whether a failed element is redelivered and how large an output
// may be.
type Capabilities struct {
	Name string

	// Acks means a message is only removed once the handler acknowledges it.
	Acks bool
	// Nacks means a negatively acknowledged message is redelivered.
	Nacks bool
	// Ordered means messages of a topic arrive in publish order.
	Ordered bool
	// Partitioned means ordering only holds within a partition key.
	Partitioned bool

	// MaxMessageSize is the largest payload in bytes. Zero means unbounded.
	MaxMessageSize int
}

// RedeliversFailures reports whether an element whose processing failed
// will be seen again.
func (c Capabilities) RedeliversFailures() bool {
	return c.Acks && c.Nacks
}

// Fits reports whether a payload of size bytes can be published.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || size <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:    "channel",
		Acks:    true,
		Nacks:   true,
		Ordered: true,
	}

	KafkaCapabilities = Capabilities{
		Name:           "kafka",
		Acks:           true,
		Ordered:        true,
		Partitioned:    true,
		MaxMessageSize: 1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:    "rabbitmq",
		Acks:    true,
		Nacks:   true,
		Ordered: true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		Acks:           true,
		Nacks:          true,
		MaxMessageSize: 256 << 10,
	}
)
