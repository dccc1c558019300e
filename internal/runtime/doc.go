/*
Package runtime adapts element processors to a Watermill router.

# Adapter

Shim (shim.go) wraps a processor.Processor. NewShim resolves the processor
signature through a signature.Resolver, which caches one Descriptor per
processor type. Each lifecycle call builds the declared capabilities with
the capability package, runs through the invoker package and is checked by
a lifecycle.Tracker. Processors that request their window are wrapped in a
WindowedShim and invoked once per window of an element.

Shims can be serialized with EncodeShim and rebuilt with DecodeShim
(codec.go). Processor types are looked up in a ProcessorRegistry.

# Running

Runner (runner.go) is a message.NoPublishHandlerFunc. It runs Setup on the
first message, opens bundles lazily and closes them on BundleSize, after an
idle FlushInterval, or on Close. Outputs go to an engine.OutputSink;
PublisherSink (sink.go) routes them to topics by output tag, optionally as
CloudEvents.

Service (service.go) owns the transport, the router and its middleware
chain (middleware.go), the phase hooks (hooks.go, metrics.go) and the HTTP
servers for Prometheus metrics and the processor inspection endpoint
(inspect.go). RegisterProcessor (registration.go) wires a processor between
a consume queue and its output topics.

# Sub-packages

  - capability/: per-phase capability contexts
  - cloudevents/: CloudEvents envelope for elements and outputs
  - config/: service configuration with validation
  - engine/: the engine-facing Fn and contexts
  - errors/: sentinel errors and error types
  - ids/: ULID generation for message IDs
  - invoker/: plain and windowed invocation
  - jsoncodec/: JSON marshaling utilities
  - lifecycle/: lifecycle state machine
  - logging/: Logger interface and adapters
  - metadata/: message metadata utilities
  - processor/: the processor surface and parameter declarations
  - sideinput/: in-memory and SQL side input stores
  - signature/: signature resolution and caching
  - transport/: transport factory for the service
  - window/: windows and panes

# Usage Example

	cfg := &procflow.Config{
		PubSubSystem:   "kafka",
		KafkaBrokers:   []string{"localhost:9092"},
		MetricsEnabled: true,
		MetricsPort:    9090,
	}

	svc, err := procflow.NewService(cfg, logger, ctx, procflow.ServiceDependencies{})

	_, err = procflow.RegisterProcessor(svc, procflow.ProcessorRegistration[string, string]{
		ConsumeQueue: "lines",
		PublishQueue: "words",
		Processor:    &splitWords{},
	})

	err = svc.Start(ctx)
*/
package runtime
