package runtime

import (
	"time"

	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	"github.com/drblury/procflow/internal/runtime/processor"
)

// ProcessorRegistration wires a processor between a consume queue and its
// output topics.
type ProcessorRegistration[I, O any] struct {
	// Name identifies the router handler. Defaults to "<processor type>-<consume queue>".
	Name         string
	ConsumeQueue string
	// PublishQueue receives the primary output.
	PublishQueue string
	// TagQueues maps additional output tags to topics. Unmapped tags go to
	// PublishQueue + "." + tag.
	TagQueues map[string]string
	Processor processor.Processor[I, O]
	// Decoder turns messages into elements. Defaults to JSONElementDecoder,
	// or CloudEventElementDecoder when CloudEvents is set.
	Decoder ElementDecoder[I]
	// CloudEvents publishes outputs as CloudEvents sourced from the handler
	// name.
	CloudEvents bool

	// Zero values fall back to the service configuration.
	BundleSize    int
	FlushInterval time.Duration
	WindowSize    time.Duration
	Options       engine.Options
	SideInputs    engine.SideInputReader

	ShimOptions []ShimOption
}

// RegisterProcessor adapts cfg.Processor and attaches it to the service
// router. Signature problems of the processor type surface here.
func RegisterProcessor[I, O any](svc *Service, cfg ProcessorRegistration[I, O]) (*Runner[I], error) {
	if svc == nil {
		return nil, errspkg.ErrServiceRequired
	}
	if cfg.Processor == nil {
		return nil, errspkg.ErrProcessorRequired
	}
	if cfg.ConsumeQueue == "" {
		return nil, errspkg.ErrConsumeQueueRequired
	}
	if cfg.PublishQueue == "" {
		return nil, errspkg.ErrTopicRequired
	}

	opts := []ShimOption{
		WithResolver(svc.resolver),
		WithHooks(svc.hooks),
		WithLogger(svc.Logger),
	}
	shim, err := NewShim(cfg.Processor, append(opts, cfg.ShimOptions...)...)
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = shim.Descriptor().TypeName() + "-" + cfg.ConsumeQueue
	}

	sink, err := NewPublisherSink(svc.publisher, cfg.PublishQueue, cfg.TagQueues)
	if err != nil {
		return nil, err
	}
	sink.Processor = name
	sink.Metrics = svc.metrics
	sink.Capabilities = svc.transport.Capabilities

	decode := cfg.Decoder
	if cfg.CloudEvents {
		sink.CloudEventSource = name
		if decode == nil {
			decode = CloudEventElementDecoder[I]()
		}
	}

	runner, err := NewRunner(shim.Fn(), decode, sink, RunnerConfig{
		Name:          name,
		BundleSize:    firstPositive(cfg.BundleSize, svc.Conf.BundleSize),
		FlushInterval: firstPositive(cfg.FlushInterval, svc.Conf.FlushInterval),
		WindowSize:    firstPositive(cfg.WindowSize, svc.Conf.WindowSize),
		Options:       svc.options(cfg.Options),
		SideInputs:    svc.sideInputsOr(cfg.SideInputs),
		Logger:        svc.Logger,
	})
	if err != nil {
		return nil, err
	}

	svc.router.AddNoPublisherHandler(name, cfg.ConsumeQueue, svc.subscriber, runner.Handle)
	desc := shim.Descriptor()
	svc.addRunner(runner, ProcessorInfo{
		Name:         name,
		Processor:    desc.TypeName(),
		Signature:    desc.String(),
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		TagQueues:    cfg.TagQueues,
		SingleWindow: desc.UsesSingleWindow(),
		SideInputs:   desc.SideInputTags(),
		Display:      displayEntries(shim, name),
	})

	svc.Logger.Info("Processor registered", loggingpkg.LogFields{
		"runner":        name,
		"processor":     desc.String(),
		"consume_queue": cfg.ConsumeQueue,
		"publish_queue": cfg.PublishQueue,
		"single_window": desc.UsesSingleWindow(),
	})
	return runner, nil
}

func (s *Service) options(override engine.Options) engine.Options {
	if override != nil {
		return override
	}
	return s.Conf.Options.Clone()
}

func (s *Service) sideInputsOr(override engine.SideInputReader) engine.SideInputReader {
	if override != nil {
		return override
	}
	return s.sideInputs
}

func firstPositive[T int | time.Duration](values ...T) T {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
