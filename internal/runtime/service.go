package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/procflow/internal/runtime/config"
	"github.com/drblury/procflow/internal/runtime/engine"
	errspkg "github.com/drblury/procflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/procflow/internal/runtime/logging"
	"github.com/drblury/procflow/internal/runtime/signature"
	transportpkg "github.com/drblury/procflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// httpShutdownTimeout bounds how long Start waits for HTTP servers to drain.
const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// Hooks run around every lifecycle call of every registered processor,
	// after the logging and metrics hooks.
	Hooks PhaseHooks
	// SideInputs is the default side input store for registered processors.
	SideInputs engine.SideInputReader
	// Registerer receives the Prometheus collectors. Defaults to the global registerer.
	Registerer prometheus.Registerer
	// Resolver caches processor signatures. Defaults to the process-wide resolver.
	Resolver *signature.Resolver
}

// Service runs registered processors against a message transport. Each
// processor consumes one queue through the Watermill router and publishes its
// outputs through the shared publisher.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.Logger

	transport  transportpkg.Transport
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	registerer prometheus.Registerer
	metrics    *PhaseMetrics
	hooks      PhaseHooks
	sideInputs engine.SideInputReader
	resolver   *signature.Resolver

	runners   []processorEntry
	runnersMu sync.Mutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// runnerHandle is the type-erased view of a Runner the service keeps.
type runnerHandle interface {
	Name() string
	Bundles() int
	Flush() error
	Close(ctx context.Context) error
}

type processorEntry struct {
	info   ProcessorInfo
	runner runnerHandle
}

// NewService validates conf, builds the transport and the router, and
// registers the middleware chain. Register processors on the returned
// Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.Logger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating processor service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		registerer: deps.Registerer,
		sideInputs: deps.SideInputs,
		resolver:   deps.Resolver,
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.resolver == nil {
		s.resolver = signature.DefaultResolver
	}

	s.hooks = LoggingHooks(log)
	if conf.MetricsEnabled {
		s.metrics = NewPhaseMetrics(s.registerer)
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register phase metrics: %w", err)
		}
		s.hooks = s.hooks.Merge(s.metrics.Hooks())
	}
	s.hooks = s.hooks.Merge(deps.Hooks)

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	if transport.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if transport.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	s.transport = transport
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = transport.Close()
		return nil, err
	}
	s.startInspectServer()
	return s, nil
}

// Start runs the router and the HTTP servers until ctx is cancelled or the
// router stops. Registered runners are closed afterwards: open bundles are
// finished and processors torn down.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for addr, handler := range s.httpHandlers() {
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: httpShutdownTimeout}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return routerRun(s.router, gctx)
	})

	runErr := g.Wait()
	return errors.Join(runErr, s.Close(context.WithoutCancel(ctx)))
}

// Running is closed once the router has started all handlers.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router if it is running, finishes the open bundles of all
// runners, tears their processors down and closes the transport. Calls after
// the first return the first result.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		// A router that never ran has no handlers to drain; closing it
		// would wait for the full close timeout.
		if s.router.IsRunning() {
			if err := s.router.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, r := range s.runnerHandles() {
			if err := r.Close(ctx); err != nil {
				s.Logger.Error("Failed to close runner", err, loggingpkg.LogFields{"runner": r.Name()})
				errs = append(errs, fmt.Errorf("close %s: %w", r.Name(), err))
			}
		}
		if err := s.transport.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Flush closes the open bundle of every runner.
func (s *Service) Flush() error {
	var errs []error
	for _, r := range s.runnerHandles() {
		if err := r.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Runners returns the names of the registered runners in sorted order.
func (s *Service) Runners() []string {
	s.runnersMu.Lock()
	defer s.runnersMu.Unlock()
	names := make([]string, 0, len(s.runners))
	for _, entry := range s.runners {
		names = append(names, entry.runner.Name())
	}
	sort.Strings(names)
	return names
}

// Capabilities describes the transport the service runs on.
func (s *Service) Capabilities() transportpkg.Capabilities {
	return s.transport.Capabilities
}

// Publisher returns the transport publisher.
func (s *Service) Publisher() message.Publisher {
	return s.publisher
}

// Subscriber returns the transport subscriber.
func (s *Service) Subscriber() message.Subscriber {
	return s.subscriber
}

// Metrics returns the phase metrics, nil when metrics are disabled.
func (s *Service) Metrics() *PhaseMetrics {
	return s.metrics
}

func (s *Service) addRunner(r runnerHandle, info ProcessorInfo) {
	s.runnersMu.Lock()
	s.runners = append(s.runners, processorEntry{info: info, runner: r})
	s.runnersMu.Unlock()
}

func (s *Service) runnerHandles() []runnerHandle {
	s.runnersMu.Lock()
	defer s.runnersMu.Unlock()
	handles := make([]runnerHandle, len(s.runners))
	for i, entry := range s.runners {
		handles[i] = entry.runner
	}
	return handles
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the server listening on port.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) httpHandlers() map[string]http.Handler {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	handlers := make(map[string]http.Handler, len(s.httpServers))
	for port, mux := range s.httpServers {
		handlers[fmt.Sprintf(":%d", port)] = mux
	}
	return handlers
}
