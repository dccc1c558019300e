package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PhaseMetrics records lifecycle call counts and latencies per processor.
type PhaseMetrics struct {
	mu sync.Mutex

	callsTotal   *prometheus.CounterVec
	failedTotal  *prometheus.CounterVec
	durationHist *prometheus.HistogramVec
	outputsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newPhaseCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procflow",
			Subsystem: "processor",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewPhaseMetrics creates the collectors. A nil registerer selects the
// Prometheus default registerer.
func NewPhaseMetrics(registerer prometheus.Registerer) *PhaseMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PhaseMetrics{
		registerer:  registerer,
		callsTotal:  newPhaseCounterVec("phase_calls_total", "Total number of lifecycle calls", []string{"processor", "phase"}),
		failedTotal: newPhaseCounterVec("phase_failures_total", "Total number of lifecycle calls that returned an error", []string{"processor", "phase"}),
		durationHist: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "procflow",
				Subsystem: "processor",
				Name:      "phase_duration_seconds",
				Help:      "Duration of lifecycle calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"processor", "phase"},
		),
		outputsTotal: newPhaseCounterVec("outputs_total", "Total number of emitted outputs", []string{"processor", "tag"}),
	}
}

// Register registers the collectors. Safe to call multiple times. When the
// registerer already holds collectors of the same shape, m records into those.
func (m *PhaseMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range []**prometheus.CounterVec{&m.callsTotal, &m.failedTotal, &m.outputsTotal} {
		existing, err := registerOrExisting(m.registerer, *c)
		if err != nil {
			return err
		}
		*c = existing
	}
	hist, err := registerOrExisting(m.registerer, m.durationHist)
	if err != nil {
		return err
	}
	m.durationHist = hist

	m.registered = true
	return nil
}

func registerOrExisting[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	err := registerer.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return c, err
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("collector already registered with type %T: %w", already.ExistingCollector, err)
	}
	return existing, nil
}

// Hooks returns PhaseHooks feeding the collectors.
func (m *PhaseMetrics) Hooks() PhaseHooks {
	return PhaseHooks{
		OnPhaseStart: func(ctx PhaseContext) {
			m.callsTotal.WithLabelValues(ctx.Processor, ctx.Phase.String()).Inc()
		},
		OnPhaseDone: func(ctx PhaseContext) {
			m.durationHist.WithLabelValues(ctx.Processor, ctx.Phase.String()).Observe(ctx.Duration.Seconds())
		},
		OnPhaseError: func(ctx PhaseContext, _ error) {
			m.failedTotal.WithLabelValues(ctx.Processor, ctx.Phase.String()).Inc()
			m.durationHist.WithLabelValues(ctx.Processor, ctx.Phase.String()).Observe(ctx.Duration.Seconds())
		},
	}
}

// ObserveOutput counts one emitted output. An empty tag is the primary output.
func (m *PhaseMetrics) ObserveOutput(processor, tag string) {
	if tag == "" {
		tag = "main"
	}
	m.outputsTotal.WithLabelValues(processor, tag).Inc()
}

// MetricsHooks returns hooks that record phase metrics on m.
func MetricsHooks(m *PhaseMetrics) PhaseHooks {
	if m == nil {
		return PhaseHooks{}
	}
	return m.Hooks()
}
