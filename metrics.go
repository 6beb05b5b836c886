package grove

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMetricsNamespace is the Prometheus namespace used when none is
// configured.
const DefaultMetricsNamespace = "grove"

// Metrics provides Prometheus metrics for an orchestrator and the lifecycles
// attached to it. All methods are nil-safe: calls on a nil *Metrics are
// no-ops.
type Metrics struct {
	// ProvidersRegistered tracks the number of registered providers.
	ProvidersRegistered prometheus.Gauge

	// State holds the numeric orchestrator state (see [State]).
	State prometheus.Gauge

	// PendingInit tracks init units that have not returned yet.
	PendingInit prometheus.Gauge

	// InitDuration observes how long each provider's Init took.
	// Label: provider.
	InitDuration *prometheus.HistogramVec

	// InitFailures counts Init calls that returned an error or panicked.
	// Label: provider.
	InitFailures *prometheus.CounterVec

	// StartFailures counts Start calls that returned an error or panicked.
	// Label: provider.
	StartFailures *prometheus.CounterVec

	// Waiters tracks callers parked in AwaitStart.
	Waiters prometheus.Gauge

	// LifecycleFires counts Fire calls. Label: lifecycle.
	LifecycleFires *prometheus.CounterVec

	// HookFailures counts hook invocations that failed. Labels: lifecycle, hook.
	HookFailures *prometheus.CounterVec
}

// NewMetrics creates and registers orchestrator metrics with the given
// Prometheus registerer. If reg is nil, metrics are created but not
// registered (useful for testing). An empty namespace falls back to
// [DefaultMetricsNamespace].
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	m := &Metrics{
		ProvidersRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "providers_registered",
			Help:      "Number of registered providers",
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Orchestrator state (0=not_started, 1=initializing, 2=started, 3=failed)",
		}),
		PendingInit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_init",
			Help:      "Init units that have not returned yet",
		}),
		InitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "init_duration_seconds",
			Help:      "Time spent in provider Init",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		InitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "init_failures_total",
			Help:      "Provider Init calls that failed",
		}, []string{"provider"}),
		StartFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_failures_total",
			Help:      "Provider Start calls that failed",
		}, []string{"provider"}),
		Waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_waiters",
			Help:      "Callers parked waiting for startup",
		}),
		LifecycleFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "fires_total",
			Help:      "Lifecycle Fire calls",
		}, []string{"lifecycle"}),
		HookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "hook_failures_total",
			Help:      "Lifecycle hook invocations that failed",
		}, []string{"lifecycle", "hook"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ProvidersRegistered,
			m.State,
			m.PendingInit,
			m.InitDuration,
			m.InitFailures,
			m.StartFailures,
			m.Waiters,
			m.LifecycleFires,
			m.HookFailures,
		)
	}

	return m
}

func (m *Metrics) setProviders(n int) {
	if m == nil {
		return
	}
	m.ProvidersRegistered.Set(float64(n))
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.State.Set(float64(s))
}

func (m *Metrics) setPendingInit(n int64) {
	if m == nil {
		return
	}
	m.PendingInit.Set(float64(n))
}

func (m *Metrics) observeInit(provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.InitDuration.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.InitFailures.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) recordStartFailure(provider string) {
	if m == nil {
		return
	}
	m.StartFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) addWaiters(delta int) {
	if m == nil {
		return
	}
	m.Waiters.Add(float64(delta))
}

func (m *Metrics) recordFire(lifecycle string) {
	if m == nil {
		return
	}
	m.LifecycleFires.WithLabelValues(lifecycle).Inc()
}

func (m *Metrics) recordHookFailure(lifecycle, hook string) {
	if m == nil {
		return
	}
	m.HookFailures.WithLabelValues(lifecycle, hook).Inc()
}
