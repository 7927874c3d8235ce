package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nholik/wifi-sentinel/internal/state"
)

// Metrics wraps Prometheus collectors for wifi-sentinel. The daemon serves no
// HTTP; collectors are exported by writing a textfile for the node-exporter
// textfile collector after each cycle. All methods are safe on a nil receiver
// so metrics can be left unconfigured.
type Metrics struct {
	registry                 *prometheus.Registry
	path                     string
	cycleDurationSeconds     prometheus.Histogram
	probesTotal              *prometheus.CounterVec
	connectAttemptsTotal     *prometheus.CounterVec
	apActivationsTotal       *prometheus.CounterVec
	modeGauge                *prometheus.GaugeVec
	lastSuccessfulCycleGauge prometheus.Gauge
}

// New initializes a Metrics registry writing to the given textfile path.
// Returns nil when path is empty, disabling collection.
func New(path string) *Metrics {
	if path == "" {
		return nil
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		path:     path,
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wifi_sentinel_cycle_duration_seconds",
			Help:    "Duration of watchdog cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifi_sentinel_probes_total",
			Help: "Connectivity probes by failure class.",
		}, []string{"failure_class"}),
		connectAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifi_sentinel_connect_attempts_total",
			Help: "Station connection attempts by outcome.",
		}, []string{"outcome"}),
		apActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wifi_sentinel_ap_activations_total",
			Help: "Access point activations by result.",
		}, []string{"result"}),
		modeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wifi_sentinel_mode",
			Help: "Current watchdog mode (1 for the active mode, 0 otherwise).",
		}, []string{"mode"}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wifi_sentinel_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last completed cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.probesTotal,
		m.connectAttemptsTotal,
		m.apActivationsTotal,
		m.modeGauge,
		m.lastSuccessfulCycleGauge,
	)
	return m
}

// ObserveCycle records one cycle's duration and completion time.
func (m *Metrics) ObserveCycle(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
	m.lastSuccessfulCycleGauge.SetToCurrentTime()
}

// RecordProbe counts a probe result by failure class.
func (m *Metrics) RecordProbe(failureClass string) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(failureClass).Inc()
}

// RecordConnectAttempt counts a station connect by outcome.
func (m *Metrics) RecordConnectAttempt(outcome string) {
	if m == nil {
		return
	}
	m.connectAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordAPActivation counts an access point activation attempt.
func (m *Metrics) RecordAPActivation(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.apActivationsTotal.WithLabelValues(result).Inc()
}

// SetMode sets the mode gauge to the current mode.
func (m *Metrics) SetMode(mode state.Mode) {
	if m == nil {
		return
	}
	for _, candidate := range []state.Mode{
		state.ModeUnknown, state.ModeStation, state.ModeAccessPoint, state.ModeDisconnected,
	} {
		value := 0.0
		if candidate == mode {
			value = 1.0
		}
		m.modeGauge.WithLabelValues(string(candidate)).Set(value)
	}
}

// Write exports the registry to the configured textfile path.
func (m *Metrics) Write() error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
