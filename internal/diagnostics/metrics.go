package diagnostics

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/command"
)

// Metrics records per-run command and artifact statistics in a private
// registry. It implements command.Observer.
type Metrics struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	commands  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	artifacts *prometheus.CounterVec
}

// NewMetrics creates a metrics set with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashdump_command_attempts_total",
				Help: "Process attempts by tool, subcommand and result",
			},
			[]string{"tool", "subcommand", "result"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashdump_commands_total",
				Help: "Commands by tool, subcommand and final result after retries",
			},
			[]string{"tool", "subcommand", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crashdump_command_duration_seconds",
				Help:    "Command duration in seconds including retries",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"tool", "subcommand"},
		),
		artifacts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crashdump_artifacts_total",
				Help: "Artifacts written, by whether they hold collected output or an error placeholder",
			},
			[]string{"type"},
		),
	}
	m.registry.MustRegister(m.attempts, m.commands, m.duration, m.artifacts)
	return m
}

func labels(inv command.Invocation) (string, string) {
	return filepath.Base(inv.Tool()), inv.Subcommand()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// AttemptFinished implements command.Observer.
func (m *Metrics) AttemptFinished(inv command.Invocation, _ int, exitCode int, _ time.Duration) {
	tool, sub := labels(inv)
	m.attempts.WithLabelValues(tool, sub, result(exitCode == 0)).Inc()
}

// CommandFinished implements command.Observer.
func (m *Metrics) CommandFinished(inv command.Invocation, _ int, err error, elapsed time.Duration) {
	tool, sub := labels(inv)
	m.commands.WithLabelValues(tool, sub, result(err == nil)).Inc()
	m.duration.WithLabelValues(tool, sub).Observe(elapsed.Seconds())
}

// ArtifactWritten counts one staged artifact.
func (m *Metrics) ArtifactWritten(placeholder bool) {
	kind := "output"
	if placeholder {
		kind = "placeholder"
	}
	m.artifacts.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Exposition renders all metrics in the Prometheus text format.
func (m *Metrics) Exposition() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}
