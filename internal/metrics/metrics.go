// Package metrics exposes deployment measurements to Prometheus.
//
// Metrics registers on its own registry, not the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetwall/internal/domain"
)

// DefinitionCounts is a snapshot of the declared state
type DefinitionCounts struct {
	AddressLists int
	Rules        int
	Groups       int
	Devices      int
}

// Metrics records command and deployment outcomes
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	deployments     *prometheus.CounterVec
	operations      *prometheus.CounterVec
	lastDeployment  *prometheus.GaugeVec
	parseSkipped    prometheus.Counter
}

// New creates metrics registered on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwall_commands_total",
			Help: "Commands sent to devices, by outcome.",
		}, []string{"outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetwall_command_duration_seconds",
			Help:    "Time from send to device reply.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwall_deployments_total",
			Help: "Group deployments, by group and result (clean or partial).",
		}, []string{"group", "result"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetwall_deployment_operations_total",
			Help: "Planned (operation, device) pairs, by group and outcome.",
		}, []string{"group", "outcome"}),
		lastDeployment: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetwall_last_deployment_timestamp_seconds",
			Help: "Unix time the last deployment of a group finished.",
		}, []string{"group"}),
		parseSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetwall_parse_skipped_lines_total",
			Help: "Tabular output lines the parser could not interpret.",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.commandDuration,
		m.deployments,
		m.operations,
		m.lastDeployment,
		m.parseSkipped,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCommand records one command outcome
func (m *Metrics) ObserveCommand(device domain.Device, outcome domain.Outcome, elapsed time.Duration) {
	m.commands.WithLabelValues(string(outcome)).Inc()
	m.commandDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveDeployment records a finished group deployment
func (m *Metrics) ObserveDeployment(report *domain.GroupDeploymentReport) {
	result := "clean"
	if report.Failed > 0 || report.Skipped > 0 {
		result = "partial"
	}
	m.deployments.WithLabelValues(report.GroupID, result).Inc()

	m.operations.WithLabelValues(report.GroupID, string(domain.OutcomeSucceeded)).Add(float64(report.Succeeded))
	m.operations.WithLabelValues(report.GroupID, string(domain.OutcomeFailed)).Add(float64(report.Failed))
	m.operations.WithLabelValues(report.GroupID, string(domain.OutcomeSkipped)).Add(float64(report.Skipped))

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastDeployment.WithLabelValues(report.GroupID).Set(float64(finished.Unix()))
}

// ObserveParse records lines skipped while parsing device output
func (m *Metrics) ObserveParse(skipped int) {
	m.parseSkipped.Add(float64(skipped))
}

// WatchDefinitions exposes definition counts, read from fn on each scrape
func (m *Metrics) WatchDefinitions(fn func() DefinitionCounts) {
	m.registry.MustRegister(newDefinitionsCollector(fn))
}

// definitionsCollector reads counts at scrape time
type definitionsCollector struct {
	fn func() DefinitionCounts

	addressLists *prometheus.Desc
	rules        *prometheus.Desc
	groups       *prometheus.Desc
	devices      *prometheus.Desc
}

func newDefinitionsCollector(fn func() DefinitionCounts) *definitionsCollector {
	return &definitionsCollector{
		fn: fn,
		addressLists: prometheus.NewDesc(
			"fleetwall_address_lists",
			"Declared address lists.",
			nil, nil,
		),
		rules: prometheus.NewDesc(
			"fleetwall_rules",
			"Declared firewall rules.",
			nil, nil,
		),
		groups: prometheus.NewDesc(
			"fleetwall_device_groups",
			"Declared device groups.",
			nil, nil,
		),
		devices: prometheus.NewDesc(
			"fleetwall_devices",
			"Devices across all groups.",
			nil, nil,
		),
	}
}

func (c *definitionsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.addressLists
	ch <- c.rules
	ch <- c.groups
	ch <- c.devices
}

func (c *definitionsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.fn()
	ch <- prometheus.MustNewConstMetric(c.addressLists, prometheus.GaugeValue, float64(counts.AddressLists))
	ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(counts.Rules))
	ch <- prometheus.MustNewConstMetric(c.groups, prometheus.GaugeValue, float64(counts.Groups))
	ch <- prometheus.MustNewConstMetric(c.devices, prometheus.GaugeValue, float64(counts.Devices))
}
