package metrics

import (
	"time"

	"github.com/eqr/sdbclient/migrations"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector records migration progress in its own Prometheus registry.
// It implements migrations.Observer.
type Collector struct {
	registry *prometheus.Registry

	steps      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	version    prometheus.Gauge
	tables     prometheus.Gauge
	statements *prometheus.CounterVec
}

var _ migrations.Observer = (*Collector)(nil)

// New creates a Collector with a private registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surrealmigrate_steps_total",
			Help: "Migration files executed by action and result.",
		}, []string{"action", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surrealmigrate_step_duration_seconds",
			Help:    "Migration file execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "surrealmigrate_ledger_version",
			Help: "Highest version recorded in the migration ledger.",
		}),
		tables: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "surrealmigrate_snapshot_tables",
			Help: "Tables in the last captured schema snapshot.",
		}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "surrealmigrate_generated_statements_total",
			Help: "Statements written to generated migration files by direction.",
		}, []string{"direction"}),
	}
	reg.MustRegister(c.steps, c.duration, c.version, c.tables, c.statements)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) StepCompleted(action migrations.Action, version int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.steps.WithLabelValues(string(action), result).Inc()
	c.duration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}

func (c *Collector) LedgerVersion(version int) {
	c.version.Set(float64(version))
}

func (c *Collector) SnapshotCaptured(tables int) {
	c.tables.Set(float64(tables))
}

func (c *Collector) StatementsGenerated(forward, reverse int) {
	c.statements.WithLabelValues("forward").Add(float64(forward))
	c.statements.WithLabelValues("reverse").Add(float64(reverse))
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
