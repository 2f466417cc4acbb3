// Package metrics records deployment outcomes as Prometheus metrics. A run
// writes them to a node_exporter textfile since the CLI is not scraped.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Bidon15/popdeploy/internal/deployments"
)

// Deployment results
const (
	ResultDeployed = "deployed"
	ResultReused   = "reused"
	ResultFailed   = "failed"
)

// Metrics holds the collectors of one deployment run.
type Metrics struct {
	registry *prometheus.Registry

	deploymentsTotal *prometheus.CounterVec
	gasUsed          *prometheus.GaugeVec
	deployDuration   *prometheus.HistogramVec
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popdeploy_deployments_total",
				Help: "Deploy calls by network, deployment name and result",
			},
			[]string{"network", "name", "result"},
		),
		gasUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "popdeploy_deploy_gas_used",
				Help: "Gas used by the most recent deployment transaction",
			},
			[]string{"network", "name"},
		),
		deployDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "popdeploy_deploy_duration_seconds",
				Help:    "Time from deploy call to mined receipt",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"network", "name"},
		),
	}
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Deployer is the deploy capability being instrumented.
type Deployer interface {
	Deploy(ctx context.Context, name string, opts deployments.DeployOptions) (*deployments.Deployment, error)
}

// InstrumentedDeployer records every Deploy call on Metrics and otherwise
// behaves exactly like the wrapped deployer.
type InstrumentedDeployer struct {
	next    Deployer
	metrics *Metrics
	network string
	now     func() time.Time
}

// Instrument wraps d.
func Instrument(d Deployer, m *Metrics, network string) *InstrumentedDeployer {
	return &InstrumentedDeployer{next: d, metrics: m, network: network, now: time.Now}
}

// Deploy calls the wrapped deployer and records the outcome.
func (d *InstrumentedDeployer) Deploy(ctx context.Context, name string, opts deployments.DeployOptions) (*deployments.Deployment, error) {
	start := d.now()
	dep, err := d.next.Deploy(ctx, name, opts)

	switch {
	case err != nil:
		d.metrics.deploymentsTotal.WithLabelValues(d.network, name, ResultFailed).Inc()
	case dep.Reused:
		d.metrics.deploymentsTotal.WithLabelValues(d.network, name, ResultReused).Inc()
	default:
		d.metrics.deploymentsTotal.WithLabelValues(d.network, name, ResultDeployed).Inc()
		d.metrics.gasUsed.WithLabelValues(d.network, name).Set(float64(dep.GasUsed))
		d.metrics.deployDuration.WithLabelValues(d.network, name).Observe(d.now().Sub(start).Seconds())
	}

	return dep, err
}
