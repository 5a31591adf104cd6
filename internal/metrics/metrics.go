package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"routing-simulator/internal/simulation"
	"routing-simulator/internal/types"
)

const unattributed = "unattributed"

// Collector exports simulation progress as Prometheus metrics.
type Collector struct {
	Payments       *prometheus.CounterVec
	RoutingChoices *prometheus.CounterVec
	Batches        prometheus.Counter
	Processed      prometheus.Gauge
	SuccessRate    prometheus.Gauge
	Running        prometheus.Gauge
	Summaries      *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_payments_total",
			Help: "Completed simulated payments by connector and outcome.",
		}, []string{"connector", "outcome"}),

		RoutingChoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_routing_approach_total",
			Help: "Completed simulated payments by routing approach.",
		}, []string{"approach"}),

		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_batches_total",
			Help: "Committed simulation batches.",
		}),

		Processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_run_processed",
			Help: "Payments processed in the current run.",
		}),

		SuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_run_success_rate_percent",
			Help: "Overall success rate of the current run.",
		}),

		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_run_running",
			Help: "1 while a run is scheduling batches.",
		}),

		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_summaries_total",
			Help: "Summary requests by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.Payments, c.RoutingChoices, c.Batches, c.Processed, c.SuccessRate, c.Running, c.Summaries)

	return c
}

func (c *Collector) Observe(ev simulation.Event) {
	switch ev.Type {
	case simulation.EventState:
		running := 0.0
		if ev.State == types.StateRunning {
			running = 1
		}
		c.Running.Set(running)

	case simulation.EventTick:
		c.Batches.Inc()
		for _, o := range ev.Outcomes {
			connector := o.RoutedProcessorID
			if connector == "" {
				connector = unattributed
			}
			outcome := "failure"
			if o.IsSuccess {
				outcome = "success"
			}
			c.Payments.WithLabelValues(connector, outcome).Inc()

			if o.Log != nil {
				c.RoutingChoices.WithLabelValues(string(o.Log.RoutingApproach)).Inc()
			}
		}
		if ev.Snapshot != nil {
			c.Processed.Set(float64(ev.Snapshot.Processed))
			c.SuccessRate.Set(ev.Snapshot.OverallSR)
		}

	case simulation.EventSummary:
		result := "ok"
		if ev.Summary != nil && ev.Summary.Failed {
			result = "failed"
		}
		c.Summaries.WithLabelValues(result).Inc()
	}
}
