// Package metrics exports a resolved training plan as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sgl-project/ome-mtl/internal/params"
)

// PlanMetrics holds the gauges describing one plan.
type PlanMetrics struct {
	registry *prometheus.Registry

	trainSteps         prometheus.Gauge
	trainStepsPerEpoch prometheus.Gauge
	warmupSteps        prometheus.Gauge
	learningRate       prometheus.Gauge
	dataRows           prometheus.Gauge
	shuffleBuffer      prometheus.Gauge

	problemRows    *prometheus.GaugeVec
	problemClasses *prometheus.GaugeVec
	chunkWeight    *prometheus.GaugeVec
	planInfo       *prometheus.GaugeVec

	plansObserved prometheus.Counter
}

// NewPlanMetrics registers the plan gauges on a fresh registry.
func NewPlanMetrics() *PlanMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PlanMetrics{
		registry: reg,

		trainSteps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_train_steps",
			Help: "Total number of training steps of the plan",
		}),
		trainStepsPerEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_train_steps_per_epoch",
			Help: "Number of training steps per epoch",
		}),
		warmupSteps: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_warmup_steps",
			Help: "Number of learning rate warmup steps",
		}),
		learningRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_learning_rate",
			Help: "Learning rate after scaling by the device count",
		}),
		dataRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_data_rows",
			Help: "Total training rows over the problem list",
		}),
		shuffleBuffer: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtl_plan_shuffle_buffer",
			Help: "Shuffle buffer size",
		}),
		problemRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtl_problem_data_rows",
			Help: "Training rows per problem",
		}, []string{"problem", "problem_type"}),
		problemClasses: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtl_problem_num_classes",
			Help: "Number of classes per problem",
		}, []string{"problem", "problem_type"}),
		chunkWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtl_chunk_sampling_weight",
			Help: "Normalised sampling weight per problem chunk",
		}, []string{"chunk"}),
		planInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtl_plan_info",
			Help: "Always 1; labels describe the plan",
		}, []string{"run_id", "problem", "ckpt_dir", "predicting"}),
		plansObserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "mtl_plans_observed_total",
			Help: "Number of times a plan was observed",
		}),
	}
}

// Observe replaces every gauge with the values of p.
func (m *PlanMetrics) Observe(p *params.Params) {
	m.trainSteps.Set(float64(p.TrainSteps))
	m.trainStepsPerEpoch.Set(float64(p.TrainStepsPerEpoch))
	m.warmupSteps.Set(float64(p.NumWarmupSteps))
	m.learningRate.Set(p.LR)
	m.dataRows.Set(float64(p.DataNum))
	m.shuffleBuffer.Set(float64(p.ShuffleBuffer))

	m.problemRows.Reset()
	m.problemClasses.Reset()
	for _, problem := range p.ProblemList {
		problemType := string(p.ProblemTypes[problem])
		if n, ok := p.DataNumDict[problem]; ok {
			m.problemRows.WithLabelValues(problem, problemType).Set(float64(n))
		}
		if n, ok := p.NumClasses[problem]; ok {
			m.problemClasses.WithLabelValues(problem, problemType).Set(float64(n))
		}
	}

	m.chunkWeight.Reset()
	for chunk, w := range p.ProblemSamplingWeightDict {
		m.chunkWeight.WithLabelValues(chunk).Set(w)
	}

	m.planInfo.Reset()
	m.planInfo.WithLabelValues(p.RunID, p.ProblemStr, p.CkptDir, strconv.FormatBool(p.Predicting)).Set(1)
	m.plansObserved.Inc()
}

// Registry returns the registry holding the plan metrics.
func (m *PlanMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the plan metrics in the Prometheus exposition format.
func (m *PlanMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics for the node exporter textfile collector.
func (m *PlanMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
