package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the captioning pipeline
type Metrics struct {
	pipelineRuns   *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	outputRejected *prometheus.CounterVec
	assetOps       *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics and registers them with reg.
// Passing nil registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		pipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caption_pipeline_runs_total",
				Help: "Total number of captioning pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caption_pipeline_stage_duration_seconds",
				Help:    "Duration of each captioning pipeline stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		outputRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caption_model_output_rejected_total",
				Help: "Model responses that could not be extracted or failed validation",
			},
			[]string{"stage"},
		),
		assetOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caption_asset_operations_total",
				Help: "Asset store operations by backend, operation and result",
			},
			[]string{"backend", "op", "result"},
		),
	}
}

// RecordPipelineRun counts one finished pipeline run.
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took, in seconds.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// ModelOutputRejected counts a model response that produced nothing usable.
func (m *Metrics) ModelOutputRejected(stage string) {
	if m == nil {
		return
	}
	m.outputRejected.WithLabelValues(stage).Inc()
}

// RecordAssetOp counts an asset store operation.
func (m *Metrics) RecordAssetOp(backend, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.assetOps.WithLabelValues(backend, op, result).Inc()
}
