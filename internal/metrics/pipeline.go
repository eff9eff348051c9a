// Package metrics collects per-run pipeline counters in a private Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Pipeline records cleaning, training and retrieval activity for one CLI run.
// It satisfies dataset.Recorder.
type Pipeline struct {
	registry *prometheus.Registry

	stageRowsIn      *prometheus.GaugeVec
	stageRowsOut     *prometheus.GaugeVec
	rowsDropped      *prometheus.CounterVec
	coercionFailures *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	modelScore       *prometheus.GaugeVec
	llmRequests      *prometheus.CounterVec

	logger *zap.Logger
}

// NewPipeline creates a Pipeline with its own registry under namespace.
func NewPipeline(namespace string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Pipeline{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
		stageRowsIn: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clean_stage_rows_in",
			Help:      "Rows entering each cleaning stage",
		}, []string{"stage"}),
		stageRowsOut: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clean_stage_rows_out",
			Help:      "Rows leaving each cleaning stage",
		}, []string{"stage"}),
		rowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clean_rows_dropped_total",
			Help:      "Rows removed by each cleaning stage",
		}, []string{"stage"}),
		coercionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clean_coercion_failures_total",
			Help:      "Values that failed numeric coercion",
		}, []string{"column"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		modelScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_score",
			Help:      "Evaluation metrics of trained models",
		}, []string{"model", "metric"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Embedding and chat requests by kind and outcome",
		}, []string{"kind", "status"}),
	}
}

// ObserveStage records row counts around one cleaning stage.
func (p *Pipeline) ObserveStage(stage string, rowsIn, rowsOut int) {
	p.stageRowsIn.WithLabelValues(stage).Set(float64(rowsIn))
	p.stageRowsOut.WithLabelValues(stage).Set(float64(rowsOut))
	if d := rowsIn - rowsOut; d > 0 {
		p.rowsDropped.WithLabelValues(stage).Add(float64(d))
	}
}

// ObserveCoercionFailures counts values in column that did not parse as numbers.
func (p *Pipeline) ObserveCoercionFailures(column string, n int) {
	p.coercionFailures.WithLabelValues(column).Add(float64(n))
}

// ObserveStep records how long a named step took.
func (p *Pipeline) ObserveStep(step string, d time.Duration) {
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Time returns a func that records the elapsed time of step when called.
func (p *Pipeline) Time(step string) func() {
	start := time.Now()
	return func() { p.ObserveStep(step, time.Since(start)) }
}

// ObserveScores records evaluation metrics for model.
func (p *Pipeline) ObserveScores(model string, scores map[string]float64) {
	for k, v := range scores {
		p.modelScore.WithLabelValues(model, k).Set(v)
	}
}

// ObserveLLM counts one embedding or chat request.
func (p *Pipeline) ObserveLLM(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.llmRequests.WithLabelValues(kind, status).Inc()
}

// Registry exposes the underlying registry.
func (p *Pipeline) Registry() *prometheus.Registry { return p.registry }

// WriteFile writes the registry in text exposition format, for node_exporter's textfile collector.
func (p *Pipeline) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	p.logger.Debug("metrics written", zap.String("path", path))
	return nil
}
