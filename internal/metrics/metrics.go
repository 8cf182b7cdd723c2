// Package metrics exports pipeline events as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"ragguard/internal/evidence"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ragguard"

// Observer records pipeline events into Prometheus collectors.
type Observer struct {
	stageLatency *prometheus.HistogramVec
	stageResults *prometheus.HistogramVec
	stageDegrade *prometheus.CounterVec
	hedges       *prometheus.CounterVec
	rerankSkips  *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	gateScore    prometheus.Histogram
	requestTime  prometheus.Histogram
}

// NewObserver creates the collectors and registers them with reg. A nil reg
// registers with the default registry.
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Latency of retrieval stages in milliseconds",
			Buckets:   []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200, 2500},
		}, []string{"stage"}),
		stageResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_results",
			Help:      "Number of results returned by a retrieval stage",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}, []string{"stage"}),
		stageDegrade: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_degraded_total",
			Help:      "Retrieval stages that returned partial or no results",
		}, []string{"stage", "reason"}),
		hedges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hedged_requests_total",
			Help:      "Duplicate backend requests sent after the hedge delay",
		}, []string{"stage"}),
		rerankSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_skipped_total",
			Help:      "Cross-encoder calls replaced by the unscored ordering",
		}, []string{"reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Gate decisions by outcome and reason code",
		}, []string{"approved", "reason"}),
		gateScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_score",
			Help:      "Sigmoid gate probability distribution",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		requestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_ms",
			Help:      "End-to-end retrieve-and-gate latency in milliseconds",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1200, 1600, 2000, 2500, 3000, 5000},
		}),
	}
	for _, c := range o.Collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Collectors returns every collector owned by o.
func (o *Observer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.stageLatency, o.stageResults, o.stageDegrade, o.hedges,
		o.rerankSkips, o.decisions, o.gateScore, o.requestTime,
	}
}

func (o *Observer) StageFinished(r evidence.StageResult) {
	stage := r.Stage.String()
	o.stageLatency.WithLabelValues(stage).Observe(millis(r.Elapsed))
	o.stageResults.WithLabelValues(stage).Observe(float64(r.Count))
	if r.Degraded {
		o.stageDegrade.WithLabelValues(stage, r.Reason).Inc()
	}
}

func (o *Observer) HedgeIssued(stage evidence.SourceKind) {
	o.hedges.WithLabelValues(stage.String()).Inc()
}

func (o *Observer) RerankSkipped(reason string) {
	o.rerankSkips.WithLabelValues(reason).Inc()
}

func (o *Observer) Decided(d evidence.GateDecision, elapsed time.Duration) {
	o.decisions.WithLabelValues(strconv.FormatBool(d.Approved), string(d.Reason)).Inc()
	o.gateScore.Observe(d.Score)
	o.requestTime.Observe(millis(elapsed))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
