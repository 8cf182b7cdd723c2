package metrics

import (
	"testing"
	"time"

	"ragguard/internal/evidence"
	"ragguard/internal/observer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ observer.Observer = (*Observer)(nil)

func TestObserver_RecordsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewObserver(reg)
	require.NoError(t, err)

	o.StageFinished(evidence.StageResult{Stage: evidence.SourceWeb, Count: 3, Elapsed: 120 * time.Millisecond})
	o.StageFinished(evidence.StageResult{Stage: evidence.SourceKG, Degraded: true, Reason: evidence.ReasonTimeout})
	o.StageFinished(evidence.StageResult{Stage: evidence.SourceKG, Degraded: true, Reason: evidence.ReasonTimeout})
	o.HedgeIssued(evidence.SourceWeb)
	o.RerankSkipped("saturated")
	o.Decided(evidence.GateDecision{Approved: true, Score: 0.93, Reason: evidence.ReasonOK}, time.Second)
	o.Decided(evidence.GateDecision{Score: 0.2, Reason: evidence.ReasonLowScore}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.stageDegrade.WithLabelValues("KG", evidence.ReasonTimeout)))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.stageDegrade.WithLabelValues("WEB", evidence.ReasonTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.hedges.WithLabelValues("WEB")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.rerankSkips.WithLabelValues("saturated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.decisions.WithLabelValues("true", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.decisions.WithLabelValues("false", "LOW_SCORE")))

	assert.Equal(t, 2, testutil.CollectAndCount(o.stageLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(o.gateScore))
}

func TestNewObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewObserver(reg)
	require.NoError(t, err)

	_, err = NewObserver(reg)
	assert.Error(t, err)
}
