package rerank

import (
	"math"
	"testing"
	"time"

	"ragguard/internal/budget"
	"ragguard/internal/evidence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string, score float64, emb ...float32) evidence.ContextSlice {
	return evidence.ContextSlice{ID: id, Score: score, Embedding: emb, Source: evidence.SourceFusion}
}

func idsOf(list []evidence.ContextSlice) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestDiversity_SizeAndDistinctness(t *testing.T) {
	in := []evidence.ContextSlice{
		cand("a", 0.9, 1, 0), cand("b", 0.8, 1, 0.1), cand("c", 0.7, 0, 1),
		cand("d", 0.6), cand("e", 0.5, 0, 0),
	}
	for _, lambda := range []float64{0, 0.3, 0.7, 1} {
		for k := 0; k <= 7; k++ {
			out := Diversity{Lambda: lambda}.Rerank(nil, in, k)
			require.Len(t, out, min(k, len(in)), "lambda=%v k=%d", lambda, k)

			seen := map[string]bool{}
			for i, s := range out {
				assert.False(t, seen[s.ID], "duplicate %s", s.ID)
				seen[s.ID] = true
				assert.Equal(t, i+1, s.Rank)
			}
			for id := range seen {
				assert.Contains(t, idsOf(in), id)
			}
		}
	}
}

func TestDiversity_ZeroLambdaIsRelevanceOrder(t *testing.T) {
	in := []evidence.ContextSlice{cand("b", 0.5, 1, 0), cand("a", 0.9, 1, 0), cand("c", 0.5, 1, 0)}
	out := Diversity{Lambda: 0}.Rerank(nil, in, 3)
	assert.Equal(t, []string{"a", "b", "c"}, idsOf(out))
}

func TestDiversity_PrefersNovelCandidate(t *testing.T) {
	in := []evidence.ContextSlice{
		cand("top", 0.90, 1, 0),
		cand("near-duplicate", 0.85, 1, 0.01),
		cand("different", 0.70, 0, 1),
	}
	out := Diversity{Lambda: 0.7}.Rerank(nil, in, 2)
	assert.Equal(t, []string{"top", "different"}, idsOf(out))

	out = Diversity{Lambda: 0}.Rerank(nil, in, 2)
	assert.Equal(t, []string{"top", "near-duplicate"}, idsOf(out))
}

func TestDiversity_MissingEmbeddingNeverPenalised(t *testing.T) {
	in := []evidence.ContextSlice{
		cand("a", 0.9, 1, 0),
		cand("b", 0.8, 1, 0),
		cand("no-vector", 0.75),
	}
	out := Diversity{Lambda: 1}.Rerank(nil, in, 2)
	assert.Equal(t, []string{"a", "no-vector"}, idsOf(out))
}

func TestDiversity_ExpiredBudgetFallsBackToRelevance(t *testing.T) {
	in := []evidence.ContextSlice{
		cand("a", 0.9, 1, 0), cand("b", 0.85, 1, 0), cand("c", 0.5, 0, 1),
	}
	b := budget.New(time.Hour)
	b.Cancel()
	out := Diversity{Lambda: 1}.Rerank(b, in, 2)
	assert.Equal(t, []string{"a", "b"}, idsOf(out))
}

func TestDiversity_DoesNotMutateInput(t *testing.T) {
	in := []evidence.ContextSlice{cand("b", 0.1), cand("a", 0.9)}
	_ = Diversity{}.Rerank(nil, in, 2)
	assert.Equal(t, "b", in[0].ID)
	assert.Equal(t, 0, in[0].Rank)
}

func TestDiversity_LambdaClamped(t *testing.T) {
	assert.Equal(t, 0.0, Diversity{Lambda: -2}.lambda())
	assert.Equal(t, 1.0, Diversity{Lambda: 5}.lambda())
	assert.Equal(t, DefaultLambda, Diversity{Lambda: math.NaN()}.lambda())
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"missing", nil, []float32{1}, 0},
		{"different length uses prefix", []float32{1, 0, 5}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestDiversity_NonFiniteScores(t *testing.T) {
	in := []evidence.ContextSlice{
		cand("a", math.NaN()),
		cand("b", math.Inf(-1)),
		cand("c", math.NaN()),
	}

	var out []evidence.ContextSlice
	require.NotPanics(t, func() {
		out = Diversity{Lambda: 0.5}.Rerank(nil, in, 2)
	})
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].ID, out[1].ID)
	assert.Equal(t, 1, out[0].Rank)
	assert.Equal(t, 2, out[1].Rank)
}
