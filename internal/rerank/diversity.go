// Package rerank reorders fused candidates: a diversity pass that trades
// relevance against redundancy, and a cross-encoder pass that rescores the
// survivors pairwise against the query.
package rerank

import (
	"math"
	"sort"

	"ragguard/internal/budget"
	"ragguard/internal/evidence"
)

// DefaultLambda is the default novelty pressure.
const DefaultLambda = 0.3

// Diversity is a greedy maximal-marginal-relevance selector. Each round it
// picks the remaining candidate maximising
//
//	relevance - Lambda * max cosine(candidate, already selected)
//
// Lambda is clamped to [0,1]; 0 is plain relevance order.
type Diversity struct {
	Lambda float64
}

// Rerank returns min(topK, len(in)) distinct candidates from in, ranked
// 1..N. The budget is checked before every selection round; once it is
// spent the remaining slots are filled in relevance order.
func (d Diversity) Rerank(b *budget.Budget, in []evidence.ContextSlice, topK int) []evidence.ContextSlice {
	k := min(topK, len(in))
	if k <= 0 {
		return []evidence.ContextSlice{}
	}

	pool := evidence.CloneAll(in)
	SortByScore(pool)

	lambda := d.lambda()
	maxSim := make([]float64, len(pool))
	taken := make([]bool, len(pool))
	out := make([]evidence.ContextSlice, 0, k)

	for len(out) < k {
		if b.Expired() {
			for i := range pool {
				if len(out) == k {
					break
				}
				if !taken[i] {
					taken[i] = true
					out = append(out, pool[i])
				}
			}
			break
		}

		best := -1
		bestVal := math.Inf(-1)
		for i := range pool {
			if taken[i] {
				continue
			}
			// Strict > keeps the earlier, more relevant candidate on ties.
			if v := relevance(pool[i].Score) - lambda*maxSim[i]; best < 0 || v > bestVal {
				best, bestVal = i, v
			}
		}
		taken[best] = true
		chosen := pool[best]
		out = append(out, chosen)

		for i := range pool {
			if taken[i] {
				continue
			}
			if sim := Cosine(pool[i].Embedding, chosen.Embedding); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return evidence.Renumber(out)
}

// relevance treats a non-finite score as no relevance.
func relevance(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

func (d Diversity) lambda() float64 {
	switch {
	case math.IsNaN(d.Lambda):
		return DefaultLambda
	case d.Lambda < 0:
		return 0
	case d.Lambda > 1:
		return 1
	}
	return d.Lambda
}

// Cosine is the cosine similarity of a and b over their common prefix. It is
// 0 when either vector is missing or has zero norm.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// SortByScore orders by Score descending, then ID ascending.
func SortByScore(list []evidence.ContextSlice) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].ID < list[j].ID
	})
}
