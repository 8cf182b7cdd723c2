package fusion

import (
	"math"

	"ragguard/internal/evidence"
)

// geometricFloor keeps ln(0) out of the geometric mean.
const geometricFloor = 1e-9

// PowerMean returns the weighted power mean of scores:
//
//	p != 0: ((Σ w_i s_i^p) / Σ w_i)^(1/p)
//	p == 0: exp(Σ w_i ln(max(ε, s_i)) / Σ w_i)
//
// Weights default to uniform when nil, of a different length than scores, or
// malformed. Negative and NaN scores count as 0.
func PowerMean(scores []float64, p float64, weights []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	w := weights
	if !validWeights(w, len(scores)) {
		w = make([]float64, len(scores))
		for i := range w {
			w[i] = 1
		}
	}

	var wsum, acc float64
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 {
			s = 0
		}
		wsum += w[i]
		if p == 0 {
			acc += w[i] * math.Log(math.Max(geometricFloor, s))
		} else {
			acc += w[i] * math.Pow(s, p)
		}
	}
	if p == 0 {
		return math.Exp(acc / wsum)
	}
	return math.Pow(acc/wsum, 1/p)
}

func validWeights(w []float64, n int) bool {
	if len(w) != n {
		return false
	}
	var sum float64
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
		sum += v
	}
	return sum > 0
}

// WeightedPowerMean fuses lists by min-max normalising each list's scores to
// [0,1] and combining a document's per-source scores with PowerMean. A
// document missing from a list scores 0 for that source.
type WeightedPowerMean struct {
	// P is the power mean exponent: 1 arithmetic, 0 geometric, -1 harmonic.
	P       float64
	Weights evidence.Weights
}

func (WeightedPowerMean) Name() string { return ModePowerMean }

func (f WeightedPowerMean) Fuse(lists []RankedList) []evidence.ContextSlice {
	if len(lists) == 0 {
		return nil
	}
	resolved := f.Weights.Resolve(listKinds(lists))
	weights := make([]float64, len(lists))
	normalized := make([]map[string]float64, len(lists))
	for i, l := range lists {
		weights[i] = resolved[l.Source]
		normalized[i] = minMax(l.Items)
	}

	byID, ids := collect(lists)
	scores := make([]float64, len(lists))
	for _, id := range ids {
		c := byID[id]
		for li := range lists {
			scores[li] = 0
			if c.perList[li] != 0 {
				scores[li] = normalized[li][id]
			}
		}
		c.score = PowerMean(scores, f.P, weights)
	}
	return rankCandidates(byID, ids)
}

// minMax maps each item's score into [0,1] within its list. A list whose
// scores are all equal maps every item to 1.
func minMax(items []evidence.ContextSlice) map[string]float64 {
	out := make(map[string]float64, len(items))
	if len(items) == 0 {
		return out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, it := range items {
		lo = math.Min(lo, it.Score)
		hi = math.Max(hi, it.Score)
	}
	for _, it := range items {
		if _, ok := out[it.ID]; ok {
			continue
		}
		if hi == lo {
			out[it.ID] = 1
			continue
		}
		out[it.ID] = (it.Score - lo) / (hi - lo)
	}
	return out
}
