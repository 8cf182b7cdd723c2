package evidence

import "math"

// Weights assigns each source a weight in [0,1]. Weights need not sum to 1.
type Weights map[SourceKind]float64

// DefaultWeights favours live web results, then the curated vector index.
func DefaultWeights() Weights {
	return Weights{SourceWeb: 0.5, SourceVector: 0.3, SourceKG: 0.2}
}

// Valid reports whether every weight is finite and within [0,1] and at least
// one of kinds has a positive weight.
func (w Weights) Valid(kinds []SourceKind) bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return false
		}
	}
	var sum float64
	for _, k := range kinds {
		sum += w[k]
	}
	return sum > 0
}

// Resolve returns the weight to use for each of kinds. A malformed weight
// set falls back to uniform 1.0 rather than failing.
func (w Weights) Resolve(kinds []SourceKind) map[SourceKind]float64 {
	out := make(map[SourceKind]float64, len(kinds))
	if !w.Valid(kinds) {
		for _, k := range kinds {
			out[k] = 1
		}
		return out
	}
	for _, k := range kinds {
		out[k] = w[k]
	}
	return out
}
