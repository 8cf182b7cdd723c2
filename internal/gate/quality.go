// Package gate holds the two checks that decide whether retrieved evidence is
// good enough to answer from: a sigmoid quality gate over a composite score
// and a citation gate over trusted domains and evidence volume.
package gate

import (
	"math"

	"ragguard/internal/evidence"
)

// RelaxedPassProbability is the default looser threshold some callers opt
// into.
const RelaxedPassProbability = 0.5

// QualityConfig parameterises the sigmoid gate
//
//	s(x) = 1 / (1 + exp(-K (x - X0)))
//
// over the composite x = FusedWeight*fused + RerankWeight*rerank +
// AuthorityWeight*authority. Evidence passes when s(x) >= PassProbability.
type QualityConfig struct {
	K               float64
	X0              float64
	PassProbability float64
	// RelaxedPass replaces PassProbability for requests that opt into the
	// relaxed gate.
	RelaxedPass     float64

	FusedWeight     float64
	RerankWeight    float64
	AuthorityWeight float64
}

// DefaultQuality returns the strict configuration.
func DefaultQuality() QualityConfig {
	return QualityConfig{
		K:               8,
		X0:              0.72,
		PassProbability: 0.90,
		RelaxedPass:     RelaxedPassProbability,
		FusedWeight:     0.5,
		RerankWeight:    0.35,
		AuthorityWeight: 0.15,
	}
}

// Signals are the inputs to the composite score, each in [0,1].
type Signals struct {
	Fused     float64
	Rerank    float64
	Authority float64
}

// Sigmoid is the logistic function with steepness k and midpoint x0.
func Sigmoid(x, k, x0 float64) float64 {
	return 1 / (1 + math.Exp(-k*(x-x0)))
}

// Sanitized replaces unusable fields with defaults: a non-positive or
// non-finite steepness, a threshold outside (0,1], or blend weights that are
// negative or all zero.
func (c QualityConfig) Sanitized() QualityConfig {
	def := DefaultQuality()
	if !(c.K > 0) || math.IsInf(c.K, 0) {
		c.K = def.K
	}
	if math.IsNaN(c.X0) || math.IsInf(c.X0, 0) {
		c.X0 = def.X0
	}
	if !(c.PassProbability > 0 && c.PassProbability <= 1) {
		c.PassProbability = def.PassProbability
	}
	if !(c.RelaxedPass > 0 && c.RelaxedPass <= 1) {
		c.RelaxedPass = def.RelaxedPass
	}
	w := []float64{c.FusedWeight, c.RerankWeight, c.AuthorityWeight}
	var sum float64
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			sum = -1
			break
		}
		sum += v
	}
	if sum <= 0 {
		c.FusedWeight, c.RerankWeight, c.AuthorityWeight = def.FusedWeight, def.RerankWeight, def.AuthorityWeight
	}
	return c
}

// Composite blends the signals into a single score in [0,1]. Weights that do
// not sum to 1 are rescaled.
func (c QualityConfig) Composite(s Signals) float64 {
	c = c.Sanitized()
	total := c.FusedWeight + c.RerankWeight + c.AuthorityWeight
	x := c.FusedWeight*unit(s.Fused) + c.RerankWeight*unit(s.Rerank) + c.AuthorityWeight*unit(s.Authority)
	return x / total
}

// Pass maps a composite score to a decision and its sigmoid probability. It
// is monotonically non-decreasing in x.
func (c QualityConfig) Pass(x float64) (bool, float64) {
	c = c.Sanitized()
	s := Sigmoid(x, c.K, c.X0)
	return s >= c.PassProbability, s
}

// Decide runs the gate over signals.
func (c QualityConfig) Decide(s Signals) evidence.GateDecision {
	ok, p := c.Pass(c.Composite(s))
	d := evidence.GateDecision{Approved: ok, Score: p, Reason: evidence.ReasonOK}
	if !ok {
		d.Reason = evidence.ReasonLowScore
	}
	return d
}

// Relaxed returns a copy that passes at RelaxedPass.
func (c QualityConfig) Relaxed() QualityConfig {
	c.PassProbability = c.Sanitized().RelaxedPass
	return c
}

func unit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
