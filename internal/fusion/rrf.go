package fusion

import "ragguard/internal/evidence"

// DefaultRRFK is the usual reciprocal rank constant.
const DefaultRRFK = 60

// RRF is weighted reciprocal rank fusion:
//
//	score(d) = Σ_source weight(source) / (K + rank_source(d))
//
// Ranks are list positions, so stale Rank fields on the input do not matter.
// Scores are divided by the best attainable score (rank 1 in every list) so
// the fused score lies in [0,1].
type RRF struct {
	K       float64
	Weights evidence.Weights
}

func (RRF) Name() string { return ModeRRF }

func (f RRF) Fuse(lists []RankedList) []evidence.ContextSlice {
	if len(lists) == 0 {
		return nil
	}
	k := f.K
	if k <= 0 {
		k = DefaultRRFK
	}
	weights := f.Weights.Resolve(listKinds(lists))

	byID, ids := collect(lists)
	var best float64
	for _, l := range lists {
		best += weights[l.Source] / (k + 1)
	}

	for _, id := range ids {
		c := byID[id]
		var score float64
		for li, rank := range c.perList {
			if rank == 0 {
				continue
			}
			score += weights[lists[li].Source] / (k + float64(rank))
		}
		if best > 0 {
			score /= best
		}
		c.score = score
	}
	return rankCandidates(byID, ids)
}
