// Package fusion merges the ranked lists returned by the retrieval stages
// into a single ranked list.
//
// Fusers are pure: no I/O, no shared state, and the same input always gives
// the same output.
package fusion

import (
	"fmt"
	"sort"
	"strings"

	"ragguard/internal/evidence"
)

// RankedList is one stage's output in rank order.
type RankedList struct {
	Source evidence.SourceKind
	Items  []evidence.ContextSlice
}

// Fuser combines ranked lists into one.
type Fuser interface {
	Name() string
	Fuse(lists []RankedList) []evidence.ContextSlice
}

// Modes accepted by New.
const (
	ModeRRF       = "rrf"
	ModePowerMean = "wpm"
)

// New returns the fuser for mode. An empty mode selects RRF.
func New(mode string, rrfK, p float64, weights evidence.Weights) (Fuser, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeRRF:
		return RRF{K: rrfK, Weights: weights}, nil
	case ModePowerMean, "power_mean", "powermean":
		return WeightedPowerMean{P: p, Weights: weights}, nil
	default:
		return nil, fmt.Errorf("unknown fusion mode %q", mode)
	}
}

// FromStages turns stage results into ranked lists, skipping empty ones.
func FromStages(results []evidence.StageResult) []RankedList {
	lists := make([]RankedList, 0, len(results))
	for _, r := range results {
		if len(r.Slices) == 0 {
			continue
		}
		lists = append(lists, RankedList{Source: r.Stage, Items: r.Slices})
	}
	return lists
}

// candidate accumulates everything known about one document across lists.
type candidate struct {
	slice    evidence.ContextSlice
	bestRank int
	score    float64
	// perList holds the document's position (1-based) in each list, 0 when
	// absent.
	perList []int
}

// collect indexes lists by document ID. The representative slice for a
// document is taken from the list where it ranks best; an embedding missing
// there is borrowed from any other list.
func collect(lists []RankedList) (map[string]*candidate, []string) {
	byID := make(map[string]*candidate)
	var order []string

	for li, list := range lists {
		seen := make(map[string]struct{}, len(list.Items))
		for pos, item := range list.Items {
			if item.ID == "" {
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			rank := pos + 1

			c, ok := byID[item.ID]
			if !ok {
				c = &candidate{bestRank: rank, perList: make([]int, len(lists))}
				c.slice = representative(item, list.Source)
				byID[item.ID] = c
				order = append(order, item.ID)
			} else if rank < c.bestRank {
				emb := c.slice.Embedding
				c.slice = representative(item, list.Source)
				c.bestRank = rank
				if len(c.slice.Embedding) == 0 {
					c.slice.Embedding = emb
				}
			}
			if len(c.slice.Embedding) == 0 && len(item.Embedding) > 0 {
				c.slice.Embedding = append([]float32(nil), item.Embedding...)
			}
			c.perList[li] = rank
		}
	}
	return byID, order
}

func representative(item evidence.ContextSlice, source evidence.SourceKind) evidence.ContextSlice {
	s := item.Clone()
	if s.Origin == "" {
		s.Origin = source
	}
	return s
}

// rankCandidates sorts by fused score, then best single-list rank, then ID,
// and emits FUSION slices with fresh ranks.
func rankCandidates(byID map[string]*candidate, ids []string) []evidence.ContextSlice {
	cands := make([]*candidate, 0, len(ids))
	for _, id := range ids {
		cands = append(cands, byID[id])
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.bestRank != b.bestRank {
			return a.bestRank < b.bestRank
		}
		return a.slice.ID < b.slice.ID
	})

	out := make([]evidence.ContextSlice, len(cands))
	for i, c := range cands {
		s := c.slice
		s.Source = evidence.SourceFusion
		s.Score = c.score
		s.FusedScore = c.score
		out[i] = s
	}
	return evidence.Renumber(out)
}

func listKinds(lists []RankedList) []evidence.SourceKind {
	kinds := make([]evidence.SourceKind, 0, len(lists))
	seen := make(map[evidence.SourceKind]struct{}, len(lists))
	for _, l := range lists {
		if _, ok := seen[l.Source]; ok {
			continue
		}
		seen[l.Source] = struct{}{}
		kinds = append(kinds, l.Source)
	}
	return kinds
}
