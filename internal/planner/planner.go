// Package planner decides which retrieval stages run for a request and how
// many results each one is asked for.
package planner

import (
	"math"

	"ragguard/internal/evidence"
)

// Hints are per-request switches that remove stages from the plan. They never
// reorder the remaining stages.
type Hints struct {
	SkipWeb    bool
	SkipVector bool
	SkipKG     bool
}

// DecideOrder returns the fixed stage order: web, vector, knowledge graph.
// The order does not depend on the query so runs stay reproducible.
func DecideOrder(query string) []evidence.SourceKind {
	return DecideOrderWithHints(query, Hints{})
}

// DecideOrderWithHints is DecideOrder with skipped stages removed.
func DecideOrderWithHints(_ string, h Hints) []evidence.SourceKind {
	order := make([]evidence.SourceKind, 0, len(evidence.RetrievalSources))
	for _, k := range evidence.RetrievalSources {
		switch {
		case k == evidence.SourceWeb && h.SkipWeb,
			k == evidence.SourceVector && h.SkipVector,
			k == evidence.SourceKG && h.SkipKG:
			continue
		}
		order = append(order, k)
	}
	return order
}

// AllocateK splits totalK across the default stage order in proportion to
// weights. See AllocateKFor.
func AllocateK(totalK int, weights evidence.Weights) map[evidence.SourceKind]int {
	return AllocateKFor(evidence.RetrievalSources, totalK, weights)
}

// AllocateKFor splits totalK across order in proportion to weights. Each
// source gets the floor of its share, WEB is raised to at least 1 when it is
// planned, and whatever is left over goes to the last (lowest priority)
// source, so the values always sum to totalK. Malformed weights are treated
// as uniform.
func AllocateKFor(order []evidence.SourceKind, totalK int, weights evidence.Weights) map[evidence.SourceKind]int {
	alloc := make(map[evidence.SourceKind]int, len(order))
	for _, k := range order {
		alloc[k] = 0
	}
	if totalK <= 0 || len(order) == 0 {
		return alloc
	}

	resolved := weights.Resolve(order)
	var sum float64
	for _, k := range order {
		sum += resolved[k]
	}

	assigned := 0
	for _, k := range order {
		n := int(math.Floor(float64(totalK) * resolved[k] / sum))
		alloc[k] = n
		assigned += n
	}

	if _, planned := alloc[evidence.SourceWeb]; planned && alloc[evidence.SourceWeb] == 0 {
		alloc[evidence.SourceWeb] = 1
		assigned++
		if assigned > totalK {
			// Take the extra slot back from the largest other share.
			var donor evidence.SourceKind
			for _, k := range order {
				if k != evidence.SourceWeb && (donor == "" || alloc[k] > alloc[donor]) {
					donor = k
				}
			}
			alloc[donor]--
			assigned--
		}
	}

	last := order[len(order)-1]
	alloc[last] += totalK - assigned
	return alloc
}
