package gate

import (
	"unicode/utf8"

	"ragguard/internal/evidence"
)

// Citation gate defaults.
const (
	DefaultMinSources       = 2
	DefaultMinEvidenceChars = 400
)

// CitationGate requires evidence from enough distinct trusted hosts and
// enough text overall.
type CitationGate struct {
	Allowlist        Allowlist
	MinSources       int
	MinEvidenceChars int
}

// CitationStats describes a piece of evidence as the gate sees it.
type CitationStats struct {
	// TrustedSources counts distinct allowlisted hosts.
	TrustedSources int `json:"trusted_sources"`
	// TrustedSlices counts slices whose host is allowlisted.
	TrustedSlices int `json:"trusted_slices"`
	// TotalChars is the snippet length in characters across all evidence.
	TotalChars int `json:"total_chars"`
}

// Approve reports whether list passes the gate. Empty evidence never does.
func (g CitationGate) Approve(list []evidence.ContextSlice) bool {
	reason, _ := g.Evaluate(list)
	return reason == evidence.ReasonOK
}

// Evaluate returns the first failed check (or OK) and the measured stats.
// Source count is checked before length.
func (g CitationGate) Evaluate(list []evidence.ContextSlice) (evidence.ReasonCode, CitationStats) {
	stats := g.Stats(list)
	if len(list) == 0 {
		return evidence.ReasonInsufficientSources, stats
	}
	if stats.TrustedSources < g.minSources() {
		return evidence.ReasonInsufficientSources, stats
	}
	if stats.TotalChars < g.minChars() {
		return evidence.ReasonInsufficientEvidenceLength, stats
	}
	return evidence.ReasonOK, stats
}

// Stats measures list without judging it.
func (g CitationGate) Stats(list []evidence.ContextSlice) CitationStats {
	var stats CitationStats
	hosts := make(map[string]struct{})
	for _, s := range list {
		stats.TotalChars += utf8.RuneCountInString(s.Snippet)
		host := evidence.Host(s.URL)
		if host == "" || g.Allowlist == nil || !g.Allowlist.Allows(host) {
			continue
		}
		stats.TrustedSlices++
		hosts[host] = struct{}{}
	}
	stats.TrustedSources = len(hosts)
	return stats
}

// Authority is the share of slices from trusted hosts, used as the authority
// signal of the quality gate.
func (g CitationGate) Authority(list []evidence.ContextSlice) float64 {
	if len(list) == 0 {
		return 0
	}
	return float64(g.Stats(list).TrustedSlices) / float64(len(list))
}

func (g CitationGate) minSources() int {
	if g.MinSources <= 0 {
		return DefaultMinSources
	}
	return g.MinSources
}

func (g CitationGate) minChars() int {
	if g.MinEvidenceChars <= 0 {
		return DefaultMinEvidenceChars
	}
	return g.MinEvidenceChars
}
