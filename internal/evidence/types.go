// Package evidence defines the data shared by every retrieval stage: the
// candidate slices, per-stage results, source weights and gate decisions.
package evidence

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies where a slice came from or which step last ranked it.
type SourceKind string

const (
	SourceWeb    SourceKind = "WEB"
	SourceVector SourceKind = "VECTOR"
	SourceKG     SourceKind = "KG"
	SourceFusion SourceKind = "FUSION"
	SourceRerank SourceKind = "RERANK"
)

// RetrievalSources are the kinds that a retrieval stage can produce, in
// default priority order.
var RetrievalSources = []SourceKind{SourceWeb, SourceVector, SourceKG}

func (k SourceKind) String() string { return string(k) }

// IsRetrieval reports whether k is one of the retrieval stage kinds.
func (k SourceKind) IsRetrieval() bool {
	switch k {
	case SourceWeb, SourceVector, SourceKG:
		return true
	}
	return false
}

// ParseSourceKind parses a case-insensitive source name.
func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case SourceWeb, SourceVector, SourceKG, SourceFusion, SourceRerank:
		return k, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// ContextSlice is one candidate piece of evidence.
type ContextSlice struct {
	// ID is unique within a ranked list. Web slices use the canonical URL.
	ID string `json:"id"`
	// Source is the stage or step that produced the current ranking.
	Source SourceKind `json:"source"`
	// Origin is the retrieval stage the slice was first found by. It does not
	// change when fusion or reranking re-stamp Source.
	Origin SourceKind `json:"origin"`
	// Title is a short human-readable label.
	Title string `json:"title,omitempty"`
	// Snippet is the evidence text.
	Snippet string `json:"snippet"`
	// URL is the provenance link; its host is checked by the domain gate.
	URL string `json:"url,omitempty"`
	// Score is the relevance score assigned by the producing step.
	Score float64 `json:"score"`
	// FusedScore is set by rank fusion.
	FusedScore float64 `json:"fused_score,omitempty"`
	// RerankScore is set by the cross-encoder.
	RerankScore float64 `json:"rerank_score,omitempty"`
	// Embedding is optional and used for diversity similarity.
	Embedding []float32 `json:"-"`
	// Rank is 1-based within the list it belongs to.
	Rank int `json:"rank"`
}

// Clone returns a deep copy of the slice.
func (c ContextSlice) Clone() ContextSlice {
	if c.Embedding != nil {
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		c.Embedding = emb
	}
	return c
}

// CloneAll deep-copies a list.
func CloneAll(in []ContextSlice) []ContextSlice {
	if in == nil {
		return nil
	}
	out := make([]ContextSlice, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// Renumber assigns ranks 1..len(list) in place and returns the list.
func Renumber(list []ContextSlice) []ContextSlice {
	for i := range list {
		list[i].Rank = i + 1
	}
	return list
}

// TakeTop returns a copy of the first k elements with ranks renumbered.
func TakeTop(list []ContextSlice, k int) []ContextSlice {
	if k < 0 {
		k = 0
	}
	if k > len(list) {
		k = len(list)
	}
	return Renumber(CloneAll(list[:k]))
}

// StageResult is the outcome of one retrieval stage.
type StageResult struct {
	// Stage is the retrieval kind that produced the result.
	Stage SourceKind `json:"stage"`
	// Slices are the candidates in rank order.
	Slices []ContextSlice `json:"-"`
	// Count mirrors len(Slices) for reporting.
	Count int `json:"count"`
	// Elapsed is wall-clock time spent in the stage.
	Elapsed time.Duration `json:"elapsed"`
	// Degraded is set when the stage returned less than it normally would
	// (budget, saturation, timeout or backend failure).
	Degraded bool `json:"degraded"`
	// Reason explains a degraded result.
	Reason string `json:"reason,omitempty"`
}

// Degrade reasons attached to StageResult.
const (
	ReasonBudgetExpired = "budget_expired"
	ReasonSaturated     = "saturated"
	ReasonTimeout       = "timeout"
	ReasonBackendError  = "backend_error"
	ReasonDisabled      = "disabled"
	ReasonPoolOverload  = "pool_overload"
)
