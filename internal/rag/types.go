package rag

import (
	"ragguard/internal/evidence"
	"ragguard/internal/gate"
)

// Flags are per-request switches. They are passed explicitly with each
// request and never stored on the engine.
type Flags struct {
	// SkipWeb, SkipVector and SkipKG remove a stage from the plan.
	SkipWeb    bool `json:"skip_web,omitempty"`
	SkipVector bool `json:"skip_vector,omitempty"`
	SkipKG     bool `json:"skip_kg,omitempty"`
	// RelaxedGate lowers the quality gate threshold to the relaxed pass
	// probability.
	RelaxedGate bool `json:"relaxed_gate,omitempty"`
}

// Request is one retrieval request.
type Request struct {
	// Query is the user's question.
	Query string `json:"query"`
	// TopK is the number of evidence slices wanted. Zero selects the
	// configured default.
	TopK int `json:"top_k,omitempty"`
	// Flags adjust the plan and the gate for this request only.
	Flags Flags `json:"flags,omitempty"`
}

// Result is the outcome of RetrieveAndGate.
type Result struct {
	// RequestID identifies the request in logs.
	RequestID string `json:"request_id"`
	// Evidence is the final ranked evidence, possibly empty. It is returned
	// even when the decision is a rejection.
	Evidence []evidence.ContextSlice `json:"evidence"`
	// Decision is the gate verdict.
	Decision evidence.GateDecision `json:"decision"`
	// Composite is the blended score fed to the quality gate.
	Composite float64 `json:"composite"`
	// Citation holds what the citation gate measured.
	Citation gate.CitationStats `json:"citation"`
	// Stages traces each retrieval stage in plan order.
	Stages []evidence.StageResult `json:"stages"`
}
