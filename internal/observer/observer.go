// Package observer defines the optional event sink the pipeline reports to.
package observer

import (
	"time"

	"ragguard/internal/evidence"
)

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// StageFinished is called once per retrieval stage.
	StageFinished(result evidence.StageResult)
	// HedgeIssued is called when a duplicate backend request is sent.
	HedgeIssued(stage evidence.SourceKind)
	// RerankSkipped is called when the cross-encoder falls back to the
	// unscored ordering.
	RerankSkipped(reason string)
	// Decided is called with the final verdict and total request time.
	Decided(decision evidence.GateDecision, elapsed time.Duration)
}

// Nop discards every event.
type Nop struct{}

func (Nop) StageFinished(evidence.StageResult) {}
func (Nop) HedgeIssued(evidence.SourceKind) {}
func (Nop) RerankSkipped(string) {}
func (Nop) Decided(evidence.GateDecision, time.Duration) {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
