package evidence

// ReasonCode explains a gate decision.
type ReasonCode string

const (
	ReasonOK                         ReasonCode = "OK"
	ReasonLowScore                   ReasonCode = "LOW_SCORE"
	ReasonInsufficientSources        ReasonCode = "INSUFFICIENT_SOURCES"
	ReasonInsufficientEvidenceLength ReasonCode = "INSUFFICIENT_EVIDENCE_LENGTH"
)

// GateDecision is the terminal verdict of a request. A rejection is a normal
// outcome: the caller should fall back instead of generating an answer.
type GateDecision struct {
	// Approved is true when the evidence is good enough to answer from.
	Approved bool `json:"approved"`
	// Score is the sigmoid probability in [0,1].
	Score float64 `json:"score"`
	// Reason is OK on approval, otherwise the first failed check.
	Reason ReasonCode `json:"reason_code"`
}
