// Package handlers holds the HTTP handlers of the API server.
package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"ragguard/internal/budget"
	"ragguard/internal/contextutil"
	"ragguard/internal/evidence"
	"ragguard/internal/gate"
	"ragguard/internal/rag"
)

// maxRequestBytes bounds the request body.
const maxRequestBytes = 1 << 20

// RetrieveHandler handles HTTP requests for gated retrieval.
type RetrieveHandler struct {
	engine    rag.Engine
	maxBudget time.Duration
}

// NewRetrieveHandler creates a new RetrieveHandler. A request may ask for a
// budget up to maxBudget; zero disables the cap.
func NewRetrieveHandler(engine rag.Engine, maxBudget time.Duration) *RetrieveHandler {
	return &RetrieveHandler{engine: engine, maxBudget: maxBudget}
}

// RetrieveRequest represents the HTTP request payload for retrieval.
//
// swagger:model RetrieveRequest
type RetrieveRequest struct {
	// The user's question
	Query string `json:"query"`
	// Number of evidence slices wanted; 0 selects the server default
	TopK int `json:"top_k,omitempty"`
	// Time budget for this request in milliseconds; 0 selects the server default
	BudgetMs int `json:"budget_ms,omitempty"`
	// Per-request switches
	Flags rag.Flags `json:"flags,omitempty"`
}

// RetrieveResponse represents the HTTP response payload for retrieval.
//
// swagger:model RetrieveResponse
type RetrieveResponse struct {
	RequestID string `json:"request_id"`

	// Approved is true when the evidence is good enough to answer from
	Approved bool `json:"approved"`

	// ReasonCode is OK on approval, otherwise LOW_SCORE, INSUFFICIENT_SOURCES or INSUFFICIENT_EVIDENCE_LENGTH
	ReasonCode evidence.ReasonCode `json:"reason_code"`

	// Score is the gate probability in [0,1]
	Score float64 `json:"score"`

	// Composite is the blended score the gate was applied to
	Composite float64 `json:"composite"`

	// Evidence is returned on rejection too
	Evidence []evidence.ContextSlice `json:"evidence"`

	Citation gate.CitationStats `json:"citation"`

	// Stages is present when the debug query parameter is set
	Stages []StageTrace `json:"stages,omitempty"`
}

// StageTrace describes one retrieval stage of a request.
//
// swagger:model StageTrace
type StageTrace struct {
	Stage     evidence.SourceKind `json:"stage"`
	Count     int                 `json:"count"`
	ElapsedMs int64               `json:"elapsed_ms"`
	Degraded  bool                `json:"degraded"`
	Reason    string              `json:"reason,omitempty"`
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP handles HTTP requests for gated retrieval.
//
// swagger:route POST /api/retrieve retrieve
//
// # Retrieve and gate evidence
//
// Runs web, vector and knowledge-graph retrieval under a time budget, fuses
// and reranks the results and decides whether they are good enough to answer
// from. A rejection is a 200 response with approved=false.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/RetrieveRequest"
//   - in: query
//     name: debug
//     type: boolean
//     description: Include the per-stage trace
//     required: false
//
// responses:
//
//	'200':
//	  description: Gate decision with the evidence it was made on
//	  schema:
//	    "$ref": "#/definitions/RetrieveResponse"
//	'400':
//	  description: Bad request (empty query, negative top_k or budget)
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *RetrieveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RetrieveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.BudgetMs < 0 {
		writeError(w, http.StatusBadRequest, "budget_ms must not be negative")
		return
	}
	var b *budget.Budget
	if req.BudgetMs > 0 {
		b = budget.New(h.requestBudget(int64(req.BudgetMs)))
	}

	res, err := h.engine.RetrieveAndGate(ctx, rag.Request{Query: req.Query, TopK: req.TopK, Flags: req.Flags}, b)
	if err != nil {
		if errors.Is(err, rag.ErrInvalidInput) {
			logger.WarnContext(ctx, "invalid retrieval request", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve evidence")
		return
	}

	resp := RetrieveResponse{
		RequestID:  res.RequestID,
		Approved:   res.Decision.Approved,
		ReasonCode: res.Decision.Reason,
		Score:      res.Decision.Score,
		Composite:  res.Composite,
		Evidence:   res.Evidence,
		Citation:   res.Citation,
	}
	if resp.Evidence == nil {
		resp.Evidence = []evidence.ContextSlice{}
	}

	if debug := strings.ToLower(r.URL.Query().Get("debug")); debug == "true" || debug == "1" {
		resp.Stages = make([]StageTrace, len(res.Stages))
		for i, s := range res.Stages {
			resp.Stages[i] = StageTrace{
				Stage:     s.Stage,
				Count:     s.Count,
				ElapsedMs: s.Elapsed.Milliseconds(),
				Degraded:  s.Degraded,
				Reason:    s.Reason,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// maxBudgetMillis is the largest millisecond count a time.Duration holds.
const maxBudgetMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// requestBudget converts a client budget to a duration, capped at maxBudget
// when one is set. The cap is applied before converting so huge values
// cannot overflow into a negative duration.
func (h *RetrieveHandler) requestBudget(ms int64) time.Duration {
	switch {
	case h.maxBudget > 0 && ms > h.maxBudget.Milliseconds():
		return h.maxBudget
	case ms > maxBudgetMillis:
		return time.Duration(maxBudgetMillis) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}
