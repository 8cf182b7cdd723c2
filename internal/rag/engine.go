// Package rag is the retrieval entry point: it plans the stages, fans out to
// them, fuses and reranks what comes back and gates the result.
package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks ragguard/internal/rag Engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ragguard/internal/budget"
	"ragguard/internal/contextutil"
	"ragguard/internal/evidence"
	"ragguard/internal/fusion"
	"ragguard/internal/gate"
	"ragguard/internal/observer"
	"ragguard/internal/planner"
	"ragguard/internal/rerank"
	"ragguard/internal/stage"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Engine retrieves and gates evidence for a query.
type Engine interface {
	// RetrieveAndGate runs the full pipeline under b (nil selects the
	// configured request budget). It returns an error only for a malformed
	// request; backend trouble and budget exhaustion show up as fewer
	// results and a rejection.
	RetrieveAndGate(ctx context.Context, req Request, b *budget.Budget) (Result, error)
	// Close releases the worker pool.
	Close()
}

// Reranker is the precision reranking step.
type Reranker interface {
	RerankTopK(ctx context.Context, b *budget.Budget, query string, candidates []evidence.ContextSlice, topK int) []evidence.ContextSlice
}

// Options configure the engine.
type Options struct {
	// DefaultTopK is used when a request does not set TopK.
	DefaultTopK int
	// MaxTopK caps TopK.
	MaxTopK int
	// CandidatePool is the total number of results requested from the
	// stages, split by AllocateK. It is raised to TopK when smaller.
	CandidatePool int
	// RerankPool is how many diversified candidates reach the cross-encoder.
	// It is raised to TopK when smaller.
	RerankPool int
	// Budget is the default per-request time budget. Zero is unbounded.
	Budget time.Duration
	// Weights are the per-source weights for allocation and fusion.
	Weights evidence.Weights
	// Fuser merges stage results. Nil selects RRF.
	Fuser fusion.Fuser
	// Diversity is the diversity reranker.
	Diversity rerank.Diversity
	// Quality configures the sigmoid gate.
	Quality gate.QualityConfig
	// Citation configures the citation gate.
	Citation gate.CitationGate
	// Workers sizes the fan-out pool shared by all requests.
	Workers int
	// Observer receives pipeline events. Nil means no-op.
	Observer observer.Observer
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	return Options{
		DefaultTopK:   5,
		MaxTopK:       20,
		CandidatePool: 30,
		RerankPool:    10,
		Budget:        2500 * time.Millisecond,
		Weights:       evidence.DefaultWeights(),
		Diversity:     rerank.Diversity{Lambda: 0.7},
		Quality:       gate.DefaultQuality(),
		Citation:      gate.CitationGate{MinSources: gate.DefaultMinSources, MinEvidenceChars: gate.DefaultMinEvidenceChars},
		Workers:       64,
	}
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	handlers map[evidence.SourceKind]stage.Handler
	reranker Reranker
	opts     Options
	pool     *ants.Pool
	obs      observer.Observer
}

// NewEngine wires the stages and reranker into an engine. Stages missing
// from handlers are never planned.
func NewEngine(handlers []stage.Handler, reranker Reranker, opts Options) (Engine, error) {
	def := DefaultOptions()
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = def.DefaultTopK
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = def.MaxTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.Fuser == nil {
		opts.Fuser = fusion.RRF{K: fusion.DefaultRRFK, Weights: opts.Weights}
	}
	if reranker == nil {
		reranker = passThrough{}
	}

	byKind := make(map[evidence.SourceKind]stage.Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if _, dup := byKind[h.Kind()]; dup {
			return nil, fmt.Errorf("duplicate %s stage handler", h.Kind())
		}
		byKind[h.Kind()] = h
	}

	pool, err := ants.NewPool(opts.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &ragEngine{
		handlers: byKind,
		reranker: reranker,
		opts:     opts,
		pool:     pool,
		obs:      observer.OrNop(opts.Observer),
	}, nil
}

func (e *ragEngine) Close() {
	e.pool.Release()
}

func (e *ragEngine) RetrieveAndGate(ctx context.Context, req Request, b *budget.Budget) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	start := time.Now()

	requestID, ok := contextutil.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = contextutil.WithRequestID(ctx, requestID)
	}
	logger := contextutil.LoggerFromContext(ctx)

	if b == nil {
		b = budget.New(e.opts.Budget)
	}
	topK := e.clampTopK(req.TopK)

	logger.InfoContext(ctx, "retrieval started",
		"query_length", len(req.Query),
		"top_k", topK,
		"budget_ms", b.RemainingMillis(),
		"flags", req.Flags,
	)

	order := e.plan(req)
	alloc := planner.AllocateKFor(order, max(e.opts.CandidatePool, topK), e.opts.Weights)
	logger.DebugContext(ctx, "stage plan", "order", order, "allocation", alloc)

	stages := e.fanOut(ctx, b, req.Query, order, alloc)

	fused := e.opts.Fuser.Fuse(fusion.FromStages(stages))
	diverse := e.opts.Diversity.Rerank(b, fused, max(e.opts.RerankPool, topK))
	final := e.reranker.RerankTopK(ctx, b, req.Query, diverse, topK)

	logger.DebugContext(ctx, "ranking complete",
		"fused", len(fused),
		"diversified", len(diverse),
		"final", len(final),
		"fuser", e.opts.Fuser.Name(),
	)

	res := Result{
		RequestID: requestID,
		Evidence:  final,
		Stages:    e.trace(order, stages),
	}
	res.Decision, res.Composite, res.Citation = e.decide(final, req.Flags.RelaxedGate)

	elapsed := time.Since(start)
	e.obs.Decided(res.Decision, elapsed)
	logger.InfoContext(ctx, "retrieval completed",
		"evidence", len(final),
		"approved", res.Decision.Approved,
		"reason", res.Decision.Reason,
		"score", res.Decision.Score,
		"composite", res.Composite,
		"trusted_sources", res.Citation.TrustedSources,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return &ValidationError{Field: "query", Message: "cannot be empty"}
	}
	if req.TopK < 0 {
		return &ValidationError{Field: "top_k", Message: "must not be negative"}
	}
	return nil
}

func (e *ragEngine) clampTopK(k int) int {
	if k == 0 {
		k = e.opts.DefaultTopK
	}
	return min(k, e.opts.MaxTopK)
}

// plan returns the hint-adjusted order restricted to configured stages.
func (e *ragEngine) plan(req Request) []evidence.SourceKind {
	hints := planner.Hints{
		SkipWeb:    req.Flags.SkipWeb,
		SkipVector: req.Flags.SkipVector,
		SkipKG:     req.Flags.SkipKG,
	}
	var order []evidence.SourceKind
	for _, k := range planner.DecideOrderWithHints(req.Query, hints) {
		if _, ok := e.handlers[k]; ok {
			order = append(order, k)
		}
	}
	return order
}

// fanOut runs the planned stages concurrently on the shared pool and waits
// for all of them. Each stage bounds itself by the budget. A stage the pool
// cannot take is reported as degraded rather than queued.
func (e *ragEngine) fanOut(ctx context.Context, b *budget.Budget, query string, order []evidence.SourceKind, alloc map[evidence.SourceKind]int) []evidence.StageResult {
	results := make([]evidence.StageResult, len(order))
	var wg sync.WaitGroup

	for i, kind := range order {
		h := e.handlers[kind]
		k := alloc[kind]

		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			results[i] = h.Retrieve(ctx, b, query, k)
		})
		if err != nil {
			wg.Done()
			results[i] = evidence.StageResult{Stage: kind, Degraded: true, Reason: evidence.ReasonPoolOverload}
			if !errors.Is(err, ants.ErrPoolOverload) {
				results[i].Reason = evidence.ReasonBackendError
			}
			e.obs.StageFinished(results[i])
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "stage not scheduled", "stage", kind, "error", err)
		}
	}
	wg.Wait()
	return results
}

// trace lists every retrieval stage: the ones that ran, in plan order,
// followed by the ones that were skipped.
func (e *ragEngine) trace(order []evidence.SourceKind, ran []evidence.StageResult) []evidence.StageResult {
	out := make([]evidence.StageResult, 0, len(evidence.RetrievalSources))
	out = append(out, ran...)
	planned := make(map[evidence.SourceKind]struct{}, len(order))
	for _, k := range order {
		planned[k] = struct{}{}
	}
	for _, k := range evidence.RetrievalSources {
		if _, ok := planned[k]; !ok {
			out = append(out, evidence.StageResult{Stage: k, Reason: evidence.ReasonDisabled})
		}
	}
	return out
}

// decide runs the quality gate and then, if it passes, the citation gate.
func (e *ragEngine) decide(final []evidence.ContextSlice, relaxed bool) (evidence.GateDecision, float64, gate.CitationStats) {
	quality := e.opts.Quality
	if relaxed {
		quality = quality.Relaxed()
	}

	signals := gate.Signals{Authority: e.opts.Citation.Authority(final)}
	if len(final) > 0 {
		var fused, reranked float64
		rerankedAll := true
		for _, s := range final {
			fused += s.FusedScore
			reranked += s.RerankScore
			if s.Source != evidence.SourceRerank {
				rerankedAll = false
			}
		}
		n := float64(len(final))
		signals.Fused = fused / n
		signals.Rerank = signals.Fused
		if rerankedAll {
			signals.Rerank = reranked / n
		}
	}

	composite := quality.Composite(signals)
	decision := quality.Decide(signals)

	reason, stats := e.opts.Citation.Evaluate(final)
	if decision.Approved && reason != evidence.ReasonOK {
		decision.Approved = false
		decision.Reason = reason
	}
	return decision, composite, stats
}

// passThrough keeps the diversified order when no cross-encoder is wired.
type passThrough struct{}

func (passThrough) RerankTopK(_ context.Context, _ *budget.Budget, _ string, candidates []evidence.ContextSlice, topK int) []evidence.ContextSlice {
	return evidence.TakeTop(candidates, topK)
}
