// Package stage runs the retrieval stages (web, vector, knowledge graph)
// against their backends under budget, concurrency and timeout limits.
//
// A stage never fails the request: backend errors, saturation and budget
// exhaustion all come back as an empty, degraded StageResult.
package stage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_backends.go -package=mocks ragguard/internal/stage WebSearcher,VectorSearcher,GraphLookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragguard/internal/budget"
	"ragguard/internal/contextutil"
	"ragguard/internal/evidence"
	"ragguard/internal/limiter"
	"ragguard/internal/observer"
	"ragguard/internal/singleflight"
)

// WebSearcher is a web search backend. It may be slow or unreliable.
type WebSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error)
}

// VectorSearcher is a nearest-neighbour search over an embedded corpus.
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error)
}

// GraphLookup resolves a query against a knowledge graph.
type GraphLookup interface {
	Lookup(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error)
}

// Handler is one retrieval stage.
type Handler interface {
	Kind() evidence.SourceKind
	Retrieve(ctx context.Context, b *budget.Budget, query string, topK int) evidence.StageResult
}

// Options bound a stage's use of its backend.
type Options struct {
	// Concurrency is the number of backend calls allowed in flight across
	// all requests.
	Concurrency int
	// Timeout caps one backend call. The budget's remaining time caps it
	// further.
	Timeout time.Duration
	// AcquireWait is how long to wait for a concurrency permit. Zero makes
	// the stage best-effort: it degrades immediately when saturated.
	AcquireWait time.Duration
	// HedgeDelay enables a single duplicate request when the first has not
	// answered within the delay. Only the web stage honours it.
	HedgeDelay time.Duration
	// Observer receives stage events. Nil means no-op.
	Observer observer.Observer
}

type fetchFunc func(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error)

// runner holds the behaviour shared by all stages.
type runner struct {
	kind    evidence.SourceKind
	fetch   fetchFunc
	limiter *limiter.Limiter
	opts    Options
	obs     observer.Observer
	flights singleflight.Group[[]evidence.ContextSlice]
}

func newRunner(kind evidence.SourceKind, fetch fetchFunc, opts Options) *runner {
	return &runner{
		kind:    kind,
		fetch:   fetch,
		limiter: limiter.New(opts.Concurrency),
		opts:    opts,
		obs:     observer.OrNop(opts.Observer),
	}
}

func (r *runner) Kind() evidence.SourceKind { return r.kind }

func (r *runner) Retrieve(ctx context.Context, b *budget.Budget, query string, topK int) (res evidence.StageResult) {
	start := time.Now()
	res.Stage = r.kind
	logger := contextutil.LoggerFromContext(ctx)

	defer func() {
		res.Elapsed = time.Since(start)
		res.Count = len(res.Slices)
		r.obs.StageFinished(res)
		logger.DebugContext(ctx, "stage finished",
			"stage", r.kind,
			"count", res.Count,
			"degraded", res.Degraded,
			"reason", res.Reason,
			"elapsed_ms", res.Elapsed.Milliseconds(),
		)
	}()

	if topK <= 0 {
		return res
	}
	if b.Expired() {
		res.Degraded, res.Reason = true, evidence.ReasonBudgetExpired
		return res
	}

	waitCtx, cancel := b.Context(ctx)
	defer cancel()

	key := fmt.Sprintf("%s|%d|%s", r.kind, topK, NormalizeQuery(query))
	slices, shared, err := r.flights.Do(waitCtx, key, func(fctx context.Context) ([]evidence.ContextSlice, error) {
		return r.call(fctx, query, topK)
	})
	if err != nil {
		res.Degraded, res.Reason = true, r.classify(b, err)
		logger.WarnContext(ctx, "stage degraded",
			"stage", r.kind,
			"reason", res.Reason,
			"error", err,
		)
		return res
	}
	if shared {
		logger.DebugContext(ctx, "stage result shared with concurrent request", "stage", r.kind)
	}

	res.Slices = finalize(r.kind, slices, topK)
	return res
}

// call runs inside the single flight: one permit and one backend round trip
// for every caller that joined. It is bounded by the stage timeout only;
// each caller's budget bounds that caller's wait in Retrieve.
func (r *runner) call(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error) {
	if err := r.limiter.Acquire(ctx, r.opts.AcquireWait); err != nil {
		return nil, err
	}
	defer r.limiter.Release()

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	slices, err := r.fetch(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", r.kind, err)
	}
	return slices, nil
}

func (r *runner) classify(b *budget.Budget, err error) string {
	switch {
	case b.Expired():
		return evidence.ReasonBudgetExpired
	case errors.Is(err, limiter.ErrSaturated):
		return evidence.ReasonSaturated
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return evidence.ReasonTimeout
	default:
		return evidence.ReasonBackendError
	}
}

// finalize copies the shared backend output and makes it a well-formed
// ranked list for kind: at most topK entries, unique non-empty IDs, ranks
// 1..N.
func finalize(kind evidence.SourceKind, in []evidence.ContextSlice, topK int) []evidence.ContextSlice {
	out := make([]evidence.ContextSlice, 0, min(len(in), topK))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if len(out) == topK {
			break
		}
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}

		c := s.Clone()
		c.Source = kind
		if c.Origin == "" {
			c.Origin = kind
		}
		out = append(out, c)
	}
	return evidence.Renumber(out)
}

// NormalizeQuery lower-cases q and collapses whitespace so trivially
// different spellings of a query share a single flight.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
