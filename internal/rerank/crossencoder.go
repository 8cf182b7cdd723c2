package rerank

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_scorer.go -package=mocks ragguard/internal/rerank Scorer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"ragguard/internal/budget"
	"ragguard/internal/contextutil"
	"ragguard/internal/evidence"
	"ragguard/internal/limiter"
	"ragguard/internal/observer"
)

// Document is the text a scorer sees for one candidate.
type Document struct {
	Title string
	Text  string
}

// Scorer rates each document's relevance to query. The result has one score
// per document, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, docs []Document) ([]float64, error)
}

// Reasons reported when the cross-encoder falls back to the input order.
const (
	SkipBudget    = "budget_expired"
	SkipSaturated = "saturated"
	SkipError     = "scorer_error"
)

// CrossEncoder rescores candidates with a pairwise relevance model. It shares
// one limiter across all requests and never waits for a permit: when the
// model is busy, out of budget or failing, the caller gets the unscored top-K.
type CrossEncoder struct {
	scorer  Scorer
	limiter *limiter.Limiter
	timeout time.Duration
	obs     observer.Observer
}

// NewCrossEncoder builds a reranker around scorer. l is the process-wide
// limiter; timeout bounds one scoring call and is further capped by the
// request budget.
func NewCrossEncoder(scorer Scorer, l *limiter.Limiter, timeout time.Duration, obs observer.Observer) *CrossEncoder {
	if l == nil {
		l = limiter.New(4)
	}
	return &CrossEncoder{
		scorer:  scorer,
		limiter: l,
		timeout: timeout,
		obs:     observer.OrNop(obs),
	}
}

// RerankTopK returns at most topK candidates. On success they are ordered by
// rerank score descending, ID ascending, with Source RERANK and ranks 1..N.
// On any fallback the input's own first topK entries come back in their
// original order.
func (c *CrossEncoder) RerankTopK(ctx context.Context, b *budget.Budget, query string, candidates []evidence.ContextSlice, topK int) []evidence.ContextSlice {
	logger := contextutil.LoggerFromContext(ctx)
	if len(candidates) == 0 || topK <= 0 {
		return []evidence.ContextSlice{}
	}

	if b.Expired() {
		return c.skip(ctx, SkipBudget, candidates, topK, nil)
	}
	if !c.limiter.TryAcquire() {
		return c.skip(ctx, SkipSaturated, candidates, topK, nil)
	}
	defer c.limiter.Release()

	callCtx, cancel := b.Context(ctx)
	defer cancel()
	if timeout := b.Cap(c.timeout); timeout != budget.Unlimited {
		var cancelTimeout context.CancelFunc
		callCtx, cancelTimeout = context.WithTimeout(callCtx, timeout)
		defer cancelTimeout()
	}

	docs := make([]Document, len(candidates))
	for i, cand := range candidates {
		docs[i] = Document{Title: cand.Title, Text: cand.Snippet}
	}

	start := time.Now()
	scores, err := c.scorer.Score(callCtx, query, docs)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("scorer returned %d scores for %d documents", len(scores), len(candidates))
	}
	if err != nil {
		reason := SkipError
		if b.Expired() {
			reason = SkipBudget
		}
		return c.skip(ctx, reason, candidates, topK, err)
	}

	out := evidence.CloneAll(candidates)
	for i := range out {
		s := scores[i]
		if math.IsNaN(s) {
			s = 0
		}
		out[i].RerankScore = s
		out[i].Score = s
		out[i].Source = evidence.SourceRerank
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}

	logger.DebugContext(ctx, "cross-encoder rerank complete",
		"candidates", len(candidates),
		"returned", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return evidence.Renumber(out)
}

func (c *CrossEncoder) skip(ctx context.Context, reason string, candidates []evidence.ContextSlice, topK int, err error) []evidence.ContextSlice {
	c.obs.RerankSkipped(reason)
	logger := contextutil.LoggerFromContext(ctx)
	if err != nil {
		logger.WarnContext(ctx, "cross-encoder rerank skipped", "reason", reason, "error", err)
	} else {
		logger.DebugContext(ctx, "cross-encoder rerank skipped", "reason", reason)
	}
	return evidence.TakeTop(candidates, topK)
}
