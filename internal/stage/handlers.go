package stage

import (
	"context"
	"time"

	"ragguard/internal/contextutil"
	"ragguard/internal/evidence"
	"ragguard/internal/limiter"
	"ragguard/internal/observer"
)

// Web is the web search stage. It hedges slow backend calls.
type Web struct {
	*runner
}

// NewWeb builds the web stage over search.
func NewWeb(search WebSearcher, opts Options) *Web {
	h := &hedger{search: search, delay: opts.HedgeDelay, obs: observer.OrNop(opts.Observer)}
	r := newRunner(evidence.SourceWeb, h.fetch, opts)
	h.limiter = r.limiter
	return &Web{runner: r}
}

type hedger struct {
	search  WebSearcher
	delay   time.Duration
	obs     observer.Observer
	limiter *limiter.Limiter
}

type outcome struct {
	slices []evidence.ContextSlice
	err    error
}

// fetch calls the backend and, if it has not answered after delay, sends at
// most one duplicate. The duplicate needs its own limiter permit and is
// skipped when none is free. The first successful answer wins and the other
// call is cancelled. An error only ends the fetch once no call is outstanding.
func (h *hedger) fetch(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error) {
	if h.delay <= 0 {
		return h.search.Search(ctx, query, topK)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, 2)
	launch := func(release func()) {
		go func() {
			defer release()
			s, err := h.search.Search(ctx, query, topK)
			results <- outcome{slices: s, err: err}
		}()
	}

	launch(func() {})
	outstanding := 1
	hedged := false
	timer := time.NewTimer(h.delay)
	defer timer.Stop()

	var firstErr error
	for {
		select {
		case <-timer.C:
			if hedged {
				continue
			}
			hedged = true
			logger := contextutil.LoggerFromContext(ctx)
			if h.limiter != nil && !h.limiter.TryAcquire() {
				logger.DebugContext(ctx, "web search hedge skipped, backend saturated")
				continue
			}
			outstanding++
			h.obs.HedgeIssued(evidence.SourceWeb)
			logger.DebugContext(ctx, "hedging web search", "delay_ms", h.delay.Milliseconds())
			launch(h.release)
		case o := <-results:
			outstanding--
			if o.err == nil {
				return o.slices, nil
			}
			if firstErr == nil {
				firstErr = o.err
			}
			if outstanding == 0 {
				return nil, firstErr
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (h *hedger) release() {
	if h.limiter != nil {
		h.limiter.Release()
	}
}

// Vector is the vector search stage.
type Vector struct {
	*runner
}

// NewVector builds the vector stage over search.
func NewVector(search VectorSearcher, opts Options) *Vector {
	return &Vector{runner: newRunner(evidence.SourceVector, search.Search, opts)}
}

// KG is the knowledge-graph stage. With a zero AcquireWait it is best-effort.
type KG struct {
	*runner
}

// NewKG builds the knowledge-graph stage over lookup.
func NewKG(lookup GraphLookup, opts Options) *KG {
	return &KG{runner: newRunner(evidence.SourceKG, lookup.Lookup, opts)}
}
