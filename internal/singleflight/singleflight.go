// Package singleflight collapses concurrent identical calls into one
// execution. It wraps golang.org/x/sync/singleflight with typed results,
// per-caller context cancellation, panic capture and reentrancy detection.
package singleflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrReentrant is returned when a computation calls Do with its own key.
	ErrReentrant = errors.New("singleflight: reentrant call for in-flight key")
	// ErrPanicked wraps a panic recovered from the shared computation.
	ErrPanicked = errors.New("singleflight: computation panicked")
)

// Group deduplicates calls by key. The zero value is ready to use.
//
// The value handed back to callers is shared between every caller of the same
// flight; slices and maps must be copied before they are modified.
type Group[T any] struct {
	g singleflight.Group

	// Timeout bounds a single shared computation. Zero means no bound beyond
	// what fn enforces itself.
	Timeout time.Duration
}

type flightKey struct{}

type flightNode struct {
	key    string
	parent *flightNode
}

// Do runs fn once for all concurrent callers with the same key. The returned
// shared flag reports whether the result was delivered to more than one
// caller.
//
// fn runs on a context detached from the caller's cancellation so one caller
// giving up does not fail the others; ctx only bounds how long this caller
// waits. Once fn settles the key is forgotten and a later call starts a fresh
// execution.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	if inFlight(ctx, key) {
		return zero, false, fmt.Errorf("%w: %q", ErrReentrant, key)
	}

	runCtx := context.WithValue(context.WithoutCancel(ctx), flightKey{}, &flightNode{key: key, parent: nodeFrom(ctx)})
	timeout := g.Timeout

	ch := g.g.DoChan(key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrPanicked, r)
			}
		}()
		c := runCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			c, cancel = context.WithTimeout(runCtx, timeout)
			defer cancel()
		}
		val, ferr := fn(c)
		return val, ferr
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		v, _ := res.Val.(T)
		return v, res.Shared, nil
	}
}

// Forget drops the in-flight registration for key so the next call starts a
// new execution even while the current one is still running.
func (g *Group[T]) Forget(key string) {
	g.g.Forget(key)
}

func nodeFrom(ctx context.Context) *flightNode {
	n, _ := ctx.Value(flightKey{}).(*flightNode)
	return n
}

func inFlight(ctx context.Context, key string) bool {
	for n := nodeFrom(ctx); n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}
