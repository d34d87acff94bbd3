// Package fallback evaluates ordered lists of alternative strategies and keeps
// the first one that produces a result.
package fallback

import (
	"context"
	"fmt"
)

// Strategy is one alternative in an ordered list. Try reports ok=false for a
// plain miss, which moves evaluation on to the next strategy; a non-nil error
// is a fault and stops the chain.
type Strategy[T any] struct {
	Name string
	Try  func(ctx context.Context) (value T, ok bool, err error)
}

// Outcome describes which strategy, if any, matched.
type Outcome[T any] struct {
	Value T
	// Name of the matching strategy; empty when nothing matched.
	Name string
	// Index of the matching strategy, -1 when nothing matched.
	Index int
}

// Matched reports whether a strategy produced a value.
func (o Outcome[T]) Matched() bool { return o.Index >= 0 }

// First runs strategies in order and returns the first hit. Context
// cancellation between strategies is reported as an error.
func First[T any](ctx context.Context, strategies []Strategy[T]) (Outcome[T], error) {
	miss := Outcome[T]{Index: -1}
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return miss, err
		}
		v, ok, err := s.Try(ctx)
		if err != nil {
			return miss, fmt.Errorf("strategy %q: %w", s.Name, err)
		}
		if ok {
			return Outcome[T]{Value: v, Name: s.Name, Index: i}, nil
		}
	}
	return miss, nil
}

// FirstOf is the pure-function form of First for in-memory candidates: it
// returns the first candidate accepted by match.
func FirstOf[T any](candidates []T, match func(T) bool) (T, bool) {
	for _, c := range candidates {
		if match(c) {
			return c, true
		}
	}
	var zero T
	return zero, false
}
