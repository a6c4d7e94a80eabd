package reflow

import "sync"

// Lazy is a one-shot memoising thunk: the first call to Force runs the
// underlying function and caches its result; every later call returns
// the cached value without re-invoking the function. Used by
// Stream.HoldLazy, Cell.SampleLazy, and loop initial values to allow
// construction-time forward references.
//
// Grounded on _examples/original_source/src/sodium/impl_/memo_lazy.rs
// (MemoLazy), which this mirrors field-for-field: a thunk cell and a
// cached-result cell, collapsed in Go via sync.Once.
type Lazy[T any] struct {
	once  sync.Once
	thunk func() T
	value T
}

// NewLazy wraps thunk in a memoising Lazy.
func NewLazy[T any](thunk func() T) *Lazy[T] {
	return &Lazy[T]{thunk: thunk}
}

// Now returns an already-resolved Lazy wrapping v — useful when a
// combinator needs a Lazy[T] but already has the value in hand.
func Now[T any](v T) *Lazy[T] {
	l := &Lazy[T]{value: v}
	l.once.Do(func() {})
	return l
}

// Force runs the thunk on first call and returns the cached result on
// every call thereafter.
func (l *Lazy[T]) Force() T {
	l.once.Do(func() {
		l.value = l.thunk()
		l.thunk = nil
	})
	return l.value
}

// LazyMap builds a new Lazy whose thunk forces l and applies f, without
// forcing l eagerly.
func LazyMap[A, B any](l *Lazy[A], f func(A) B) *Lazy[B] {
	return NewLazy(func() B {
		return f(l.Force())
	})
}

// LazyLift2 combines two lazies without forcing either until the result is
// forced.
func LazyLift2[A, B, C any](la *Lazy[A], lb *Lazy[B], f func(A, B) C) *Lazy[C] {
	return NewLazy(func() C {
		return f(la.Force(), lb.Force())
	})
}
