package reflow

import "sync"

// Stream is a discrete event carrier: a node plus a transient firing
// slot holding at most one value per transaction. Grounded on
// _examples/original_source/src/sodium/impl_/stream.rs.
type Stream[T any] struct {
	rt   *Runtime
	node *Node

	mu        sync.Mutex
	firing    *T
	coalescer func(T, T) T
}

// newSourceStream creates a stream with no updateFn: its changed flag
// and firing slot are driven directly by send(), not by a dependency
// walk. Used for StreamSink and the internal sinks combinators build on
// top of (Defer and Split outputs, Value()'s one-shot spark, etc.).
func newSourceStream[T any](rt *Runtime, name string, coalescer func(T, T) T) *Stream[T] {
	s := &Stream[T]{rt: rt, coalescer: coalescer}
	s.node = newNode(rt, name, nil, nil)
	return s
}

// newDerivedStream creates a stream whose firing is computed by
// updateFn from its dependencies. updateFn must store the new firing
// into the stream it closes over (via setFiring) and return whether it
// fired.
func newDerivedStream[T any](rt *Runtime, name string, deps []*Node, updateFn func() bool) *Stream[T] {
	s := &Stream[T]{rt: rt}
	s.node = newNode(rt, name, updateFn, deps)
	return s
}

func (s *Stream[T]) peekFiring() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firing == nil {
		var zero T
		return zero, false
	}
	return *s.firing, true
}

func (s *Stream[T]) setFiring(v T) {
	s.mu.Lock()
	s.firing = &v
	s.mu.Unlock()
	s.rt.schedulePrePost(func() {
		s.mu.Lock()
		s.firing = nil
		s.mu.Unlock()
	})
}

// send is the shared mechanism behind StreamSink.Send and the internal
// re-injection points (Defer and Split). It opens a transaction if one is not already
// open, applies the coalescer on a second send within the same
// transaction, and panics with ErrDoubleSend if there is none.
func (s *Stream[T]) send(v T) {
	s.rt.checkNotReentrant(ErrReentrantSend)
	s.rt.Transaction(func() {
		s.mu.Lock()
		if s.firing != nil {
			if s.coalescer == nil {
				s.mu.Unlock()
				panic(ErrDoubleSend)
			}
			merged := s.coalescer(*s.firing, v)
			s.firing = &merged
			s.mu.Unlock()
			return
		}
		vv := v
		s.firing = &vv
		s.mu.Unlock()

		s.rt.schedulePrePost(func() {
			s.mu.Lock()
			s.firing = nil
			s.mu.Unlock()
			s.node.setChanged(false)
		})
		s.node.setChanged(true)
		s.rt.markDirty(s.node)
	})
}

// Node exposes the underlying graph node, used by Cell and the
// combinators that must wire dependencies across types.
func (s *Stream[T]) Node() *Node { return s.node }

// Map creates a stream that fires f(a) whenever s fires a.
func (s *Stream[T]) Map(f func(T) any) *Stream[any] {
	var out *Stream[any]
	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}
		out.setFiring(f(v))
		return true
	}
	out = newDerivedStream[any](s.rt, "map", []*Node{s.node}, updateFn)
	return out
}

// MapTo is the typed variant of Map, returning a Stream[U] instead of
// Stream[any] for callers that know the result type statically.
func MapTo[T, U any](s *Stream[T], f func(T) U) *Stream[U] {
	var out *Stream[U]
	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}
		out.setFiring(f(v))
		return true
	}
	out = newDerivedStream[U](s.rt, "map", []*Node{s.node}, updateFn)
	return out
}

// Filter creates a stream that forwards only firings matching p.
func (s *Stream[T]) Filter(p func(T) bool) *Stream[T] {
	var out *Stream[T]
	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok || !p(v) {
			return false
		}
		out.setFiring(v)
		return true
	}
	out = newDerivedStream[T](s.rt, "filter", []*Node{s.node}, updateFn)
	return out
}

// Merge fires combine(left, right) when both s and other fire in the
// same transaction; otherwise it fires whichever one fired, unchanged.
func Merge[T any](s, other *Stream[T], combine func(left, right T) T) *Stream[T] {
	var out *Stream[T]
	updateFn := func() bool {
		lv, lok := s.peekFiring()
		rv, rok := other.peekFiring()
		switch {
		case lok && rok:
			out.setFiring(combine(lv, rv))
		case lok:
			out.setFiring(lv)
		case rok:
			out.setFiring(rv)
		default:
			return false
		}
		return true
	}
	out = newDerivedStream[T](s.rt, "merge", []*Node{s.node, other.node}, updateFn)
	return out
}

// OrElse is left-biased merge: if both fire, the left (s) firing wins
// unchanged.
func (s *Stream[T]) OrElse(other *Stream[T]) *Stream[T] {
	return Merge(s, other, func(left, _ T) T { return left })
}

// Snapshot fires f(streamFiring, cellValue) whenever s fires, sampling
// c's value as it stood before this transaction's commit.
func Snapshot[T, C, R any](s *Stream[T], c *Cell[C], f func(T, C) R) *Stream[R] {
	var out *Stream[R]
	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}
		out.setFiring(f(v, c.Sample()))
		return true
	}
	out = newDerivedStream[R](s.rt, "snapshot", []*Node{s.node}, updateFn)
	out.node.AddUpdateDependency(c.node)
	return out
}

// Once forwards only the first firing, then detaches from its upstream
// in the post phase so later sends never reach it again. Reproduces the
// source's exact timing: a listener wired to Once in the same
// transaction as its first firing still observes that firing, because
// the detach is scheduled into the post queue, not applied immediately.
func (s *Stream[T]) Once() *Stream[T] {
	var out *Stream[T]
	var fired bool
	var mu sync.Mutex

	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}

		mu.Lock()
		if fired {
			mu.Unlock()
			return false
		}
		fired = true
		mu.Unlock()

		out.setFiring(v)
		out.rt.schedulePost(func() {
			out.node.RemoveAllDependencies()
		})
		return true
	}
	out = newDerivedStream[T](s.rt, "once", []*Node{s.node}, updateFn)
	return out
}

// Hold converts s into a Cell whose initial value is v and whose
// subsequent values come from s's firings.
func (s *Stream[T]) Hold(initial T) *Cell[T] {
	return s.HoldLazy(Now(initial))
}

// HoldLazy is Hold with a lazily-evaluated initial value, used to build
// forward references (a cell can be constructed before the value that
// seeds it is available).
func (s *Stream[T]) HoldLazy(initial *Lazy[T]) *Cell[T] {
	c := &Cell[T]{rt: s.rt, updates: s, value: initial}

	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}
		c.mu.Lock()
		vv := v
		c.nextValue = &vv
		c.mu.Unlock()
		c.rt.schedulePost(func() {
			c.mu.Lock()
			if c.nextValue != nil {
				c.value = Now(*c.nextValue)
				c.nextValue = nil
			}
			c.mu.Unlock()
		})
		return false
	}
	c.node = newNode(s.rt, "hold", updateFn, []*Node{s.node})
	return c
}

// collected pairs an output value with the next accumulator state,
// threaded through CollectLazy's internal StreamLoop.
type collected[R, S any] struct {
	out   R
	state S
}

// CollectLazy folds s's firings into a running state, starting from
// initialState, yielding the collected output on each firing. Built the
// way the source builds it: a StreamLoop feeding a held Cell, snapshot
// against that cell to read the prior state, then loop the next state
// back in. The loop is safe because Snapshot always reads the state
// cell's value as committed by the *previous* transaction.
func CollectLazy[T, S, R any](s *Stream[T], initialState *Lazy[S], step func(T, S) (R, S)) *Stream[R] {
	rt := s.rt
	stateLoop := NewStreamLoop[S](rt)
	stateCell := stateLoop.Stream().HoldLazy(initialState)

	combined := Snapshot(s, stateCell, func(a T, state S) collected[R, S] {
		out, next := step(a, state)
		return collected[R, S]{out: out, state: next}
	})
	nextState := MapTo(combined, func(c collected[R, S]) S { return c.state })
	stateLoop.Loop(nextState)

	return MapTo(combined, func(c collected[R, S]) R { return c.out })
}

// AccumLazy is CollectLazy specialised to accumulate a running value
// with no separate output payload: each firing yields the new
// accumulated state itself.
func AccumLazy[T, S any](s *Stream[T], initialState *Lazy[S], step func(T, S) S) *Cell[S] {
	out := CollectLazy(s, initialState, func(a T, acc S) (S, S) {
		next := step(a, acc)
		return next, next
	})
	return out.HoldLazy(initialState)
}

// Accum is AccumLazy with an eager initial value.
func Accum[T, S any](s *Stream[T], initial S, step func(T, S) S) *Cell[S] {
	return AccumLazy(s, Now(initial), step)
}

// Listen installs a strong terminal callback: k runs synchronously on
// the propagating goroutine for every firing, and the returned
// Listener pins s's subgraph alive until Unlisten is called.
func (s *Stream[T]) Listen(k func(T)) *Listener {
	return s.listen(k, true)
}

// ListenWeak is Listen without pinning s's subgraph alive.
func (s *Stream[T]) ListenWeak(k func(T)) *Listener {
	return s.listen(k, false)
}

func (s *Stream[T]) listen(k func(T), strong bool) *Listener {
	s.rt.checkNotReentrant(ErrReentrantListen)
	updateFn := func() bool {
		v, ok := s.peekFiring()
		if !ok {
			return false
		}
		k(v)
		return false
	}
	n := newNode(s.rt, "listener", updateFn, []*Node{s.node})
	l := &Listener{rt: s.rt, node: n, strong: strong}
	if strong {
		s.rt.addKeepAlive(n)
	}
	return l
}
