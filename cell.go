package reflow

import "sync"

// unit is a zero-size event payload used internally where only the
// occurrence of a firing matters, not its value (e.g. the trigger
// stream behind Lift2..Lift6).
type unit struct{}

// Cell is a continuous, always-has-a-value signal: a committed value
// plus the stream of updates that produced it. Grounded on
// _examples/original_source/src/sodium/impl_/cell.rs.
type Cell[T any] struct {
	rt      *Runtime
	node    *Node
	updates *Stream[T]

	mu        sync.Mutex
	value     *Lazy[T]
	nextValue *T
}

// NewCell creates a perpetual cell holding v, whose updates stream
// never fires. Grounded on cell.rs's Cell::new (a constant cell with no
// backing stream).
func NewCell[T any](rt *Runtime, v T) *Cell[T] {
	never := newSourceStream[T](rt, "never", nil)
	return never.Hold(v)
}

func (c *Cell[T]) Node() *Node { return c.node }

// Sample reads the cell's current committed value.
func (c *Cell[T]) Sample() T {
	c.mu.Lock()
	v := c.value
	c.mu.Unlock()
	return v.Force()
}

// SampleLazy wraps Sample in a Lazy, deferring evaluation — used to
// build cells from other cells without forcing a value that might never
// be read (construction-time forward references in loops in
// particular).
func (c *Cell[T]) SampleLazy() *Lazy[T] {
	return NewLazy(func() T { return c.Sample() })
}

// Updates returns the stream that fires the new value whenever the
// cell changes (but not the initial value).
func (c *Cell[T]) Updates() *Stream[T] { return c.updates }

// Value returns a stream that fires the cell's current value once, at
// the start of propagation of the open transaction (or of the next one
// when none is open), and its update stream's firings thereafter. Grounded on
// _examples/original_source/src/sodium/operational.rs (Operational::value).
func (c *Cell[T]) Value() *Stream[T] {
	spark := newSourceStream[T](c.rt, "cell-value-spark", nil)
	c.rt.schedulePreEOT(func() {
		v := c.Sample()
		spark.mu.Lock()
		spark.firing = &v
		spark.mu.Unlock()
		spark.node.setChanged(true)
		spark.rt.markDirty(spark.node)
		spark.rt.schedulePrePost(func() {
			spark.mu.Lock()
			spark.firing = nil
			spark.mu.Unlock()
			spark.node.setChanged(false)
		})
	})
	return spark.OrElse(c.Updates())
}

// CellMap derives a cell by applying f to every value. The initial value
// is lazy: f is not invoked on it until the result is sampled. Each later
// update applies f during propagation.
func CellMap[T, U any](c *Cell[T], f func(T) U) *Cell[U] {
	next := MapTo(c.Updates(), f)
	return next.HoldLazy(LazyMap(c.SampleLazy(), f))
}

// Map is CellMap as a method, for callers that don't need a statically
// typed result.
func (c *Cell[T]) Map(f func(T) any) *Cell[any] {
	return CellMap[T, any](c, f)
}

// cellTrack mirrors c's updates into dst, storing the new value before
// any node depending on this stream runs — the "shared state holding
// the last-seen value from each [cell]" spec §4.5 calls for, so a LiftN
// reads the value a sibling cell just produced this transaction rather
// than its still-uncommitted Sample().
func cellTrack[T any](c *Cell[T], dst *T) *Stream[unit] {
	return MapTo(c.Updates(), func(v T) unit {
		*dst = v
		return unit{}
	})
}

// foldTrigger collapses N per-cell track streams into one unit stream
// that fires at most once per transaction, regardless of how many of
// the tracked cells changed.
func foldTrigger(first *Stream[unit], rest ...*Stream[unit]) *Stream[unit] {
	out := first
	for _, s := range rest {
		out = Merge(out, s, func(l, _ unit) unit { return l })
	}
	return out
}

// Lift2 combines two cells with f, re-evaluating whenever either
// changes. Grounded on _examples/original_source/src/sodium/impl_/lift.rs.
func Lift2[A, B, R any](a *Cell[A], b *Cell[B], f func(A, B) R) *Cell[R] {
	lastA, lastB := a.Sample(), b.Sample()
	t := foldTrigger(cellTrack(a, &lastA), cellTrack(b, &lastB))

	eval := func() R { return f(lastA, lastB) }
	out := MapTo(t, func(unit) R { return eval() })
	return out.HoldLazy(NewLazy(eval))
}

// Lift3 combines three cells with f.
func Lift3[A, B, C, R any](a *Cell[A], b *Cell[B], c *Cell[C], f func(A, B, C) R) *Cell[R] {
	lastA, lastB, lastC := a.Sample(), b.Sample(), c.Sample()
	t := foldTrigger(cellTrack(a, &lastA), cellTrack(b, &lastB), cellTrack(c, &lastC))

	eval := func() R { return f(lastA, lastB, lastC) }
	out := MapTo(t, func(unit) R { return eval() })
	return out.HoldLazy(NewLazy(eval))
}

// Lift4 combines four cells with f.
func Lift4[A, B, C, D, R any](a *Cell[A], b *Cell[B], c *Cell[C], d *Cell[D], f func(A, B, C, D) R) *Cell[R] {
	lastA, lastB, lastC, lastD := a.Sample(), b.Sample(), c.Sample(), d.Sample()
	t := foldTrigger(cellTrack(a, &lastA), cellTrack(b, &lastB), cellTrack(c, &lastC), cellTrack(d, &lastD))

	eval := func() R { return f(lastA, lastB, lastC, lastD) }
	out := MapTo(t, func(unit) R { return eval() })
	return out.HoldLazy(NewLazy(eval))
}

// Lift5 combines five cells with f.
func Lift5[A, B, C, D, E, R any](a *Cell[A], b *Cell[B], c *Cell[C], d *Cell[D], e *Cell[E], f func(A, B, C, D, E) R) *Cell[R] {
	lastA, lastB, lastC, lastD, lastE := a.Sample(), b.Sample(), c.Sample(), d.Sample(), e.Sample()
	t := foldTrigger(cellTrack(a, &lastA), cellTrack(b, &lastB), cellTrack(c, &lastC), cellTrack(d, &lastD), cellTrack(e, &lastE))

	eval := func() R { return f(lastA, lastB, lastC, lastD, lastE) }
	out := MapTo(t, func(unit) R { return eval() })
	return out.HoldLazy(NewLazy(eval))
}

// Lift6 combines six cells with f.
func Lift6[A, B, C, D, E, F, R any](a *Cell[A], b *Cell[B], c *Cell[C], d *Cell[D], e *Cell[E], fc *Cell[F], f func(A, B, C, D, E, F) R) *Cell[R] {
	lastA, lastB, lastC, lastD, lastE, lastF := a.Sample(), b.Sample(), c.Sample(), d.Sample(), e.Sample(), fc.Sample()
	t := foldTrigger(cellTrack(a, &lastA), cellTrack(b, &lastB), cellTrack(c, &lastC), cellTrack(d, &lastD), cellTrack(e, &lastE), cellTrack(fc, &lastF))

	eval := func() R { return f(lastA, lastB, lastC, lastD, lastE, lastF) }
	out := MapTo(t, func(unit) R { return eval() })
	return out.HoldLazy(NewLazy(eval))
}

// SwitchS flattens a cell of streams into a single stream that always
// forwards the currently-selected inner stream's firings. A switch
// takes effect starting the transaction after the cell changes — the
// firing that caused the switch still comes from the old stream.
// Grounded on _examples/original_source/src/sodium/impl_/cell.rs
// (switch_s) and src/sodium/impl_/router.rs's rewiring technique.
func SwitchS[T any](cs *Cell[*Stream[T]]) *Stream[T] {
	rt := cs.rt
	out := &Stream[T]{rt: rt}
	current := cs.Sample()

	updateFn := func() bool {
		v, ok := current.peekFiring()
		if !ok {
			return false
		}
		out.setFiring(v)
		return true
	}
	out.node = newNode(rt, "switch-s", updateFn, []*Node{current.node})

	switchFn := func() bool {
		next, ok := cs.Updates().peekFiring()
		if !ok || next == current {
			return false
		}
		old := current
		rt.schedulePost(func() {
			current = next
			out.node.RemoveDependency(old.node)
			out.node.AddDependency(next.node)
		})
		return false
	}
	switcher := newNode(rt, "switch-s-rewire", switchFn, []*Node{cs.Updates().Node()})
	out.node.AddKeepAlive(switcher)
	return out
}

// SwitchC flattens a cell of cells into a single cell that always
// presents the currently-selected inner cell's value. Built from
// SwitchS over each inner cell's Value() stream, per the standard
// switchC-via-switchS construction.
func SwitchC[T any](cc *Cell[*Cell[T]]) *Cell[T] {
	rt := cc.rt
	initial := cc.Sample()

	loop := NewStreamLoop[T](rt)
	out := loop.Stream().HoldLazy(initial.SampleLazy())

	innerStreams := CellMap(cc, func(inner *Cell[T]) *Stream[T] { return inner.Value() })
	flattened := SwitchS(innerStreams)
	loop.Loop(flattened)
	return out
}

// Listen installs a strong terminal callback over the cell's update
// stream, reporting every new value (not the initial one) — use
// Sample() at listen time for the current value if needed.
func (c *Cell[T]) Listen(k func(T)) *Listener {
	return c.updates.Listen(k)
}

// ListenWeak is Listen without pinning the cell's subgraph alive.
func (c *Cell[T]) ListenWeak(k func(T)) *Listener {
	return c.updates.ListenWeak(k)
}
