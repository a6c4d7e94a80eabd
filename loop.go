package reflow

import "sync"

// StreamLoop is a forward-declared stream: it is usable as an ordinary
// Stream the moment it is created, but fires nothing until Loop wires a
// real source into it. Grounded on
// _examples/original_source/src/sodium/impl_/stream_loop.rs, which
// builds the same placeholder-then-rewire graph shape.
type StreamLoop[T any] struct {
	rt     *Runtime
	stream *Stream[T]

	mu               sync.Mutex
	source           *Stream[T]
	looped           bool
	constructedEpoch uint64
}

// NewStreamLoop creates an unwired stream loop. Its Stream() can be
// passed to combinators immediately; Loop must be called exactly once,
// before the enclosing transaction commits, to supply the real source.
func NewStreamLoop[T any](rt *Runtime) *StreamLoop[T] {
	sl := &StreamLoop[T]{rt: rt, constructedEpoch: rt.transactionEpoch()}
	updateFn := func() bool {
		sl.mu.Lock()
		src := sl.source
		sl.mu.Unlock()
		if src == nil {
			return false
		}
		v, ok := src.peekFiring()
		if !ok {
			return false
		}
		sl.stream.setFiring(v)
		return true
	}
	sl.stream = newDerivedStream[T](rt, "stream-loop", nil, updateFn)
	return sl
}

// Stream returns the placeholder stream. Safe to use in combinators
// before Loop is called; it simply never fires until then.
func (sl *StreamLoop[T]) Stream() *Stream[T] { return sl.stream }

// Loop wires source as the loop's real upstream. Calling it twice
// panics with ErrLoopAlreadyClosed — a loop can only close over one
// feedback source, matching the source's "may not loop twice" contract.
// Calling it from a different transaction than the one NewStreamLoop
// was constructed in panics with ErrLoopCrossTransaction.
func (sl *StreamLoop[T]) Loop(source *Stream[T]) {
	if sl.rt.transactionEpoch() != sl.constructedEpoch {
		panic(ErrLoopCrossTransaction)
	}

	sl.mu.Lock()
	if sl.looped {
		sl.mu.Unlock()
		panic(ErrLoopAlreadyClosed)
	}
	sl.looped = true
	sl.source = source
	sl.mu.Unlock()
	sl.stream.node.AddDependency(source.node)
}

// CellLoop is the Cell analogue of StreamLoop: a cell whose value comes
// from a stream that is itself defined in terms of the cell, wired
// after construction. Grounded on
// _examples/original_source/src/sodium/impl_/cell_loop.rs.
type CellLoop[T any] struct {
	streamLoop *StreamLoop[T]
	cell       *Cell[T]

	mu     sync.Mutex
	looped bool
}

// NewCellLoop creates an unwired cell loop seeded with initial. Sample
// and Updates panic with ErrCellSampledBeforeLoop until Loop is called,
// reproducing the source's "sampling before looping is a programming
// error" contract rather than silently returning the seed forever.
func NewCellLoop[T any](rt *Runtime, initial *Lazy[T]) *CellLoop[T] {
	sl := NewStreamLoop[T](rt)
	return &CellLoop[T]{streamLoop: sl, cell: sl.Stream().HoldLazy(initial)}
}

// Loop wires the feedback stream in, unblocking Sample/Updates/Cell.
func (cl *CellLoop[T]) Loop(source *Stream[T]) {
	cl.streamLoop.Loop(source)
	cl.mu.Lock()
	cl.looped = true
	cl.mu.Unlock()
}

func (cl *CellLoop[T]) checkLooped() {
	cl.mu.Lock()
	looped := cl.looped
	cl.mu.Unlock()
	if !looped {
		panic(ErrCellSampledBeforeLoop)
	}
}

// Cell returns the underlying cell once the loop has been closed.
func (cl *CellLoop[T]) Cell() *Cell[T] {
	cl.checkLooped()
	return cl.cell
}

// Sample is Cell().Sample() with the pre-loop guard applied.
func (cl *CellLoop[T]) Sample() T {
	cl.checkLooped()
	return cl.cell.Sample()
}

// Updates is Cell().Updates() with the pre-loop guard applied.
func (cl *CellLoop[T]) Updates() *Stream[T] {
	cl.checkLooped()
	return cl.cell.Updates()
}
