package reflow

// StreamSink is an externally-fed Stream: the program's own code calls
// Send to inject values from outside the propagation graph. Grounded on
// _examples/original_source/src/sodium/impl_/stream_sink.rs.
type StreamSink[T any] struct {
	*Stream[T]
}

// StreamSinkOption configures a StreamSink at construction time.
type StreamSinkOption[T any] func(*Stream[T])

// WithCoalescer installs a merge function applied when Send is called
// a second time within the same transaction; without one, a second
// send in one transaction panics with ErrDoubleSend.
func WithCoalescer[T any](combine func(old, new_ T) T) StreamSinkOption[T] {
	return func(s *Stream[T]) { s.coalescer = combine }
}

// NewStreamSink creates a sink stream with no coalescer by default.
func NewStreamSink[T any](rt *Runtime, opts ...StreamSinkOption[T]) *StreamSink[T] {
	s := newSourceStream[T](rt, "stream-sink", nil)
	for _, opt := range opts {
		opt(s)
	}
	return &StreamSink[T]{Stream: s}
}

// Send injects v into the graph, opening a transaction if one is not
// already in progress.
func (s *StreamSink[T]) Send(v T) {
	s.Stream.send(v)
}

// CellSink is an externally-fed Cell: a StreamSink held into a Cell, so
// Send both fires the update stream and commits the new sampled value.
// Grounded on _examples/original_source/src/sodium/impl_/cell_sink.rs.
type CellSink[T any] struct {
	sink *StreamSink[T]
	*Cell[T]
}

// NewCellSink creates a cell sink seeded with initial.
func NewCellSink[T any](rt *Runtime, initial T, opts ...StreamSinkOption[T]) *CellSink[T] {
	sink := NewStreamSink[T](rt, opts...)
	cell := sink.Hold(initial)
	return &CellSink[T]{sink: sink, Cell: cell}
}

// Send updates the cell's value, visible to Sample once the enclosing
// transaction commits.
func (cs *CellSink[T]) Send(v T) {
	cs.sink.Send(v)
}
