package reflow

// Operational-style helpers that sit outside the core combinator set:
// they exist to break ordering constraints the rank graph can't express
// directly. Grounded on
// _examples/original_source/src/sodium/operational.rs.

// Value returns a stream that fires c's current value once at the
// start of propagation of the open transaction (or of the next one when
// none is open) and mirrors c.Updates() after that.
// Thin wrapper kept for parity with the source's free-function form.
func Value[T any](c *Cell[T]) *Stream[T] {
	return c.Value()
}

// Defer re-fires every value from s, but in the transaction following
// the one it originally fired in — used to break same-transaction
// ordering cycles a rank graph alone can't resolve (e.g. a listener
// that needs to observe a settled value rather than an in-flight one).
func Defer[T any](s *Stream[T]) *Stream[T] {
	out := newSourceStream[T](s.rt, "defer", nil)
	s.Listen(func(v T) {
		s.rt.schedulePost(func() {
			out.send(v)
		})
	})
	return out
}

// Split unpacks a stream of slices into a stream of individual items,
// each delivered in its own subsequent transaction — one item per
// transaction, not all of them in the one that produced the slice.
func Split[T any](s *Stream[[]T]) *Stream[T] {
	out := newSourceStream[T](s.rt, "split", nil)
	s.Listen(func(items []T) {
		for _, item := range items {
			v := item
			s.rt.schedulePost(func() {
				out.send(v)
			})
		}
	})
	return out
}
