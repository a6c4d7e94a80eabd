package reflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamLoopForwardsWiredSource(t *testing.T) {
	rt := NewRuntime()
	loop := NewStreamLoop[int](rt)
	source := NewStreamSink[int](rt)
	loop.Loop(source.Stream)

	var got []int
	loop.Stream().Listen(func(v int) { got = append(got, v) })

	source.Send(1)
	source.Send(2)

	require.Equal(t, []int{1, 2}, got)
}

func TestStreamLoopPanicsOnDoubleLoop(t *testing.T) {
	rt := NewRuntime()
	loop := NewStreamLoop[int](rt)
	a := NewStreamSink[int](rt)
	b := NewStreamSink[int](rt)
	loop.Loop(a.Stream)

	require.PanicsWithValue(t, ErrLoopAlreadyClosed, func() {
		loop.Loop(b.Stream)
	})
}

func TestStreamLoopPanicsWhenLoopedInADifferentTransaction(t *testing.T) {
	rt := NewRuntime()
	var loop *StreamLoop[int]
	rt.Transaction(func() {
		loop = NewStreamLoop[int](rt)
	})

	a := NewStreamSink[int](rt)
	// The constructing transaction above already closed; looping now
	// opens a new, different transaction.
	require.PanicsWithValue(t, ErrLoopCrossTransaction, func() {
		rt.Transaction(func() {
			loop.Loop(a.Stream)
		})
	})
}

func TestCellLoopPanicsBeforeWired(t *testing.T) {
	rt := NewRuntime()
	loop := NewCellLoop[int](rt, Now(0))

	require.PanicsWithValue(t, ErrCellSampledBeforeLoop, func() {
		loop.Sample()
	})
}

func TestCellLoopFeedback(t *testing.T) {
	rt := NewRuntime()
	loop := NewCellLoop[int](rt, Now(0))
	ticks := NewStreamSink[int](rt)

	// Each tick adds itself to whatever the loop's cell currently holds;
	// Snapshot reads the pre-commit value, so the feedback is safe.
	next := Snapshot(ticks.Stream, loop.streamLoop.Stream().Hold(0), func(delta, acc int) int {
		return acc + delta
	})
	loop.Loop(next)

	ticks.Send(1)
	ticks.Send(2)
	ticks.Send(3)

	require.Equal(t, 6, loop.Sample())
}
