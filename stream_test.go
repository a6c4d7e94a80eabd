package reflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapFilterFire(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[int](rt)
	doubled := MapTo(in.Stream, func(v int) int { return v * 2 })
	evens := doubled.Filter(func(v int) bool { return v%4 == 0 })

	var got []int
	evens.Listen(func(v int) { got = append(got, v) })

	in.Send(1) // doubled=2, not %4
	in.Send(2) // doubled=4, fires
	in.Send(3) // doubled=6, not %4
	in.Send(4) // doubled=8, fires

	require.Equal(t, []int{4, 8}, got)
}

func TestOrElseIsLeftBiased(t *testing.T) {
	rt := NewRuntime()
	left := NewStreamSink[string](rt)
	right := NewStreamSink[string](rt)
	merged := left.Stream.OrElse(right.Stream)

	var got []string
	merged.Listen(func(v string) { got = append(got, v) })

	rt.Transaction(func() {
		left.Send("left")
		right.Send("right")
	})

	require.Equal(t, []string{"left"}, got)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[int](rt)
	once := in.Stream.Once()

	var got []int
	once.Listen(func(v int) { got = append(got, v) })

	in.Send(1)
	in.Send(2)
	in.Send(3)

	require.Equal(t, []int{1}, got)
}

func TestHoldReflectsLatestFiring(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[int](rt)
	held := in.Stream.Hold(0)

	require.Equal(t, 0, held.Sample())

	in.Send(7)
	require.Equal(t, 7, held.Sample())

	in.Send(3)
	require.Equal(t, 3, held.Sample())
}

func TestSnapshotReadsPreCommitValue(t *testing.T) {
	rt := NewRuntime()
	trigger := NewStreamSink[int](rt)
	state := NewCellSink[string](rt, "idle")

	snapped := Snapshot(trigger.Stream, state.Cell, func(_ int, s string) string { return s })

	var got []string
	snapped.Listen(func(v string) { got = append(got, v) })

	rt.Transaction(func() {
		state.Send("busy")
		trigger.Send(1)
	})

	require.Equal(t, []string{"idle"}, got, "snapshot should read the pre-transaction value")
	require.Equal(t, "busy", state.Sample())
}

func TestDoubleSendWithoutCoalescerPanics(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[int](rt)

	require.PanicsWithValue(t, ErrDoubleSend, func() {
		rt.Transaction(func() {
			in.Send(1)
			in.Send(2)
		})
	})
}

func TestDoubleSendWithCoalescerMerges(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[int](rt, WithCoalescer(func(old, new_ int) int { return old + new_ }))

	var got []int
	in.Stream.Listen(func(v int) { got = append(got, v) })

	rt.Transaction(func() {
		in.Send(1)
		in.Send(2)
		in.Send(3)
	})

	require.Equal(t, []int{6}, got)
}
