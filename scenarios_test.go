package reflow

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMergeSimultaneousWithRightBiasCoalescer reproduces the exact
// merge/coalescer scenario a glitch-free propagation engine must get
// right: two sinks, both right-biased on same-transaction double sends,
// combined with a left-biased OrElse.
func TestMergeSimultaneousWithRightBiasCoalescer(t *testing.T) {
	rt := NewRuntime()
	rightBias := func(_, r int) int { return r }
	s1 := NewStreamSink[int](rt, WithCoalescer(rightBias))
	s2 := NewStreamSink[int](rt, WithCoalescer(rightBias))
	out := s2.Stream.OrElse(s1.Stream)

	var got []int
	out.Listen(func(v int) { got = append(got, v) })

	rt.Transaction(func() {
		s1.Send(7)
		s2.Send(60)
	})
	rt.Transaction(func() {
		s1.Send(9)
	})
	rt.Transaction(func() {
		s1.Send(7)
		s1.Send(60)
		s2.Send(8)
		s2.Send(90)
	})
	rt.Transaction(func() {
		s2.Send(90)
	})
	rt.Transaction(func() {
		s1.Send(1)
		s2.Send(90)
	})

	require.Equal(t, []int{60, 9, 90, 90, 90}, got)
}

func TestFilterKeepsOnlyMatching(t *testing.T) {
	rt := NewRuntime()
	s := NewStreamSink[int](rt)
	out := s.Stream.Filter(func(a int) bool { return a < 10 })

	var got []int
	out.Listen(func(v int) { got = append(got, v) })

	s.Send(2)
	s.Send(16)
	s.Send(9)

	require.Equal(t, []int{2, 9}, got)
}

func TestHoldIsDelayedBySnapshot(t *testing.T) {
	rt := NewRuntime()
	s := NewStreamSink[int](rt)
	h := s.Stream.Hold(0)
	out := Snapshot(s.Stream, h, func(a, b int) string {
		return strconv.Itoa(a) + " " + strconv.Itoa(b)
	})

	var got []string
	out.Listen(func(v string) { got = append(got, v) })

	s.Send(2)
	s.Send(3)

	require.Equal(t, []string{"2 0", "3 2"}, got)
}

// TestSwitchSBasic drives two backing streams A and B through a single
// coordinated sink and switches the selector mid-sequence, checking that
// a switch issued in the same transaction as a firing still observes the
// pre-switch stream for that transaction.
func TestSwitchSBasic(t *testing.T) {
	rt := NewRuntime()
	a := NewStreamSink[string](rt)
	b := NewStreamSink[string](rt)
	selector := NewCellSink[*Stream[string]](rt, a.Stream)
	out := SwitchS(selector.Cell)

	var got []string
	out.Listen(func(v string) { got = append(got, v) })

	type step struct {
		aVal, bVal string
		switchTo   *StreamSink[string]
	}
	steps := []step{
		{"A", "a", nil},
		{"B", "b", nil},
		{"C", "c", b},
		{"D", "d", nil},
		{"E", "e", a},
		{"F", "f", nil},
		{"G", "g", b},
		{"H", "h", a},
		{"I", "i", a},
	}

	for _, st := range steps {
		rt.Transaction(func() {
			if st.switchTo != nil {
				selector.Send(st.switchTo.Stream)
			}
			a.Send(st.aVal)
			b.Send(st.bVal)
		})
	}

	require.Equal(t, []string{"A", "B", "C", "d", "e", "F", "G", "h", "I"}, got)
}

func TestAccumulatorSnapshotsOverTime(t *testing.T) {
	rt := NewRuntime()
	s := NewStreamSink[int](rt)
	sum := Accum(s.Stream, 100, func(a, acc int) int { return a + acc })

	got := []int{sum.Sample()}
	for _, v := range []int{5, 7, 1, 2, 3} {
		s.Send(v)
		got = append(got, sum.Sample())
	}

	require.Equal(t, []int{100, 105, 112, 113, 115, 118}, got)
}

func TestLoopFeedbackCounterHistory(t *testing.T) {
	rt := NewRuntime()
	s := NewStreamSink[int](rt)
	loop := NewCellLoop[int](rt, Now(0))
	next := Snapshot(s.Stream, loop.streamLoop.Stream().Hold(0), func(x, y int) int { return x + y })
	loop.Loop(next)

	got := []int{loop.Sample()}
	loop.Cell().Listen(func(v int) { got = append(got, v) })

	for _, v := range []int{2, 3, 1} {
		s.Send(v)
	}

	require.Equal(t, []int{0, 2, 5, 6}, got)
	require.Equal(t, 6, loop.Sample())
}
