package reflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterDispatchesByKey(t *testing.T) {
	rt := NewRuntime()
	type event struct {
		kind string
		n    int
	}
	in := NewStreamSink[event](rt)
	router := NewRouter(in.Stream, func(e event) string { return e.kind })

	var deposits, withdrawals []int
	router.Subscribe("deposit", func(e event) { deposits = append(deposits, e.n) })
	router.Subscribe("withdrawal", func(e event) { withdrawals = append(withdrawals, e.n) })

	in.Send(event{"deposit", 10})
	in.Send(event{"withdrawal", 3})
	in.Send(event{"deposit", 5})

	require.Equal(t, []int{10, 5}, deposits)
	require.Equal(t, []int{3}, withdrawals)
}

func TestRouterUnsubscribeStopsDelivery(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[string](rt)
	router := NewRouter(in.Stream, func(s string) string { return s })

	count := 0
	token := router.Subscribe("ping", func(string) { count++ })

	in.Send("ping")
	router.Unsubscribe(token)
	in.Send("ping")

	require.Equal(t, 1, count, "expected exactly one delivery before unsubscribe")
}

func TestRouterRemoveOutputPanicsOnReuse(t *testing.T) {
	rt := NewRuntime()
	in := NewStreamSink[string](rt)
	router := NewRouter(in.Stream, func(s string) string { return s })
	router.Output("k")
	router.RemoveOutput("k")

	require.PanicsWithValue(t, ErrRouterKeyGone, func() {
		router.Output("k")
	})
}
