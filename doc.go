// Package reflow implements a functional reactive programming runtime:
// continuous Cells and discrete Streams propagated through a
// Transaction-scoped graph of Nodes, with memory reclaimed by a
// synchronous cycle-collecting reference counter rather than left to
// finalizers.
//
// # Overview
//
// A Runtime owns the graph. Values enter it through a StreamSink or
// CellSink, flow through combinators (Map, Filter, Merge, Snapshot,
// Hold, Lift2..Lift6, SwitchS, SwitchC, Accum/CollectLazy), and leave it
// through a Listener's callback. All of this happens inside
// Transactions: every Send opens one if none is already running, and a
// value observed by a dependent node is guaranteed to have settled
// exactly once per transaction — no glitches, no partial updates.
//
// Cyclic graphs (a cell whose value depends, indirectly, on its own
// previous value) are built with StreamLoop and CellLoop: construct the
// placeholder, wire combinators against it, then close the loop with
// Loop before the transaction that needs it commits.
//
// # Basic usage
//
//	rt := reflow.NewRuntime()
//	clicks := reflow.NewStreamSink[int](rt)
//	count := reflow.Accum(clicks.Stream, 0, func(_, acc int) int { return acc + 1 })
//	count.Listen(func(n int) { fmt.Println("clicks:", n) })
//	clicks.Send(0)
//
// # Extensions
//
// The extensions package hooks transaction lifecycle events for
// logging and crash diagnostics, installed via WithExtension at
// construction time.
package reflow
