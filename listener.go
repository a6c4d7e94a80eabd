package reflow

// Listener is the handle returned by Stream.Listen / Cell.Listen. It
// owns a terminal node wired to its source; Unlisten detaches it,
// after which the callback no longer runs and, if nothing else keeps
// the upstream subgraph alive, the cycle collector reclaims it.
// Grounded on _examples/original_source/src/sodium/impl_/listener.rs.
type Listener struct {
	rt     *Runtime
	node   *Node
	strong bool
}

// Unlisten detaches the listener. Safe to call more than once.
func (l *Listener) Unlisten() {
	if l.strong {
		l.rt.removeKeepAlive(l.node)
	}
	l.node.RemoveAllDependencies()
}

// CombineListeners groups several listeners so a single Unlisten call
// detaches all of them — convenient when a component wires up many
// listeners and wants one handle to tear them all down.
type CombinedListener struct {
	listeners []*Listener
}

func CombineListeners(listeners ...*Listener) *CombinedListener {
	return &CombinedListener{listeners: listeners}
}

func (c *CombinedListener) Unlisten() {
	for _, l := range c.listeners {
		l.Unlisten()
	}
}
