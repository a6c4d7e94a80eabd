package reflow

import "sync"

// colour is a Bacon-Rajan trial-deletion colour.
type colour int

const (
	colourBlack colour = iota
	colourGray
	colourWhite
	colourPurple
)

// ccmm is the cycle-collecting memory manager: a synchronous Bacon-Rajan
// collector over the Node graph. Go's tracing GC already reclaims
// acyclic garbage; ccmm exists because reactive graphs routinely contain
// cycles (switch_s/switch_c back-links, StreamLoop/CellLoop feedback)
// that plain reference counting on Node.strong/Node.weak cannot free on
// its own.
//
// Grounded on _examples/original_source/src/sodium/impl_/gc.rs.
type ccmm struct {
	mu               sync.Mutex
	roots            []*Node
	collectingCycles bool
	toBeFreed        []*Node
}

func newCCMM() *ccmm {
	return &ccmm{}
}

func (g *ccmm) incRef(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.strong++
	n.colour = colourBlack
}

// decRef drops n's strong count. A node that hits zero strong
// references is freed immediately — whether or not it is sitting in the
// possible-roots buffer from an earlier decrement, since a strong count
// of zero means nothing, cyclic or not, still holds it. systemFree
// takes its own lock and removes n from the roots buffer itself, so the
// free happens cleanly after g.mu is released here. A node that
// survives the decrement is marked purple and queued as a possible
// cycle root instead, unless it is already purple.
func (g *ccmm) decRef(n *Node) {
	g.mu.Lock()
	if n.strong <= 0 {
		g.mu.Unlock()
		return
	}
	n.strong--
	if n.strong > 0 {
		g.possibleRoot(n)
		g.mu.Unlock()
		return
	}
	n.colour = colourBlack
	n.buffered = false
	g.mu.Unlock()

	n.runCleanups()
	g.systemFree(n)
}

func (g *ccmm) possibleRoot(n *Node) {
	if n.colour == colourPurple {
		return
	}
	n.colour = colourPurple
	if !n.buffered {
		n.buffered = true
		g.roots = append(g.roots, n)
	}
}

// CollectCycles runs a full trial-deletion pass: mark, scan, collect,
// then frees whatever trial deletion proved unreachable. Re-entrant
// calls made while a pass is in flight are no-ops — collection is
// driven to a fixpoint by the outer loop instead.
func (g *ccmm) CollectCycles() {
	g.mu.Lock()
	if g.collectingCycles {
		g.mu.Unlock()
		return
	}
	g.collectingCycles = true
	g.mu.Unlock()

	g.markRoots()
	g.scanRoots()
	g.collectRoots()

	g.mu.Lock()
	again := len(g.toBeFreed) != 0
	g.mu.Unlock()

	g.freeToBeFreed()

	g.mu.Lock()
	g.collectingCycles = false
	g.mu.Unlock()

	if again {
		g.CollectCycles()
	}
}

func (g *ccmm) markRoots() {
	g.mu.Lock()
	roots := append([]*Node(nil), g.roots...)
	g.mu.Unlock()

	newRoots := make([]*Node, 0, len(roots))
	for _, n := range roots {
		n.mu.Lock()
		purple := n.colour == colourPurple && n.strong > 0
		n.mu.Unlock()
		if purple {
			g.markGray(n)
			newRoots = append(newRoots, n)
			continue
		}
		n.mu.Lock()
		n.buffered = false
		shouldFree := n.colour == colourBlack && n.strong == 0
		n.mu.Unlock()
		if shouldFree {
			g.finalizeAndQueueFree(n)
		}
	}

	g.mu.Lock()
	g.roots = newRoots
	g.mu.Unlock()
}

func (g *ccmm) scanRoots() {
	g.mu.Lock()
	roots := append([]*Node(nil), g.roots...)
	g.mu.Unlock()
	for _, n := range roots {
		g.scan(n)
	}
}

func (g *ccmm) collectRoots() {
	g.mu.Lock()
	roots := g.roots
	g.roots = nil
	g.mu.Unlock()

	for _, n := range roots {
		n.mu.Lock()
		n.buffered = false
		n.mu.Unlock()
		g.collectWhite(n)
	}
}

// markGray, scan, scanBlack and collectWhite walk the strong-edge
// subgraph iteratively with an explicit stack rather than recursively,
// to avoid stack overflow on deep or wide graphs.

func (g *ccmm) markGray(root *Node) {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.mu.Lock()
		if n.colour == colourGray {
			n.mu.Unlock()
			continue
		}
		n.colour = colourGray
		children := n.traceStrongChildren()
		n.mu.Unlock()

		for _, c := range children {
			c.mu.Lock()
			c.strong--
			c.mu.Unlock()
			stack = append(stack, c)
		}
	}
}

func (g *ccmm) scan(root *Node) {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.mu.Lock()
		if n.colour != colourGray {
			n.mu.Unlock()
			continue
		}
		if n.strong > 0 {
			n.mu.Unlock()
			g.scanBlack(n)
			continue
		}
		n.colour = colourWhite
		children := n.traceStrongChildren()
		n.mu.Unlock()

		stack = append(stack, children...)
	}
}

func (g *ccmm) scanBlack(root *Node) {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.mu.Lock()
		n.colour = colourBlack
		children := n.traceStrongChildren()
		n.mu.Unlock()

		for _, c := range children {
			c.mu.Lock()
			c.strong++
			needsRecurse := c.colour != colourBlack
			c.mu.Unlock()
			if needsRecurse {
				stack = append(stack, c)
			}
		}
	}
}

func (g *ccmm) collectWhite(root *Node) {
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.mu.Lock()
		if n.colour != colourWhite || n.buffered {
			n.mu.Unlock()
			continue
		}
		n.colour = colourBlack
		children := n.traceStrongChildren()
		n.mu.Unlock()

		stack = append(stack, children...)
		g.finalizeAndQueueFree(n)
	}
}

func (g *ccmm) finalizeAndQueueFree(n *Node) {
	n.runCleanups()
	g.mu.Lock()
	g.toBeFreed = append(g.toBeFreed, n)
	g.mu.Unlock()
}

func (g *ccmm) freeToBeFreed() {
	g.mu.Lock()
	batch := g.toBeFreed
	g.toBeFreed = nil
	g.mu.Unlock()

	for _, n := range batch {
		g.systemFree(n)
	}
}

// systemFree finalises n and releases its strong references to every
// child it traced, cascading the free down an acyclic chain exactly
// the way a Drop impl would. Cyclic children were already reduced to
// zero strong count by the trial-deletion walk that got here, so decRef
// returns early for them; they are freed through their own entry in
// toBeFreed.
func (g *ccmm) systemFree(n *Node) {
	g.mu.Lock()
	filtered := g.roots[:0:0]
	for _, r := range g.roots {
		if r != n {
			filtered = append(filtered, r)
		}
	}
	g.roots = filtered
	g.mu.Unlock()

	n.mu.Lock()
	children := n.traceStrongChildren()
	n.freed = true
	n.dependencies = nil
	n.updateDependencies = nil
	n.keepAlive = nil
	n.dependents = nil
	n.mu.Unlock()
	n.rt.decNodeCount()

	for _, c := range children {
		g.decRef(c)
	}
}
