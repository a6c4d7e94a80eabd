package reflow

import (
	"sync"

	"github.com/google/uuid"
)

// weakNode is a non-owning handle to a Node. It upgrades to a strong
// *Node only while the node's strong count is positive and it has not
// been finalised by the cycle collector, giving callers a safe
// non-owning reference without a separate weak-pointer runtime feature.
type weakNode struct {
	n *Node
}

func (w *weakNode) upgrade() *Node {
	if w == nil || w.n == nil {
		return nil
	}
	w.n.mu.Lock()
	defer w.n.mu.Unlock()
	if w.n.freed || w.n.strong <= 0 {
		return nil
	}
	return w.n
}

// Node is the fundamental graph vertex: a unit of computation with
// strongly-owned dependencies, weakly-referenced dependents, and the
// Bacon-Rajan bookkeeping fields merged directly onto it, per spec §4.1
// ("each managed node carries a strong count, a weak count, a
// colour...").
type Node struct {
	mu sync.Mutex

	ID   uuid.UUID
	Name string

	rt *Runtime

	rank uint64
	seq  uint64

	// updateFn is nil for source/sink nodes: their changed flag is set
	// directly by send(), not computed from dependencies.
	updateFn func() bool

	dependencies       []*Node
	dependents         []*weakNode
	updateDependencies []*Node
	keepAlive          []*Node

	visited bool
	changed bool

	cleanups []func()

	strong   int
	weak     int
	colour   colour
	buffered bool
	freed    bool
}

// newNode creates a node with rank strictly greater than every initial
// dependency, links both directions, and registers it with rt's CCMM at
// a strong count of one (the caller's own reference).
func newNode(rt *Runtime, name string, updateFn func() bool, dependencies []*Node) *Node {
	n := &Node{
		ID:       uuid.New(),
		Name:     name,
		rt:       rt,
		updateFn: updateFn,
		strong:   1,
		weak:     1,
		colour:   colourBlack,
	}
	n.seq = rt.nextSeq()

	var rank uint64
	for _, dep := range dependencies {
		dep.mu.Lock()
		if rank <= dep.rank {
			rank = dep.rank + 1
		}
		dep.mu.Unlock()
	}
	n.rank = rank
	n.dependencies = append([]*Node(nil), dependencies...)

	w := &weakNode{n: n}
	for _, dep := range dependencies {
		rt.gc.incRef(dep)
		dep.mu.Lock()
		dep.dependents = append(dep.dependents, w)
		dep.mu.Unlock()
	}

	rt.incNodeCount()
	rt.registerNode(n)
	return n
}

func (n *Node) traceStrongChildren() []*Node {
	children := make([]*Node, 0, len(n.dependencies)+len(n.updateDependencies)+len(n.keepAlive))
	children = append(children, n.dependencies...)
	children = append(children, n.updateDependencies...)
	children = append(children, n.keepAlive...)
	return children
}

func (n *Node) runCleanups() {
	n.mu.Lock()
	cleanups := n.cleanups
	n.cleanups = nil
	n.mu.Unlock()
	for _, c := range cleanups {
		c()
	}
}

// Rank returns the node's current rank.
func (n *Node) Rank() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rank
}

func (n *Node) Changed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changed
}

func (n *Node) setChanged(v bool) {
	n.mu.Lock()
	n.changed = v
	n.mu.Unlock()
}

func (n *Node) Dependencies() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.dependencies...)
}

func (n *Node) liveDependents() []*Node {
	n.mu.Lock()
	weak := append([]*weakNode(nil), n.dependents...)
	n.mu.Unlock()

	live := make([]*Node, 0, len(weak))
	kept := weak[:0]
	for _, w := range weak {
		if d := w.upgrade(); d != nil {
			live = append(live, d)
			kept = append(kept, w)
		}
	}
	n.mu.Lock()
	n.dependents = kept
	n.mu.Unlock()
	return live
}

// AddDependency links self to upstream in both directions, bumps self's
// rank above upstream's, and propagates that rank bump to dependents.
func (n *Node) AddDependency(upstream *Node) {
	n.rt.gc.incRef(upstream)

	upstream.mu.Lock()
	upstream.dependents = append(upstream.dependents, &weakNode{n: n})
	upRank := upstream.rank
	upstream.mu.Unlock()

	n.mu.Lock()
	n.dependencies = append(n.dependencies, upstream)
	n.mu.Unlock()

	n.rt.scheduleResort()
	n.ensureRankAbove(upRank)

	n.mu.Lock()
	selfRank := n.rank
	n.mu.Unlock()
	if selfRank <= upRank {
		invariantViolation("node %s rank %d did not end up above dependency %s rank %d", n.ID, selfRank, upstream.ID, upRank)
	}
}

// RemoveDependency unlinks self from upstream in both directions.
func (n *Node) RemoveDependency(upstream *Node) {
	n.mu.Lock()
	filtered := n.dependencies[:0:0]
	for _, d := range n.dependencies {
		if d != upstream {
			filtered = append(filtered, d)
		}
	}
	n.dependencies = filtered
	n.mu.Unlock()

	upstream.mu.Lock()
	kept := upstream.dependents[:0:0]
	for _, w := range upstream.dependents {
		if w.n != n {
			kept = append(kept, w)
		}
	}
	upstream.dependents = kept
	upstream.mu.Unlock()

	n.rt.gc.decRef(upstream)
}

// RemoveAllDependencies detaches every dependency edge — used by
// Stream.Once's post-phase cutover so later sends no longer reach it.
func (n *Node) RemoveAllDependencies() {
	n.mu.Lock()
	deps := n.dependencies
	n.dependencies = nil
	n.mu.Unlock()

	for _, d := range deps {
		d.mu.Lock()
		kept := d.dependents[:0:0]
		for _, w := range d.dependents {
			if w.n != n {
				kept = append(kept, w)
			}
		}
		d.dependents = kept
		d.mu.Unlock()
		n.rt.gc.decRef(d)
	}
}

// AddUpdateDependency records a non-structural trace root: a node the
// update closure reads (e.g. a cell sampled via snapshot) without it
// being a propagation dependency. It is kept strongly alive and traced
// by the cycle collector, but excluded from rank and dirty propagation.
func (n *Node) AddUpdateDependency(dep *Node) {
	n.rt.gc.incRef(dep)
	n.mu.Lock()
	n.updateDependencies = append(n.updateDependencies, dep)
	n.mu.Unlock()
}

// AddKeepAlive extends dep's lifetime to at least that of n.
func (n *Node) AddKeepAlive(dep *Node) {
	n.rt.gc.incRef(dep)
	n.mu.Lock()
	n.keepAlive = append(n.keepAlive, dep)
	n.mu.Unlock()
}

// AddCleanup registers a closure run when the node is finalised.
func (n *Node) AddCleanup(f func()) {
	n.mu.Lock()
	n.cleanups = append(n.cleanups, f)
	n.mu.Unlock()
}

// ensureRankAbove bumps n's rank above rank if needed and propagates the
// bump to dependents iteratively (explicit stack, visited set) to avoid
// stack overflow on long dependency chains.
func (n *Node) ensureRankAbove(rank uint64) {
	visited := make(map[uuid.UUID]bool)
	type work struct {
		node *Node
		rank uint64
	}
	stack := []work{{n, rank}}
	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		w.node.mu.Lock()
		if visited[w.node.ID] {
			w.node.mu.Unlock()
			continue
		}
		visited[w.node.ID] = true
		if w.node.rank > w.rank {
			w.node.mu.Unlock()
			continue
		}
		newRank := w.rank + 1
		w.node.rank = newRank
		w.node.mu.Unlock()

		for _, d := range w.node.liveDependents() {
			stack = append(stack, work{d, newRank})
		}
	}
}

func (n *Node) Release() {
	n.rt.gc.decRef(n)
}

func (n *Node) Retain() {
	n.rt.gc.incRef(n)
}

func (n *Node) downgrade() *weakNode {
	n.mu.Lock()
	n.weak++
	n.mu.Unlock()
	return &weakNode{n: n}
}
