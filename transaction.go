package reflow

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/reflow-fp/reflow/extensions"
)

// Runtime is the transaction driver: a re-entrant scope with a monotone
// depth counter, a dirty set drained in rank order, and pre_eot/
// pre_post/post hook queues. Only the outermost Leave drives
// propagation — grounded on
// _examples/original_source/src/sodium/impl_/sodium_ctx.rs (propergate)
// and src/sodium/transaction.rs (the prioritized, rank-then-sequence
// ordered entry queue).
type Runtime struct {
	mu sync.Mutex

	gc *ccmm

	depth int

	nextSeqCounter uint64
	nodeCount      uint64
	txnEpoch       uint64

	resortRequired bool

	dirtySet map[uuid.UUID]*Node

	preEOT  []func()
	prePost []func()
	post    []func()

	keepAlive map[uuid.UUID]*Node

	// registry is a diagnostic-only weak registry of every node ever
	// created by this runtime, used solely to render graph snapshots
	// for extensions.GraphAware extensions on panic. It never pins a
	// node alive: entries are weakNode, upgraded lazily, and dead
	// entries are pruned on each snapshot.
	registryMu sync.Mutex
	registry   map[uuid.UUID]*weakNode

	extensions []extensions.Extension

	callbackDepth int

	logger *slog.Logger
}

// RuntimeOption configures a Runtime at construction time using the
// functional-options idiom.
type RuntimeOption func(*Runtime)

// WithExtension installs an extensions.Extension on the runtime.
func WithExtension(ext extensions.Extension) RuntimeOption {
	return func(rt *Runtime) {
		rt.extensions = append(rt.extensions, ext)
	}
}

// WithLogger sets the runtime's diagnostic logger. Defaults to
// slog.Default() when omitted.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		rt.logger = logger
	}
}

// NewRuntime constructs an isolated runtime — callers needing concurrent,
// independent graphs (tests in particular) should each get their own
// instance rather than share a package-level singleton.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		gc:        newCCMM(),
		dirtySet:  make(map[uuid.UUID]*Node),
		keepAlive: make(map[uuid.UUID]*Node),
		registry:  make(map[uuid.UUID]*weakNode),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	for _, ext := range rt.extensions {
		ext.Init(rt.logger)
	}
	return rt
}

func (rt *Runtime) nextSeq() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.nextSeqCounter++
	return rt.nextSeqCounter
}

func (rt *Runtime) incNodeCount() {
	rt.mu.Lock()
	rt.nodeCount++
	rt.mu.Unlock()
}

func (rt *Runtime) decNodeCount() {
	rt.mu.Lock()
	rt.nodeCount--
	rt.mu.Unlock()
}

func (rt *Runtime) registerNode(n *Node) {
	rt.registryMu.Lock()
	rt.registry[n.ID] = &weakNode{n: n}
	rt.registryMu.Unlock()
}

// SnapshotGraph renders the currently-live node graph for diagnostics,
// pruning dead registry entries as it goes.
func (rt *Runtime) SnapshotGraph() extensions.GraphSnapshot {
	rt.registryMu.Lock()
	weak := make([]*weakNode, 0, len(rt.registry))
	for _, w := range rt.registry {
		weak = append(weak, w)
	}
	rt.registryMu.Unlock()

	snapshot := make(extensions.GraphSnapshot, 0, len(weak))
	live := make(map[uuid.UUID]*weakNode, len(weak))
	for _, w := range weak {
		n := w.upgrade()
		if n == nil {
			continue
		}
		live[n.ID] = w
		dependents := n.liveDependents()
		names := make([]string, 0, len(dependents))
		for _, d := range dependents {
			names = append(names, d.Name)
		}
		snapshot = append(snapshot, extensions.GraphNode{
			ID:         n.ID.String(),
			Name:       n.Name,
			Rank:       n.Rank(),
			Dependents: names,
		})
	}

	rt.registryMu.Lock()
	rt.registry = live
	rt.registryMu.Unlock()

	return snapshot
}

// NodeCount reports the number of live (not yet freed) nodes.
func (rt *Runtime) NodeCount() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.nodeCount
}

func (rt *Runtime) scheduleResort() {
	rt.mu.Lock()
	rt.resortRequired = true
	rt.mu.Unlock()
}

func (rt *Runtime) markDirty(n *Node) {
	rt.mu.Lock()
	rt.dirtySet[n.ID] = n
	rt.mu.Unlock()
}

func (rt *Runtime) takeDirtyBatch() []*Node {
	rt.mu.Lock()
	batch := make([]*Node, 0, len(rt.dirtySet))
	for _, n := range rt.dirtySet {
		batch = append(batch, n)
	}
	rt.dirtySet = make(map[uuid.UUID]*Node)
	rt.resortRequired = false
	rt.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool {
		ri, rj := batch[i].Rank(), batch[j].Rank()
		if ri != rj {
			return ri < rj
		}
		return batch[i].seq < batch[j].seq
	})
	return batch
}

func (rt *Runtime) schedulePreEOT(f func()) {
	rt.mu.Lock()
	rt.preEOT = append(rt.preEOT, f)
	rt.mu.Unlock()
}

func (rt *Runtime) schedulePrePost(f func()) {
	rt.mu.Lock()
	rt.prePost = append(rt.prePost, f)
	rt.mu.Unlock()
}

func (rt *Runtime) schedulePost(f func()) {
	rt.mu.Lock()
	rt.post = append(rt.post, f)
	rt.mu.Unlock()
}

func (rt *Runtime) takePreEOT() []func() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	batch := rt.preEOT
	rt.preEOT = nil
	return batch
}

func (rt *Runtime) takePrePost() []func() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	batch := rt.prePost
	rt.prePost = nil
	return batch
}

func (rt *Runtime) takePost() []func() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	batch := rt.post
	rt.post = nil
	return batch
}

func (rt *Runtime) addKeepAlive(n *Node) {
	n.Retain()
	rt.mu.Lock()
	rt.keepAlive[n.ID] = n
	rt.mu.Unlock()
}

func (rt *Runtime) removeKeepAlive(n *Node) {
	rt.mu.Lock()
	_, ok := rt.keepAlive[n.ID]
	delete(rt.keepAlive, n.ID)
	rt.mu.Unlock()
	if ok {
		n.Release()
	}
}

// Transaction runs k inside a transaction scope: enter, run k, leave.
func (rt *Runtime) Transaction(k func()) {
	rt.Enter()
	defer rt.Leave()
	k()
}

// Enter increments the transaction depth.
func (rt *Runtime) Enter() {
	rt.mu.Lock()
	rt.depth++
	d := rt.depth
	if d == 1 {
		rt.txnEpoch++
	}
	rt.mu.Unlock()
	if d == 1 {
		for _, ext := range rt.extensions {
			ext.OnTransactionStart()
		}
	}
}

// transactionEpoch identifies the current (or, between transactions,
// the most recently started) top-level transaction. It only changes at
// the start of a new top-level transaction, so two calls made with no
// intervening transaction — whether both inside the same one or both
// outside any — see the same epoch. StreamLoop uses this to enforce
// spec §4.6's "construction and loop_ must occur in the same
// transaction" contract.
func (rt *Runtime) transactionEpoch() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.txnEpoch
}

// Leave decrements the transaction depth and, on returning to zero,
// drives end-of-transaction propagation.
func (rt *Runtime) Leave() {
	rt.mu.Lock()
	rt.depth--
	d := rt.depth
	rt.mu.Unlock()
	if d == 0 {
		rt.propagate()
	}
}

// Depth reports the current transaction nesting depth.
func (rt *Runtime) Depth() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.depth
}

func (rt *Runtime) checkNotReentrant(err error) {
	rt.mu.Lock()
	depth := rt.callbackDepth
	rt.mu.Unlock()
	if depth > 0 {
		panic(err)
	}
}

// propagate implements the end-of-transaction sequence from spec §4.3.
func (rt *Runtime) propagate() {
	rt.depth++

	for {
		batch := rt.takePreEOT()
		if len(batch) == 0 {
			break
		}
		for _, f := range batch {
			f()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			snapshot := rt.SnapshotGraph()
			for _, ext := range rt.extensions {
				if aware, ok := ext.(extensions.GraphAware); ok {
					aware.RecordGraph(snapshot)
				}
				ext.OnPanic(r)
			}
			panic(r)
		}
	}()

	for {
		batch := rt.takeDirtyBatch()
		if len(batch) == 0 {
			break
		}
		for _, n := range batch {
			rt.updateNode(n)
		}
	}

	rt.depth--

	for {
		batch := rt.takePrePost()
		if len(batch) == 0 {
			break
		}
		for _, f := range batch {
			f()
		}
	}

	for {
		batch := rt.takePost()
		if len(batch) == 0 {
			break
		}
		for _, f := range batch {
			f()
		}
	}

	for _, ext := range rt.extensions {
		ext.OnTransactionEnd()
	}

	rt.gc.CollectCycles()
}

// updateNode implements spec §4.3's update_node: depth-first, single-
// visit-per-pass, with dependencies updated before self and dependents
// updated after self fires.
func (rt *Runtime) updateNode(n *Node) {
	n.mu.Lock()
	if n.visited {
		n.mu.Unlock()
		return
	}
	n.visited = true
	n.mu.Unlock()

	rt.schedulePrePost(func() { n.setVisited(false) })

	deps := n.Dependencies()
	for _, dep := range deps {
		if dep.Rank() >= n.Rank() {
			invariantViolation("dependency %s (rank %d) does not precede %s (rank %d)", dep.ID, dep.Rank(), n.ID, n.Rank())
		}
		rt.updateNode(dep)
	}

	anyChanged := false
	for _, dep := range deps {
		if dep.Changed() {
			anyChanged = true
			break
		}
	}

	n.mu.Lock()
	hasUpdate := n.updateFn != nil
	n.mu.Unlock()

	if anyChanged && hasUpdate {
		rt.runUpdate(n)
	}

	if n.Changed() {
		for _, dependent := range n.liveDependents() {
			rt.updateNode(dependent)
		}
	}
}

func (n *Node) setVisited(v bool) {
	n.mu.Lock()
	n.visited = v
	n.mu.Unlock()
}

func (rt *Runtime) runUpdate(n *Node) {
	rt.mu.Lock()
	rt.callbackDepth++
	rt.mu.Unlock()
	defer func() {
		rt.mu.Lock()
		rt.callbackDepth--
		rt.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			panic(newTransactionPanic(n, r))
		}
	}()

	n.mu.Lock()
	fn := n.updateFn
	n.mu.Unlock()

	changed := fn()
	n.setChanged(changed)
}
