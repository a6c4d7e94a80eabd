package reflow

import (
	"sync"

	"github.com/google/uuid"
)

// Router demultiplexes a single input stream into per-key substreams,
// computed lazily and cached so repeated requests for the same key
// share one filter node instead of re-scanning the input once per
// subscriber. Grounded on
// _examples/original_source/src/sodium/impl_/router.rs, adapted to use
// uuid subscription tokens (the Rust source relies on Drop timing Go
// does not give us) for RemoveOutput/Unsubscribe bookkeeping.
type Router[A any, K comparable] struct {
	rt       *Runtime
	input    *Stream[A]
	selector func(A) K

	mu      sync.Mutex
	outputs map[K]*Stream[A]
	removed map[K]bool

	subMu sync.Mutex
	subs  map[uuid.UUID]*Listener
}

// NewRouter creates a router over input, using selector to compute the
// routing key of each event.
func NewRouter[A any, K comparable](input *Stream[A], selector func(A) K) *Router[A, K] {
	return &Router[A, K]{
		rt:       input.rt,
		input:    input,
		selector: selector,
		outputs:  make(map[K]*Stream[A]),
		removed:  make(map[K]bool),
		subs:     make(map[uuid.UUID]*Listener),
	}
}

// Output returns the substream of events whose selector result equals
// k, creating it on first use. Panics with ErrRouterKeyGone if k was
// previously passed to RemoveOutput.
func (r *Router[A, K]) Output(k K) *Stream[A] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed[k] {
		panic(ErrRouterKeyGone)
	}
	if s, ok := r.outputs[k]; ok {
		return s
	}
	s := r.input.Filter(func(a A) bool { return r.selector(a) == k })
	r.outputs[k] = s
	return s
}

// RemoveOutput retires k: the cached substream is dropped from the
// router, and any later Output(k) call panics with ErrRouterKeyGone.
// A substream already returned for k, and listeners subscribed to it,
// stay wired to the input and keep firing.
func (r *Router[A, K]) RemoveOutput(k K) {
	r.mu.Lock()
	delete(r.outputs, k)
	r.removed[k] = true
	r.mu.Unlock()
}

// Subscribe listens on the k-selected substream, returning a token that
// Unsubscribe accepts later to tear the listener down.
func (r *Router[A, K]) Subscribe(k K, callback func(A)) uuid.UUID {
	l := r.Output(k).Listen(callback)
	token := uuid.New()
	r.subMu.Lock()
	r.subs[token] = l
	r.subMu.Unlock()
	return token
}

// Unsubscribe detaches the listener registered under token. A missing
// or already-removed token is a no-op.
func (r *Router[A, K]) Unsubscribe(token uuid.UUID) {
	r.subMu.Lock()
	l, ok := r.subs[token]
	delete(r.subs, token)
	r.subMu.Unlock()
	if ok {
		l.Unlisten()
	}
}
