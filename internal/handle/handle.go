// Package handle provides single-release ownership of opaque interpreter
// resources and the liveness chain that ties derived handles to their owner.
package handle

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasmbind/errors"
)

// Owner is anything whose lifetime bounds the lifetime of derived handles.
type Owner interface {
	Alive() bool
}

// Handle owns one opaque interpreter resource. The release function runs at
// most once, on the first call to Release.
type Handle[T comparable] struct {
	raw      T
	parent   Owner
	release  func(T) error
	what     string
	released atomic.Bool
	mu       sync.Mutex
	err      error
}

// New wraps raw. A zero raw value means the interpreter failed to produce
// the resource and is reported as an allocation failure.
func New[T comparable](what string, raw T, parent Owner, release func(T) error) (*Handle[T], error) {
	var zero T
	if raw == zero {
		return nil, errors.AllocationFailed(errors.PhaseAlloc, what+": interpreter returned no handle", nil)
	}
	return &Handle[T]{
		raw:     raw,
		parent:  parent,
		release: release,
		what:    what,
	}, nil
}

// Alive reports whether the handle and every ancestor are still unreleased.
func (h *Handle[T]) Alive() bool {
	if h == nil || h.released.Load() {
		return false
	}
	return h.parent == nil || h.parent.Alive()
}

// Raw returns the wrapped resource, or a KindClosed error once the handle or
// any ancestor has been released.
func (h *Handle[T]) Raw(phase errors.Phase) (T, error) {
	if !h.Alive() {
		var zero T
		return zero, errors.Closed(phase, h.what)
	}
	return h.raw, nil
}

// Release frees the resource. Later calls return the first call's result
// without touching the resource again.
func (h *Handle[T]) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released.Swap(true) {
		return h.err
	}
	if h.release != nil {
		h.err = h.release(h.raw)
	}
	return h.err
}

// Released reports whether Release has been called on this handle itself.
func (h *Handle[T]) Released() bool {
	return h.released.Load()
}

// Token is a liveness marker without a resource of its own, used for
// handles that the interpreter frees together with their owner.
type Token struct {
	parent Owner
	dead   atomic.Bool
}

// NewToken creates a token bounded by parent.
func NewToken(parent Owner) *Token {
	return &Token{parent: parent}
}

// Alive reports whether the token and every ancestor are alive.
func (t *Token) Alive() bool {
	if t == nil || t.dead.Load() {
		return false
	}
	return t.parent == nil || t.parent.Alive()
}

// Kill invalidates the token. It is idempotent.
func (t *Token) Kill() {
	t.dead.Store(true)
}
