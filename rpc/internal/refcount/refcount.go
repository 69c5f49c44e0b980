// Package refcount provides reference-counted wrapping of a client
// hook, so that multiple holders can each independently Close their
// reference while the underlying hook is closed exactly once, when the
// last reference drops.  Adapted from the teacher's
// rpc/internal/refcount package (referenced by rpc.go's MainInterface,
// which calls refcount.New then Ref to hand out a second strong
// reference to the same bootstrap interface).
package refcount

import "sync"

// Hook is the minimal capability shape refcount wraps: something that
// can be closed.  The RPC package's ClientHook satisfies this.
type Hook interface {
	Close() error
}

// RefCounted wraps a Hook so that New's first return value and every
// value returned by Ref share one underlying Close.
type RefCounted[H Hook] struct {
	mu    sync.Mutex
	hook  H
	count int
}

// New wraps hook in a RefCounted and returns it along with its first
// Ref.
func New[H Hook](hook H) (*RefCounted[H], *Ref[H]) {
	rc := &RefCounted[H]{hook: hook, count: 1}
	return rc, &Ref[H]{rc: rc}
}

// Ref hands out another strong reference to the same underlying hook.
func (rc *RefCounted[H]) Ref() *Ref[H] {
	rc.mu.Lock()
	rc.count++
	rc.mu.Unlock()
	return &Ref[H]{rc: rc}
}

func (rc *RefCounted[H]) release() error {
	rc.mu.Lock()
	rc.count--
	n := rc.count
	rc.mu.Unlock()
	if n > 0 {
		return nil
	}
	return rc.hook.Close()
}

// Ref is one holder's reference to a RefCounted hook.  Close may only
// be called once per Ref.
type Ref[H Hook] struct {
	rc     *RefCounted[H]
	closed bool
	mu     sync.Mutex
}

// Hook returns the wrapped hook for use (not for storage past Close).
func (r *Ref[H]) Hook() H { return r.rc.hook }

// Close drops this reference, closing the underlying hook once every
// Ref derived from the same RefCounted has been closed.
func (r *Ref[H]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	return r.rc.release()
}
