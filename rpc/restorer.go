package rpc

import "golang.org/x/net/context"

// Restorer is the bootstrap hook used by one endpoint to resolve a
// named sturdy reference (spec §6).  Only the contract is specified
// here; the name-based implementation (a registry, a filesystem, a
// database lookup) is an external collaborator, out of scope for this
// core.
//
// Restore must be callable from the Dispatcher task without blocking it
// for long; a compliant implementation that needs to do real work
// typically delegates to its own goroutine and returns a client that
// proxies to it.
type Restorer interface {
	Restore(ctx context.Context, objectID Ptr) (ClientHook, error)
}

// RestorerFunc adapts a function to a Restorer.
type RestorerFunc func(ctx context.Context, objectID Ptr) (ClientHook, error)

func (f RestorerFunc) Restore(ctx context.Context, objectID Ptr) (ClientHook, error) {
	return f(ctx, objectID)
}

// NoRestorer rejects every bootstrap request, the teacher's default
// when no MainInterface/BootstrapFunc option is supplied.
var NoRestorer Restorer = RestorerFunc(func(ctx context.Context, objectID Ptr) (ClientHook, error) {
	return nil, errNoMainInterface
})
