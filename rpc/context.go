package rpc

import (
	"runtime"
	"sync"

	"golang.org/x/net/context"
)

// CallContext is handed to a LocalServer.Serve call. Exactly one of
// Fulfill or Fail must eventually be called; the original source
// enforces this with Rust's Drop (an incomplete call context aborts
// the call on scope exit). Go has no destructors, so the same guarantee
// is approximated with a finalizer: if a CallContext is garbage
// collected before either method runs, it fails the call instead of
// leaving the caller's ResponsePromise pending forever.
type CallContext struct {
	conn   *Conn
	ctx    context.Context
	method Method
	params Payload

	mu     sync.Mutex
	done   bool
	onDone func(Response)
}

func newCallContext(conn *Conn, ctx context.Context, m Method, params Payload, onDone func(Response)) *CallContext {
	cctx := &CallContext{conn: conn, ctx: ctx, method: m, params: params, onDone: onDone}
	runtime.SetFinalizer(cctx, (*CallContext).abortOnFinalize)
	return cctx
}

// Context returns the context the call was made under.
func (c *CallContext) Context() context.Context { return c.ctx }

// Method reports which method this call invoked.
func (c *CallContext) Method() Method { return c.method }

// Params returns the call's parameter payload.
func (c *CallContext) Params() Payload { return c.params }

// Export installs server as a capability this connection hosts and
// returns a handle to it, for a Serve implementation that wants to mint
// a fresh capability as part of its results (e.g. a factory method).
// Serve always runs on the Dispatcher goroutine, so this goes straight
// to the export table instead of through Conn.Export's event channel,
// which would have the Dispatcher post to itself and hang forever.
func (c *CallContext) Export(server LocalServer) ClientHook {
	return c.conn.exportDirect(server)
}

// Fulfill completes the call successfully with results.
func (c *CallContext) Fulfill(results Payload) {
	c.finish(Response{Results: results})
}

// Fail completes the call unsuccessfully. Per spec it carries no
// detail: the resulting Return always reports the literal reason
// "aborted" (rpc.rs's CallContextHook::fail/Aborter both hard-code the
// same string), the same outcome a dropped, unresolved CallContext
// produces automatically.
func (c *CallContext) Fail() {
	c.finish(Response{Err: errContextAborted})
}

// failWith is the internal path used when this core itself detects a
// call cannot proceed (no such target, unimplemented descriptor): it
// preserves the specific error for diagnostics, still rendered on the
// wire as exception{reason: err.Error()} rather than the user-facing
// literal "aborted" Fail reports.
func (c *CallContext) failWith(err error) {
	c.finish(Response{Err: err})
}

func (c *CallContext) finish(resp Response) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	onDone := c.onDone
	c.mu.Unlock()
	runtime.SetFinalizer(c, nil)
	if onDone != nil {
		onDone(resp)
	}
}

// abortOnFinalize is the finalizer installed in newCallContext; it is
// also what simulateAbort invokes directly so tests can exercise the
// abort path without depending on GC timing.
func (c *CallContext) abortOnFinalize() {
	c.finish(Response{Err: errContextAborted})
}

// simulateAbort deterministically exercises the abort-on-drop path for
// tests, standing in for the GC running abortOnFinalize.
func (c *CallContext) simulateAbort() {
	c.abortOnFinalize()
}
