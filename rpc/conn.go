package rpc

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/context"

	"zenhive.dev/capnrpc/rpc/internal/refcount"
)

// connParams collects the options a Conn is built with, the way the
// teacher's own connParams/ConnOption pair does.
type connParams struct {
	sendBufferSize int
	restorer       Restorer
	mainCloser     io.Closer
	log            zerolog.Logger
}

// ConnOption configures a Conn at construction time.
type ConnOption struct {
	f func(*connParams)
}

// SendBufferSize bounds how many outgoing messages the Writer task may
// have queued before NewConn's internal send blocks the Dispatcher.
func SendBufferSize(numMsgs int) ConnOption {
	return ConnOption{func(p *connParams) { p.sendBufferSize = numMsgs }}
}

// WithRestorer installs the Restorer used to answer bootstrap Restore
// requests from the peer. Without it, every Restore fails (NoRestorer).
func WithRestorer(r Restorer) ConnOption {
	return ConnOption{func(p *connParams) { p.restorer = r }}
}

// MainInterface is a WithRestorer convenience for the common case of a
// vat with one persistent main interface instead of a sturdy-ref
// registry keyed by object id: every bootstrap request, regardless of
// what object id it names, resolves to hook.
//
// hook is wrapped in a refcounted reference (internal/refcount) the
// same way the teacher's own MainInterface wraps the capnp.Client it is
// given: this connection keeps a second, independent reference that it
// releases on Close, so that hook — commonly shared across more than
// one Conn, or kept alive by the caller for other purposes — is never
// torn down just because this one connection shut down.
func MainInterface(hook ClientHook) ConnOption {
	rc, mainRef := refcount.New(hook)
	connRef := rc.Ref()
	return ConnOption{func(p *connParams) {
		p.restorer = RestorerFunc(func(ctx context.Context, _ Ptr) (ClientHook, error) {
			return mainRef.Hook(), nil
		})
		p.mainCloser = connRef
	}}
}

// ConnLog installs a logger for this connection's lifecycle and
// per-message tracing. Without it, logging is disabled.
func ConnLog(log zerolog.Logger) ConnOption {
	return ConnOption{func(p *connParams) { p.log = log }}
}

// exportEntry is one of this connection's Export table slots: a
// locally hosted capability the peer can call (spec §4.2). Per §4.1
// this core does not generalize to arbitrary peer reference counts: an
// export lives until a single Release(id, 1) frees it outright
// (dispatcher.go's handleIncomingRelease), however many outgoing
// messages have named it in the meantime.
type exportEntry struct {
	server LocalServer
}

// importEntry is one of this connection's Import table slots: a
// peer-hosted capability and how many local references we hold to it
// (bumped by importFor, drained by Close; the entry is dropped once it
// reaches zero, and no Release is sent to the peer).
type importEntry struct {
	client *importClient
	refs   uint32
}

// Conn is one RPC connection: a Transport plus the three long-running
// tasks (Reader, Writer, Dispatcher) spec §5 describes. All protocol
// state — the four tables — is owned exclusively by the Dispatcher
// goroutine; every other caller reaches it only by posting an event.
type Conn struct {
	transport  Transport
	restorer   Restorer
	mainCloser io.Closer
	log        zerolog.Logger
	connID     string

	events chan event
	outbox chan Message

	closeOnce sync.Once
	closed    chan struct{}
	doneCh    chan struct{}
	waitErrMu sync.Mutex
	waitErr   error

	// Dispatcher-owned; never touched outside run().
	questions *ExportTable[question]
	answers   *ImportTable[answer]
	exports   *ExportTable[exportEntry]
	imports   *ImportTable[importEntry]
}

// NewConn starts the Reader, Writer and Dispatcher tasks over t and
// returns a handle for issuing calls and exporting capabilities.
func NewConn(t Transport, options ...ConnOption) *Conn {
	params := connParams{sendBufferSize: 16, restorer: NoRestorer, log: defaultLogger}
	for _, opt := range options {
		opt.f(&params)
	}
	c := &Conn{
		transport:  t,
		restorer:   params.restorer,
		mainCloser: params.mainCloser,
		log:        params.log,
		connID:     newConnID(),
		events:    make(chan event),
		outbox:    make(chan Message, params.sendBufferSize),
		closed:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		questions: NewExportTable[question](),
		answers:   NewImportTable[answer](),
		exports:   NewExportTable[exportEntry](),
		imports:   NewImportTable[importEntry](),
	}
	go c.readLoop()
	go c.writeLoop()
	go c.run()
	return c
}

// Bootstrap requests the peer's main interface, blocking for the
// Return the way the teacher's Bootstrap does.
func (c *Conn) Bootstrap(ctx context.Context) ClientHook {
	reply := make(chan sendResult, 1)
	select {
	case c.events <- restoreEvent{objectID: Ptr{}, reply: reply}:
	case <-c.closed:
		return ErrorClient(ErrConnClosed)
	case <-ctx.Done():
		return ErrorClient(ctx.Err())
	}
	var res sendResult
	select {
	case res = <-reply:
	case <-c.closed:
		return ErrorClient(ErrConnClosed)
	}
	resp, err := res.promise.Wait(ctx)
	if err != nil {
		return ErrorClient(err)
	}
	hook := resp.Results.CapAt(resp.Results.Content)
	if hook == nil {
		return ErrorClient(ErrNullClient)
	}
	return hook
}

// Export installs server as a capability this connection hosts and
// returns a handle to it, suitable for returning from a Restorer or
// from a Call's results. Call this from outside the Dispatcher (e.g.
// right after NewConn, or from a goroutine of your own); a Serve
// implementation that wants to export mid-call should use
// CallContext.Export instead, since it already runs on the Dispatcher
// goroutine this method would otherwise have to signal.
func (c *Conn) Export(server LocalServer) ClientHook {
	reply := make(chan ClientHook, 1)
	select {
	case c.events <- exportEvent{server: server, reply: reply}:
	case <-c.closed:
		return ErrorClient(ErrConnClosed)
	}
	select {
	case hook := <-reply:
		return hook
	case <-c.closed:
		return ErrorClient(ErrConnClosed)
	}
}

// exportDirect is Export's Dispatcher-goroutine-local counterpart: it
// touches c.exports straight away instead of round-tripping through
// c.events, for callers (CallContext.Export, run's own exportEvent
// case) already known to be running on that goroutine.
func (c *Conn) exportDirect(server LocalServer) ClientHook {
	id := c.exports.Allocate(&exportEntry{server: server})
	return newLocalClient(c, ExportID(id), server)
}

// Close tears the connection down: it stops the Dispatcher, releases
// every export, and closes the underlying Transport.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	<-c.doneCh
	return c.waitErr
}

// Wait blocks until the connection's Dispatcher exits (Reader EOF,
// an unrecoverable send failure, or Close), returning the reason.
func (c *Conn) Wait() error {
	<-c.doneCh
	c.waitErrMu.Lock()
	defer c.waitErrMu.Unlock()
	return c.waitErr
}

func (c *Conn) finish(err error) {
	c.waitErrMu.Lock()
	if c.waitErr == nil {
		c.waitErr = err
	}
	c.waitErrMu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

// sendCall is ClientHook.NewCall's Send path into the Dispatcher: it
// posts an outgoingEvent and waits for the Dispatcher to turn it into
// either a wire Call (remote target) or a local dispatch (deferred
// target), returning whatever ResponsePromise/Pipeline pair results.
func (c *Conn) sendCall(ctx context.Context, req *Request) (*ResponsePromise, *Pipeline) {
	reply := make(chan sendResult, 1)
	select {
	case c.events <- outgoingEvent{req: req, ctx: ctx, reply: reply}:
	case <-c.closed:
		return failedResponsePromise(ErrConnClosed), failedPipeline(ErrConnClosed)
	case <-ctx.Done():
		return failedResponsePromise(ctx.Err()), failedPipeline(ctx.Err())
	}
	select {
	case res := <-reply:
		return res.promise, res.pipeline
	case <-c.closed:
		return failedResponsePromise(ErrConnClosed), failedPipeline(ErrConnClosed)
	}
}

// importFor returns (creating if necessary) the import handle for a
// senderHosted descriptor naming id, bumping its local reference
// count. Only ever called from the Dispatcher goroutine.
func (c *Conn) importFor(id ExportID) ClientHook {
	iid := ImportID(id)
	entry := c.imports.Get(uint32(iid))
	if entry == nil {
		entry = &importEntry{client: newImportClient(c, iid)}
		c.imports.Insert(uint32(iid), entry)
	}
	entry.refs++
	return entry.client
}

// releaseImport is importClient.Close's entry point: it posts a
// releaseImportEvent so the reference-count decrement happens on the
// Dispatcher goroutine.
func (c *Conn) releaseImport(id ImportID) {
	select {
	case c.events <- releaseImportEvent{id: id}:
	case <-c.closed:
	}
}

// enqueueOutgoing hands msg to the Writer task. Only ever called from
// the Dispatcher goroutine, so message order on the wire matches
// Dispatcher processing order (spec §5).
func (c *Conn) enqueueOutgoing(msg Message) {
	select {
	case c.outbox <- msg:
	case <-c.closed:
	}
}

func (c *Conn) readLoop() {
	for {
		msg, err := c.transport.RecvMessage(context.Background())
		if err != nil {
			c.log.Debug().Str("conn", c.connID).Err(err).Msg("rpc: read loop exiting")
			select {
			case c.events <- shutdownEvent{err: err}:
			case <-c.closed:
			}
			return
		}
		select {
		case c.events <- incomingMessageEvent{msg: msg}:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.outbox:
			if err := c.transport.SendMessage(context.Background(), msg); err != nil {
				c.log.Debug().Str("conn", c.connID).Err(err).Msg("rpc: write loop exiting")
				select {
				case c.events <- shutdownEvent{err: err}:
				case <-c.closed:
				}
				return
			}
		case <-c.closed:
			return
		}
	}
}
