package rpc

import "golang.org/x/net/context"

// Method identifies an interface method being invoked, independent of
// any particular schema (spec §6: Call.interfaceId/methodId).
type Method struct {
	InterfaceID uint64
	MethodID    uint16
}

// ClientHook is a capability reference: something a Call can target.
// Every object reference the core hands out or receives — bootstrap
// caps, Import handles, Pipeline handles, PromisedAnswer handles, and
// whatever a Restorer or local server returns — implements this.
//
// NewCall begins a request against the capability this hook names
// (spec §4.4: "All client handles expose one operation: newCall"),
// uniformly for every flavor — there is no separate "invoke this
// hook directly" entry point, since even a local dispatch is just a
// Request whose Send resolves without touching the wire (see
// Conn.invokeHook). Descriptor reports how to describe this hook when
// it is placed into another outgoing message's capability table (spec
// §4.3); Close drops this reference.
type ClientHook interface {
	NewCall(m Method) *Request
	Descriptor() CapDescriptor
	Close() error
}

// errorClient is a ClientHook every method call on which fails
// immediately with a fixed error, mirroring capnp's ErrorClient and
// used whenever a transform or restore fails to produce a real
// capability (ptr.go's capFromResolution, restorer failures).
type errorClient struct{ err error }

// ErrorClient returns a capability whose every call fails with err.
func ErrorClient(err error) ClientHook {
	return errorClient{err: err}
}

func (e errorClient) NewCall(m Method) *Request {
	return &Request{method: m, failed: e.err}
}

func (e errorClient) Descriptor() CapDescriptor {
	return CapDescriptor{Which: DescNone}
}

func (e errorClient) Close() error { return nil }

// Request is an in-progress call built by ClientHook.NewCall.  Callers
// fill Params (and its Caps, via Params.NewCap) before calling Send.
type Request struct {
	Params Payload

	conn   *Conn
	method Method
	target MessageTarget

	// localHook, when set, means this call resolves directly against an
	// in-process capability (a localClient) rather than the wire.
	localHook localDispatch

	// hasDeferredAnswer marks a call against a PromisedAnswer that is
	// local to this connection: it has no wire target of its own and is
	// instead buffered against the local Answer until that answer is
	// sent (spec §4.4, §4.6; rpc.rs OutgoingDeferred/
	// PromisedAnswerRpcRequest).
	hasDeferredAnswer bool
	deferredAnswerID  AnswerID
	deferredOps       []PipelineOp

	// failed short-circuits Send for a Request built against a hook
	// that is already known to be broken (errorClient).
	failed error
}

// Send dispatches the call and returns a Pipeline that can be used to
// pipeline further calls against the eventual results before they
// arrive, and a ResponsePromise that resolves once they do.
func (r *Request) Send(ctx context.Context) (*ResponsePromise, *Pipeline) {
	if r.failed != nil {
		return failedResponsePromise(r.failed), failedPipeline(r.failed)
	}
	if r.conn == nil {
		return failedResponsePromise(ErrConnClosed), failedPipeline(ErrConnClosed)
	}
	return r.conn.sendCall(ctx, r)
}

// Response is the outcome of a Send'd Request.
type Response struct {
	Results Payload
	Err     error
}

// ResponsePromise resolves to a Response exactly once.
type ResponsePromise struct {
	ch chan Response

	// forward, when set, means some other CallContext's outcome is
	// wired to this promise's eventual Response (Conn.relay): fulfill
	// hands the Response straight to it instead of the channel, since
	// nothing ever calls Wait on a promise used this way.
	forward func(Response)
}

func newResponsePromise() *ResponsePromise {
	return &ResponsePromise{ch: make(chan Response, 1)}
}

func (p *ResponsePromise) fulfill(resp Response) {
	if p.forward != nil {
		p.forward(resp)
		return
	}
	p.ch <- resp
}

// Wait blocks until the response arrives or ctx is done.
func (p *ResponsePromise) Wait(ctx context.Context) (Response, error) {
	select {
	case resp := <-p.ch:
		return resp, resp.Err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func failedResponsePromise(err error) *ResponsePromise {
	p := newResponsePromise()
	p.fulfill(Response{Err: err})
	return p
}

// importClient is a ClientHook bound to an entry in this connection's
// Import table: a capability the peer hosts, named by its ExportID as
// the peer sees it (spec §3 Export/Import table pair; rpc.rs
// ImportClient).
type importClient struct {
	conn *Conn
	id   ImportID
}

func newImportClient(conn *Conn, id ImportID) *importClient {
	return &importClient{conn: conn, id: id}
}

func (c *importClient) NewCall(m Method) *Request {
	return &Request{
		conn:   c.conn,
		method: m,
		target: MessageTarget{Which: TargetImportedCap, ImportedCap: ExportID(c.id)},
	}
}

func (c *importClient) Descriptor() CapDescriptor {
	return CapDescriptor{Which: DescReceiverHosted, ReceiverHosted: c.id}
}

func (c *importClient) Close() error {
	c.conn.releaseImport(c.id)
	return nil
}

// pipelineClient is a ClientHook naming a capability reachable from a
// not-yet-returned Question's eventual results, addressed on the wire
// as target.promisedAnswer (spec §4.4; rpc.rs PipelineClient).
type pipelineClient struct {
	conn       *Conn
	questionID QuestionID
	ops        []PipelineOp
}

func newPipelineClient(conn *Conn, qid QuestionID, ops []PipelineOp) *pipelineClient {
	return &pipelineClient{conn: conn, questionID: qid, ops: ops}
}

func (c *pipelineClient) NewCall(m Method) *Request {
	return &Request{
		conn:   c.conn,
		method: m,
		target: MessageTarget{
			Which: TargetPromisedAnswer,
			PromisedAnswer: PromisedAnswer{
				QuestionID: c.questionID,
				Transform:  c.ops,
			},
		},
	}
}

func (c *pipelineClient) Descriptor() CapDescriptor {
	return CapDescriptor{
		Which: DescReceiverAnswer,
		ReceiverAnswer: PromisedAnswer{
			QuestionID: c.questionID,
			Transform:  c.ops,
		},
	}
}

func (c *pipelineClient) Close() error { return nil }

// promisedAnswerClient is a ClientHook naming a capability reachable
// from a not-yet-sent LOCAL Answer's eventual results: the callee-side
// counterpart of pipelineClient, produced when a receiverAnswer
// descriptor names one of this connection's own Answers (spec §4.4,
// §4.6). Calls against it never touch the wire; they buffer on the
// Answer until it is sent (rpc.rs PromisedAnswerClient/
// PromisedAnswerRpcRequest).
type promisedAnswerClient struct {
	conn     *Conn
	answerID AnswerID
	ops      []PipelineOp
}

func newPromisedAnswerClient(conn *Conn, id AnswerID, ops []PipelineOp) *promisedAnswerClient {
	return &promisedAnswerClient{conn: conn, answerID: id, ops: ops}
}

func (c *promisedAnswerClient) NewCall(m Method) *Request {
	return &Request{
		conn:              c.conn,
		method:            m,
		hasDeferredAnswer: true,
		deferredAnswerID:  c.answerID,
		deferredOps:       c.ops,
	}
}

func (c *promisedAnswerClient) Descriptor() CapDescriptor {
	return CapDescriptor{
		Which: DescReceiverAnswer,
		ReceiverAnswer: PromisedAnswer{
			QuestionID: QuestionID(c.answerID),
			Transform:  c.ops,
		},
	}
}

func (c *promisedAnswerClient) Close() error { return nil }

// LocalServer is implemented by an application capability hosted on
// this end of the connection: the bootstrap object a Restorer returns,
// or any capability passed back in a Call's results. It is the only
// place a call actually does work instead of going out over the wire
// or buffering on an Answer.
type LocalServer interface {
	// Serve handles one method invocation. It must call exactly one of
	// cctx.Fulfill or cctx.Fail, synchronously or from another
	// goroutine, exactly once.
	Serve(ctx context.Context, m Method, params Payload, cctx *CallContext)
}

// LocalServerFunc adapts a function to a LocalServer, for tests and
// simple capabilities that need no extra state.
type LocalServerFunc func(ctx context.Context, m Method, params Payload, cctx *CallContext)

func (f LocalServerFunc) Serve(ctx context.Context, m Method, params Payload, cctx *CallContext) {
	f(ctx, m, params, cctx)
}

// localDispatch is implemented only by localClient: the one ClientHook
// flavor whose Request resolves by calling straight into a LocalServer
// instead of either going out over the wire or buffering on an Answer.
type localDispatch interface {
	dispatch(ctx context.Context, m Method, cctx *CallContext)
}

// localClient wraps a LocalServer as an exportable ClientHook: NewCall
// builds a Request routed straight to Serve without touching the wire.
type localClient struct {
	conn   *Conn
	id     ExportID
	server LocalServer
}

func newLocalClient(conn *Conn, id ExportID, server LocalServer) *localClient {
	return &localClient{conn: conn, id: id, server: server}
}

func (c *localClient) NewCall(m Method) *Request {
	return &Request{conn: c.conn, method: m, localHook: c}
}

func (c *localClient) dispatch(ctx context.Context, m Method, cctx *CallContext) {
	c.server.Serve(ctx, m, cctx.Params(), cctx)
}

func (c *localClient) Descriptor() CapDescriptor {
	return CapDescriptor{Which: DescSenderHosted, SenderHosted: c.id}
}

func (c *localClient) Close() error { return nil }
