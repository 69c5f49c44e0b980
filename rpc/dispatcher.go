package rpc

import (
	"io"

	"golang.org/x/net/context"
)

// event is the Dispatcher's tagged union of work items (spec §9
// "re-architect as a tagged variant"; grounded in rpc.rs's RpcEvent
// enum). Every task other than the Dispatcher itself communicates
// with it solely by constructing and posting one of these, never by
// touching the tables directly (spec §5 shared-resource policy).
type event interface {
	isEvent()
}

// incomingMessageEvent carries one message the Reader task decoded.
type incomingMessageEvent struct{ msg Message }

// sendResult is what an outgoingEvent/restoreEvent gets back: the
// promise that resolves when a Return arrives (or a local dispatch
// completes) and, for remote sends, a Pipeline for pipelining further
// calls before it does.
type sendResult struct {
	promise  *ResponsePromise
	pipeline *Pipeline
}

// outgoingEvent is a Request a user-code goroutine wants sent, posted
// by Conn.sendCall.
type outgoingEvent struct {
	req   *Request
	ctx   context.Context
	reply chan sendResult
}

// restoreEvent is a Bootstrap request posted by Conn.Bootstrap.
type restoreEvent struct {
	objectID Ptr
	reply    chan sendResult
}

// exportEvent installs a LocalServer in the Export table, posted by
// Conn.Export.
type exportEvent struct {
	server LocalServer
	reply  chan ClientHook
}

// releaseImportEvent decrements an import's local reference count,
// posted by importClient.Close.
type releaseImportEvent struct{ id ImportID }

// answerDoneEvent reports that a CallContext serving an incoming Call
// has been resolved (Fulfill or Fail), posted from whatever goroutine
// called it — including, via a throwaway goroutine, the Dispatcher's
// own, so a synchronously-resolved CallContext never re-enters run()
// on its own stack (spec §4.5's cyclic-ownership note; broken here by
// always communicating through this channel, never a direct pointer).
type answerDoneEvent struct {
	id   AnswerID
	resp Response
}

// shutdownEvent tells the Dispatcher to exit: the Reader hit EOF, the
// Writer hit an unrecoverable send error, or Close was called.
type shutdownEvent struct{ err error }

func (incomingMessageEvent) isEvent() {}
func (outgoingEvent) isEvent()        {}
func (restoreEvent) isEvent()         {}
func (exportEvent) isEvent()          {}
func (releaseImportEvent) isEvent()   {}
func (answerDoneEvent) isEvent()      {}
func (shutdownEvent) isEvent()        {}

// postAnswerDone schedules an answerDoneEvent without ever blocking
// the caller, so a CallContext resolved synchronously on the
// Dispatcher's own goroutine cannot deadlock against itself.
func (c *Conn) postAnswerDone(id AnswerID, resp Response) {
	go func() {
		select {
		case c.events <- answerDoneEvent{id: id, resp: resp}:
		case <-c.closed:
		}
	}()
}

// run is the single-threaded Dispatcher loop (spec §5): it owns every
// table and is the only goroutine that ever touches them.
func (c *Conn) run() {
	var shutdownErr error
	defer func() {
		c.releaseExports()
		close(c.outbox)
		c.transport.Close()
		if c.mainCloser != nil {
			c.mainCloser.Close()
		}
		c.finish(shutdownErr)
		close(c.doneCh)
	}()

	for {
		select {
		case ev := <-c.events:
			switch e := ev.(type) {
			case incomingMessageEvent:
				if err := c.handleIncoming(e.msg); err != nil {
					c.enqueueOutgoing(newAbortMessage(err.Error()))
					shutdownErr = err
					return
				}
			case outgoingEvent:
				c.handleOutgoing(e)
			case restoreEvent:
				c.handleRestoreRequest(e)
			case exportEvent:
				e.reply <- c.exportDirect(e.server)
			case releaseImportEvent:
				c.handleReleaseImport(e.id)
			case answerDoneEvent:
				c.handleAnswerDone(e.id, e.resp)
			case shutdownEvent:
				shutdownErr = e.err
				return
			}
		case <-c.closed:
			shutdownErr = ErrConnClosed
			return
		}
	}
}

// handleOutgoing turns a Request into either a wire Call (remote
// target) or an immediate local dispatch (localClient / deferred
// PromisedAnswer target), per spec §4.4.
func (c *Conn) handleOutgoing(e outgoingEvent) {
	e.reply <- c.submitRequest(e.ctx, e.req)
}

// submitRequest does the actual work of handleOutgoing, without the
// event-channel plumbing: the Dispatcher goroutine calls it directly
// (via handleOutgoing) for calls a user goroutine sent in, and also
// reenters it directly from invokeHook for a pipelined sub-call whose
// target turns out to be remote or still-deferred — a case that must
// not go through c.events, since the Dispatcher would be posting to
// its own unbuffered channel with nothing else around to receive it.
func (c *Conn) submitRequest(ctx context.Context, req *Request) sendResult {
	if req.failed != nil {
		return sendResult{promise: failedResponsePromise(req.failed), pipeline: failedPipeline(req.failed)}
	}

	if req.localHook != nil {
		promise := newResponsePromise()
		cctx := newCallContext(c, ctx, req.method, req.Params, func(resp Response) { promise.fulfill(resp) })
		req.localHook.dispatch(ctx, req.method, cctx)
		return sendResult{promise: promise, pipeline: newLocalPipeline()}
	}

	if req.hasDeferredAnswer {
		promise := newResponsePromise()
		cctx := newCallContext(c, ctx, req.method, req.Params, func(resp Response) { promise.fulfill(resp) })
		if ans := c.answers.Get(uint32(req.deferredAnswerID)); ans != nil {
			ans.receive(c, req.method, req.deferredOps, req.Params, cctx)
		} else {
			cctx.failWith(errBadTarget)
		}
		return sendResult{promise: promise, pipeline: newLocalPipeline()}
	}

	makeCapTable(&req.Params)
	q := newQuestion(req.method)
	id := c.questions.Allocate(q)
	c.enqueueOutgoing(Message{
		Which: MessageCall,
		Call: &Call{
			QuestionID:  QuestionID(id),
			Target:      req.target,
			InterfaceID: req.method.InterfaceID,
			MethodID:    req.method.MethodID,
			Params:      req.Params,
		},
	})
	return sendResult{promise: q.promise, pipeline: newRemotePipeline(c, QuestionID(id))}
}

// invokeHook is the one place that dispatches a call against any
// ClientHook flavor — used for an incoming Call's target and for a
// pipelined sub-call resolved off an Answer's arrived results — by
// building a Request exactly the way external callers would and
// feeding it to submitRequest, then relaying its eventual outcome into
// cctx. This never blocks the Dispatcher goroutine it runs on, even
// when hook names a remote or still-pending capability.
func (c *Conn) invokeHook(ctx context.Context, hook ClientHook, method Method, params Payload, cctx *CallContext) {
	req := hook.NewCall(method)
	req.Params = params
	res := c.submitRequest(ctx, req)
	c.relay(res.promise, cctx)
}

// relay arms promise so that whenever it resolves — now or later,
// synchronously or from the Reader processing a future Return — its
// Response is forwarded into cctx instead of a channel nobody reads.
func (c *Conn) relay(promise *ResponsePromise, cctx *CallContext) {
	select {
	case resp := <-promise.ch:
		forwardResponse(resp, cctx)
	default:
		promise.forward = func(resp Response) { forwardResponse(resp, cctx) }
	}
}

func forwardResponse(resp Response, cctx *CallContext) {
	if resp.Err != nil {
		cctx.failWith(resp.Err)
		return
	}
	cctx.Fulfill(resp.Results)
}

// releaseExports closes every still-live export's server, for whatever
// ones implement io.Closer, when the Dispatcher's main loop exits
// (rpc.rs's RpcConnectionState::run releases all exports on shutdown;
// spec §4.2's Answer/Export lifetime table implies but does not spell
// out this teardown step). LocalServer itself carries no Close method,
// since most capabilities need none; one that holds a resource it must
// release implements io.Closer to be told here.
func (c *Conn) releaseExports() {
	c.exports.Each(func(id uint32, e *exportEntry) {
		if closer, ok := e.server.(io.Closer); ok {
			closer.Close()
		}
	})
}

// handleRestoreRequest sends a Restore message for a Bootstrap call,
// reusing the Question table so its Return is handled exactly like any
// other call's.
func (c *Conn) handleRestoreRequest(e restoreEvent) {
	q := newQuestion(Method{})
	id := c.questions.Allocate(q)
	c.enqueueOutgoing(Message{
		Which:   MessageRestore,
		Restore: &Restore{QuestionID: QuestionID(id), ObjectID: e.objectID},
	})
	e.reply <- sendResult{promise: q.promise}
}

// handleReleaseImport drops this end's local reference to a peer-hosted
// capability. Per spec §9(ii) this core never sends an outgoing Release:
// the import table entry is simply forgotten once nothing local still
// holds it, and whatever Export it named on the peer's side leaks for
// the life of the connection. A real client would need to emit the
// Release here to free it; this core documents the gap instead of
// guessing at it.
func (c *Conn) handleReleaseImport(id ImportID) {
	entry := c.imports.Get(uint32(id))
	if entry == nil {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		c.imports.Delete(uint32(id))
	}
}

// handleAnswerDone finishes serving an incoming Call: it writes the
// Return message and drains any pipelined sub-calls that arrived while
// the Answer was Pending (spec §4.2 AnswerSent, §5 ordering guarantee).
func (c *Conn) handleAnswerDone(id AnswerID, resp Response) {
	a := c.answers.Get(uint32(id))
	if a == nil {
		return
	}
	if resp.Err != nil {
		a.sent(c, Payload{}, resp.Err)
		c.enqueueOutgoing(newExceptionReturn(id, resp.Err.Error()))
		return
	}
	makeCapTable(&resp.Results)
	a.sent(c, resp.Results, nil)
	ret := newReturnMessage(id)
	ret.Return.Which = ReturnResults
	ret.Return.Results = resp.Results
	c.enqueueOutgoing(ret)
}

// handleIncoming routes one decoded message to its handler (spec §4.1,
// grounded in rpc.rs's dispatcher run() body). A non-nil return is a
// protocol violation fatal to the connection (spec §3 I3).
func (c *Conn) handleIncoming(msg Message) error {
	switch msg.Which {
	case MessageCall:
		return c.handleIncomingCall(msg)
	case MessageReturn:
		return c.handleIncomingReturn(msg)
	case MessageRestore:
		c.handleIncomingRestore(msg)
	case MessageRelease:
		return c.handleIncomingRelease(msg)
	case MessageFinish:
		// Not acted upon by this core (spec §9, known gap): the Answer
		// table has no analogue of "the caller no longer needs this".
	case MessageAbort:
		c.log.Debug().Str("conn", c.connID).Str("reason", msg.Abort.Reason).Msg("rpc: peer aborted")
	case MessageUnimplemented:
		c.log.Debug().Str("conn", c.connID).Msg("rpc: peer does not implement a message we sent")
	default:
		c.enqueueOutgoing(NewUnimplementedMessage(msg))
	}
	return nil
}

func (c *Conn) handleIncomingCall(msg Message) error {
	call := msg.Call
	if err := populateCapTable(c, &call.Params); err != nil {
		c.enqueueOutgoing(NewUnimplementedMessage(msg))
		return nil
	}

	id := AnswerID(call.QuestionID)
	a := newAnswer()
	// Finish is not acted upon, so an Answer whose Return has already
	// been sent stays in the table; the peer may reuse its id once it has
	// that Return, so only a still-Pending Answer counts as a reused id.
	if old := c.answers.Get(uint32(id)); old != nil && old.status == answerSent {
		c.answers.Delete(uint32(id))
	}
	if !c.answers.Insert(uint32(id), a) {
		return errQuestionReused
	}

	target := c.resolveTarget(call.Target)
	if target == nil {
		a.sent(c, Payload{}, errBadTarget)
		c.enqueueOutgoing(newExceptionReturn(id, errBadTarget.Error()))
		return nil
	}

	method := Method{InterfaceID: call.InterfaceID, MethodID: call.MethodID}
	cctx := newCallContext(c, context.Background(), method, call.Params, func(resp Response) {
		c.postAnswerDone(id, resp)
	})
	c.invokeHook(cctx.Context(), target, method, call.Params, cctx)
	return nil
}

// resolveTarget turns a wire MessageTarget into the ClientHook it
// names from this connection's own point of view: an exported local
// capability, or a capability reachable from one of our own Pending
// or Sent Answers.
func (c *Conn) resolveTarget(mt MessageTarget) ClientHook {
	switch mt.Which {
	case TargetImportedCap:
		entry := c.exports.Get(uint32(mt.ImportedCap))
		if entry == nil {
			return nil
		}
		return newLocalClient(c, mt.ImportedCap, entry.server)
	case TargetPromisedAnswer:
		return newPromisedAnswerClient(c, AnswerID(mt.PromisedAnswer.QuestionID), mt.PromisedAnswer.Transform)
	default:
		return nil
	}
}

// handleIncomingReturn resolves the Question a Return answers. A Return
// naming a QuestionID we have no record of is a protocol violation
// (spec §3 invariant I1, §7): the peer is returning to a question it
// was never asked, or one already retired. rpc.rs's QuestionReceiver
// arm panics on exactly this case; this core reports it as an error so
// run() aborts the connection instead of silently dropping the Return.
func (c *Conn) handleIncomingReturn(msg Message) error {
	ret := msg.Return
	id := uint32(ret.AnswerID)
	q := c.questions.Get(id)
	if q == nil {
		return errUnknownQuestion
	}
	defer c.questions.Release(id)
	c.enqueueOutgoing(newFinishMessage(QuestionID(id), false))

	switch ret.Which {
	case ReturnResults:
		if err := populateCapTable(c, &ret.Results); err != nil {
			q.promise.fulfill(Response{Err: err})
			return nil
		}
		q.promise.fulfill(Response{Results: ret.Results})
	case ReturnException:
		q.promise.fulfill(Response{Err: &ret.Exception})
	default:
		q.promise.fulfill(Response{Err: errUnimplemented})
	}
	return nil
}

func (c *Conn) handleIncomingRestore(msg Message) {
	restore := msg.Restore
	id := AnswerID(restore.QuestionID)
	a := newAnswer()
	c.answers.Insert(uint32(id), a)

	hook, err := c.restorer.Restore(context.Background(), restore.ObjectID)
	if err != nil {
		berr := bootstrapError{err: err}
		a.sent(c, Payload{}, berr)
		c.enqueueOutgoing(newExceptionReturn(id, berr.Error()))
		return
	}

	results := Payload{}
	results.Content = results.NewCap(hook)
	makeCapTable(&results)
	a.sent(c, results, nil)
	ret := newReturnMessage(id)
	ret.Return.Which = ReturnResults
	ret.Return.Results = results
	c.enqueueOutgoing(ret)
}

// handleIncomingRelease frees an Export on a peer Release. Per spec
// §4.1 this core does not generalize to arbitrary reference counts: it
// requires referenceCount == 1 and frees the Export outright, the same
// simplification rpc.rs enforces with a hard assert. Either violating
// that restriction or naming an Export we have no record of is a
// protocol violation (spec §7): fatal, so run() tears the connection
// down instead of this silently no-op'ing.
func (c *Conn) handleIncomingRelease(msg Message) error {
	rel := msg.Release
	if rel.ReferenceCount != 1 {
		return errBadReleaseCount
	}
	if c.exports.Get(uint32(rel.ID)) == nil {
		return errUnknownExport
	}
	c.exports.Release(uint32(rel.ID))
	return nil
}
