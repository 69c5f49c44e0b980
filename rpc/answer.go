package rpc

// answerStatus tags whether an Answer's results have arrived yet
// (spec §4.2, §9 "AnswerSent").
type answerStatus int

const (
	answerPending answerStatus = iota
	answerSent
)

// pipelinedCall is a sub-call buffered against a Pending Answer,
// recorded in arrival order (spec §5 ordering guarantee #2).
type pipelinedCall struct {
	method Method
	ops    []PipelineOp
	params Payload
	cctx   *CallContext
}

// answer is the Dispatcher's record of one call this connection has
// received and not yet returned results for (spec §4.2; rpc.rs
// Answer). While Pending, pipelined sub-calls addressed to it (via a
// receiverAnswer descriptor resolving to a promisedAnswerClient) queue
// in pending; sent() drains them in order once results are available.
type answer struct {
	status  answerStatus
	results Payload
	err     error
	pending []pipelinedCall
}

func newAnswer() *answer {
	return &answer{status: answerPending}
}

// receive buffers a pipelined sub-call if this answer is still
// Pending, or dispatches it immediately against the already-arrived
// results otherwise.
func (a *answer) receive(conn *Conn, method Method, ops []PipelineOp, params Payload, cctx *CallContext) {
	if a.status == answerPending {
		a.pending = append(a.pending, pipelinedCall{method: method, ops: ops, params: params, cctx: cctx})
		return
	}
	a.dispatch(conn, method, ops, params, cctx)
}

func (a *answer) dispatch(conn *Conn, method Method, ops []PipelineOp, params Payload, cctx *CallContext) {
	if a.err != nil {
		cctx.failWith(a.err)
		return
	}
	hook := capFromResolution(a.results, a.results.Content, nil, ops)
	conn.invokeHook(cctx.Context(), hook, method, params, cctx)
}

// sent transitions the answer to Sent and synchronously drains every
// buffered pipelined sub-call in the exact order it was buffered
// (spec §4.2 AnswerSent, §5 ordering guarantee #2).
func (a *answer) sent(conn *Conn, results Payload, err error) {
	a.status = answerSent
	a.results = results
	a.err = err
	pending := a.pending
	a.pending = nil
	for _, c := range pending {
		a.dispatch(conn, c.method, c.ops, c.params, c.cctx)
	}
}
