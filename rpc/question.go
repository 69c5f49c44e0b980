package rpc

// question is the Dispatcher's record of one call this connection has
// sent and not yet received a Return for (spec §4.2; rpc.rs Question).
// It owns the one-shot sink that fulfils the caller's ResponsePromise;
// the Pipeline handed back from Send is a separate, stateless handle
// that only needs the QuestionID, not this record.
type question struct {
	method         Method
	promise        *ResponsePromise
	awaitingReturn bool
}

func newQuestion(method Method) *question {
	return &question{method: method, promise: newResponsePromise(), awaitingReturn: true}
}
