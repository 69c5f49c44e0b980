package rpc

// Pipeline lets a caller address a capability reachable from results
// that have not arrived yet (spec §4.6). Sending a Request against a
// remote target allocates a local Question and returns a Pipeline
// backed by a pipelineClient: GetPipelinedCap composes transforms and
// keeps working indefinitely, since every such call still just adds
// another receiverAnswer-shaped target for the same Question.
//
// Sending a Request whose target was itself local (a deferred call
// against a PromisedAnswer or a bootstrap/local capability) returns a
// PromisedAnswer-local Pipeline instead: per §4.6 this core does not
// support pipelining off of it, so GetPipelinedCap always fails.
type Pipeline struct {
	conn       *Conn
	questionID QuestionID
	ops        []PipelineOp
	local      bool
	err        error
}

func newRemotePipeline(conn *Conn, qid QuestionID) *Pipeline {
	return &Pipeline{conn: conn, questionID: qid}
}

func newLocalPipeline() *Pipeline {
	return &Pipeline{local: true}
}

func failedPipeline(err error) *Pipeline {
	return &Pipeline{err: err}
}

// GetPipelinedCap returns a ClientHook addressing the capability
// reached by applying transform to this pipeline's eventual results.
func (p *Pipeline) GetPipelinedCap(transform []PipelineOp) ClientHook {
	if p.err != nil {
		return ErrorClient(p.err)
	}
	if p.local {
		return ErrorClient(errNoSubPipelining)
	}
	ops := make([]PipelineOp, 0, len(p.ops)+len(transform))
	ops = append(ops, p.ops...)
	ops = append(ops, transform...)
	return newPipelineClient(p.conn, p.questionID, ops)
}

// Copy returns an independent handle bound to the same question, so
// that callers may derive further pipelines from it without aliasing.
func (p *Pipeline) Copy() *Pipeline {
	cp := *p
	cp.ops = append([]PipelineOp(nil), p.ops...)
	return &cp
}
