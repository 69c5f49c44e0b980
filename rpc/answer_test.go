package rpc

import (
	"testing"

	"golang.org/x/net/context"
)

func TestAnswerBuffersPipelinedCallsUntilSent(t *testing.T) {
	conn := newTestConn()
	a := newAnswer()

	var order []int
	makeCctx := func(i int) *CallContext {
		return newCallContext(conn, context.Background(), Method{}, Payload{}, func(Response) { order = append(order, i) })
	}

	a.receive(conn, Method{MethodID: 1}, nil, Payload{}, makeCctx(1))
	a.receive(conn, Method{MethodID: 2}, nil, Payload{}, makeCctx(2))
	a.receive(conn, Method{MethodID: 3}, nil, Payload{}, makeCctx(3))

	if len(order) != 0 {
		t.Fatalf("pipelined calls must not resolve before the answer is sent, got %v", order)
	}

	results := Payload{}
	results.Content = results.NewCap(newLocalClient(conn, 0, LocalServerFunc(
		func(ctx context.Context, m Method, params Payload, cctx *CallContext) { cctx.Fulfill(Payload{}) })))
	a.sent(conn, results, nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("want drain order [1 2 3], got %v", order)
	}
}

func TestAnswerDispatchFailsWithAnswerError(t *testing.T) {
	a := newAnswer()
	var got Response
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { got = r })
	a.sent(nil, Payload{}, errBadTarget)
	a.dispatch(nil, Method{}, nil, Payload{}, cctx)

	if got.Err != errBadTarget {
		t.Fatalf("want errBadTarget, got %v", got.Err)
	}
}

func TestAnswerReceiveDispatchesImmediatelyWhenAlreadySent(t *testing.T) {
	conn := newTestConn()
	a := newAnswer()
	results := Payload{}
	results.Content = results.NewCap(newLocalClient(conn, 0, LocalServerFunc(
		func(ctx context.Context, m Method, params Payload, cctx *CallContext) { cctx.Fulfill(Payload{}) })))
	a.sent(conn, results, nil)

	var got Response
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { got = r })
	a.receive(conn, Method{}, nil, Payload{}, cctx)

	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
}
