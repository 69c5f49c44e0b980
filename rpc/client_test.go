package rpc

import (
	"errors"
	"testing"

	"golang.org/x/net/context"
)

func TestErrorClientFailsEveryCall(t *testing.T) {
	wantErr := errors.New("boom")
	hook := ErrorClient(wantErr)

	req := hook.NewCall(Method{InterfaceID: 1, MethodID: 2})
	promise, pipeline := req.Send(context.Background())

	resp, err := promise.Wait(context.Background())
	if err != wantErr || resp.Err != wantErr {
		t.Fatalf("want %v, got resp.Err=%v waitErr=%v", wantErr, resp.Err, err)
	}
	if got := pipeline.GetPipelinedCap(nil); got == nil {
		t.Fatal("a failed pipeline must still hand back a (failing) hook")
	}
}

func TestResponsePromiseForwardBypassesChannel(t *testing.T) {
	promise := newResponsePromise()
	var forwarded Response
	promise.forward = func(r Response) { forwarded = r }

	promise.fulfill(Response{Err: errBadTarget})

	select {
	case <-promise.ch:
		t.Fatal("fulfill should not write to the channel once forward is armed")
	default:
	}
	if forwarded.Err != errBadTarget {
		t.Fatalf("want forwarded errBadTarget, got %v", forwarded.Err)
	}
}

func TestLocalClientDispatchInvokesServer(t *testing.T) {
	var gotMethod Method
	server := LocalServerFunc(func(ctx context.Context, m Method, params Payload, cctx *CallContext) {
		gotMethod = m
		cctx.Fulfill(Payload{Content: ValuePtr("ok")})
	})
	lc := &localClient{id: 3, server: server}

	cctx := newCallContext(nil, context.Background(), Method{MethodID: 7}, Payload{}, func(Response) {})
	lc.dispatch(context.Background(), Method{MethodID: 7}, cctx)

	if gotMethod.MethodID != 7 {
		t.Fatalf("want method 7 reaching the server, got %d", gotMethod.MethodID)
	}
	if d := lc.Descriptor(); d.Which != DescSenderHosted || d.SenderHosted != 3 {
		t.Fatalf("want senderHosted(3) descriptor, got %+v", d)
	}
}
