package rpc

import (
	"testing"

	"golang.org/x/net/context"
)

func TestCallContextFulfill(t *testing.T) {
	var got Response
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { got = r })
	results := Payload{Content: ValuePtr(42)}
	cctx.Fulfill(results)

	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if v, ok := got.Results.Content.Value.(int); !ok || v != 42 {
		t.Fatalf("want fulfilled value 42, got %v", got.Results.Content.Value)
	}
}

func TestCallContextFailAlwaysReportsAborted(t *testing.T) {
	var got Response
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { got = r })
	cctx.Fail()

	if got.Err == nil || got.Err.Error() != "aborted" {
		t.Fatalf(`want "aborted", got %v`, got.Err)
	}
}

func TestCallContextFailWithPreservesDetail(t *testing.T) {
	var got Response
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { got = r })
	cctx.failWith(errBadTarget)

	if got.Err != errBadTarget {
		t.Fatalf("want errBadTarget, got %v", got.Err)
	}
}

func TestCallContextResolvesOnce(t *testing.T) {
	calls := 0
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) { calls++ })
	cctx.Fulfill(Payload{})
	cctx.Fail()
	cctx.simulateAbort()

	if calls != 1 {
		t.Fatalf("want exactly one onDone invocation, got %d", calls)
	}
}

func TestCallContextSimulateAbortWithoutResolution(t *testing.T) {
	var got Response
	resolved := false
	cctx := newCallContext(nil, context.Background(), Method{}, Payload{}, func(r Response) {
		got = r
		resolved = true
	})
	cctx.simulateAbort()

	if !resolved {
		t.Fatal("simulateAbort should resolve an otherwise-unresolved call")
	}
	if got.Err == nil || got.Err.Error() != "aborted" {
		t.Fatalf(`want "aborted", got %v`, got.Err)
	}
}
