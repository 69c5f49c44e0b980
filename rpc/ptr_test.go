package rpc

import "testing"

func TestPipelineOpString(t *testing.T) {
	if got := PipelineOp{Kind: PipelineOpNoop}.String(); got != "noop" {
		t.Fatalf("want noop, got %q", got)
	}
	if got := (PipelineOp{Kind: PipelineOpGetPointerField, Field: 3}).String(); got != "getPointerField(3)" {
		t.Fatalf("want getPointerField(3), got %q", got)
	}
	if got := (PipelineOp{Kind: PipelineOpKind(99)}).String(); got != "unknown" {
		t.Fatalf("want unknown, got %q", got)
	}
}

func TestTransformPtrWalksNestedFields(t *testing.T) {
	leaf := ValuePtr("leaf")
	root := StructPtr(ValuePtr("zero"), StructPtr(leaf))

	got, err := TransformPtr(root, []PipelineOp{
		{Kind: PipelineOpGetPointerField, Field: 1},
		{Kind: PipelineOpGetPointerField, Field: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Value != "leaf" {
		t.Fatalf("want leaf ptr, got %+v", got)
	}
}

func TestTransformPtrOutOfRangeField(t *testing.T) {
	root := StructPtr(ValuePtr("zero"))
	_, err := TransformPtr(root, []PipelineOp{{Kind: PipelineOpGetPointerField, Field: 5}})
	if err == nil {
		t.Fatal("want an out-of-range error")
	}
}

func TestCapFromResolutionResolvesCapability(t *testing.T) {
	hook := ErrorClient(errBadTarget)
	payload := Payload{}
	payload.Content = payload.NewCap(hook)

	got := capFromResolution(payload, payload.Content, nil, nil)
	if got != hook {
		t.Fatalf("want the installed hook back, got %v", got)
	}
}

func TestCapFromResolutionPropagatesUpstreamError(t *testing.T) {
	got := capFromResolution(Payload{}, Ptr{}, errBadTarget, nil)
	ec, ok := got.(errorClient)
	if !ok || ec.err != errBadTarget {
		t.Fatalf("want errorClient(errBadTarget), got %+v", got)
	}
}

func TestCapFromResolutionNilCapabilityIsNullClient(t *testing.T) {
	got := capFromResolution(Payload{}, Ptr{}, nil, nil)
	ec, ok := got.(errorClient)
	if !ok || ec.err != ErrNullClient {
		t.Fatalf("want errorClient(ErrNullClient), got %+v", got)
	}
}
