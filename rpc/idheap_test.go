package rpc

import "testing"

func TestIDHeapPopsSmallestFirst(t *testing.T) {
	h := newIDHeap()
	for _, id := range []uint32{7, 3, 9, 1, 5} {
		h.push(id)
	}
	want := []uint32{1, 3, 5, 7, 9}
	for _, w := range want {
		got, ok := h.popMin()
		if !ok || got != w {
			t.Fatalf("want %d, got %d (ok=%v)", w, got, ok)
		}
	}
	if _, ok := h.popMin(); ok {
		t.Fatal("popMin on an empty heap should report ok=false")
	}
}
