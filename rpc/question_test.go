package rpc

import "testing"

func TestNewQuestionStartsAwaitingReturn(t *testing.T) {
	q := newQuestion(Method{InterfaceID: 1, MethodID: 2})
	if !q.awaitingReturn {
		t.Fatal("a fresh question should be awaiting its return")
	}
	if q.promise == nil {
		t.Fatal("a fresh question must own a response promise")
	}
	if q.method.InterfaceID != 1 || q.method.MethodID != 2 {
		t.Fatalf("unexpected method: %+v", q.method)
	}
}
