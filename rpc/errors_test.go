package rpc

import (
	"errors"
	"testing"
)

func TestMethodErrorUnwrapsToCause(t *testing.T) {
	me := &MethodError{Method: Method{MethodID: 3}, Err: errBadTarget}
	if me.Error() != errBadTarget.Error() {
		t.Fatalf("want %q, got %q", errBadTarget.Error(), me.Error())
	}
	if !errors.Is(me, errBadTarget) {
		t.Fatal("errors.Is should see through MethodError to its cause")
	}
}

func TestBootstrapErrorUnwrapsToCause(t *testing.T) {
	be := bootstrapError{err: errNoMainInterface}
	if be.Error() != errNoMainInterface.Error() {
		t.Fatalf("want %q, got %q", errNoMainInterface.Error(), be.Error())
	}
	if !errors.Is(be, errNoMainInterface) {
		t.Fatal("errors.Is should see through bootstrapError to its cause")
	}
}
