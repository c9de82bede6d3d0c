package xvfs

import (
	"errors"
	"testing"

	"github.com/gokernel/xvfs/internal/invariant"
)

func TestStructuredError(t *testing.T) {
	err := NewError("inode.alloc", ErrCodeInvalidParameters, "inode table full")

	if err.Op != "inode.alloc" {
		t.Errorf("Expected Op=inode.alloc, got %s", err.Op)
	}
	if err.Code != ErrCodeInvalidParameters {
		t.Errorf("Expected Code=ErrCodeInvalidParameters, got %s", err.Code)
	}

	expected := "xvfs: inode.alloc: inode table full"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := &Error{Code: ErrCodeIO}
	b := &Error{Op: "bcache.alloc", Code: ErrCodeIO, Msg: "disk full"}

	if !errors.Is(b, a) {
		t.Error("expected errors.Is to match on Code regardless of Op/Msg")
	}
}

func TestWrapErrorPreservesStructuredError(t *testing.T) {
	inner := NewError("log.commit", ErrCodeIO, "short write")
	wrapped := WrapError("fs.sync", inner)

	if wrapped.Code != ErrCodeIO {
		t.Errorf("Code = %s, want ErrCodeIO", wrapped.Code)
	}
	if wrapped.Op != "fs.sync" {
		t.Errorf("Op = %s, want fs.sync", wrapped.Op)
	}
}

func TestWrapErrorReclassifiesInvariantViolation(t *testing.T) {
	inner := &invariant.Error{Name: "bcache.no_free_blocks", Detail: "bitmap exhausted"}
	wrapped := WrapError("fs.write", inner)

	if wrapped.Code != ErrCodeInvariantViolation {
		t.Errorf("Code = %s, want ErrCodeInvariantViolation", wrapped.Code)
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if WrapError("fs.write", nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("fs.write", ErrCodeIO, "device unavailable")

	if !IsCode(err, ErrCodeIO) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeNotFound) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeIO) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestRecoverInvariantConvertsPanicToError(t *testing.T) {
	var err error
	func() {
		defer recoverInvariant("fs.write", &err)
		invariant.Violate("bcache.no_free_blocks", "bitmap exhausted")
	}()

	if err == nil {
		t.Fatal("expected recoverInvariant to populate err")
	}
	if !IsCode(err, ErrCodeInvariantViolation) {
		t.Errorf("got code %v, want ErrCodeInvariantViolation", err)
	}
}

func TestRecoverInvariantRepanicsOtherValues(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a non-invariant panic to propagate")
		}
	}()
	var err error
	defer recoverInvariant("fs.write", &err)
	panic("some unrelated bug")
}
