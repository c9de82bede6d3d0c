package xvfs

import (
	"errors"
	"fmt"

	"github.com/gokernel/xvfs/internal/invariant"
)

// Error represents a structured xvfs error with operation context.
type Error struct {
	Op    string    // operation that failed, e.g. "inode.alloc", "log.commit"
	Code  ErrorCode // high-level error category
	Msg   string    // human-readable message
	Inner error     // wrapped error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("xvfs: %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("xvfs: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support based on error code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode represents high-level error categories.
type ErrorCode string

const (
	ErrCodeInvalidParameters  ErrorCode = "invalid parameters"
	ErrCodeNotFound           ErrorCode = "not found"
	ErrCodeNameExists         ErrorCode = "name already exists"
	ErrCodeCorruptImage       ErrorCode = "corrupt filesystem image"
	ErrCodeIO                 ErrorCode = "I/O error"
	ErrCodeInvariantViolation ErrorCode = "internal invariant violated"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps an existing error with xvfs operation context. A
// wrapped *invariant.Error is reclassified as ErrCodeInvariantViolation
// — this is the one place a recovered panic from the core crosses
// into the returned-error API.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if xe, ok := inner.(*Error); ok {
		return &Error{Op: op, Code: xe.Code, Msg: xe.Msg, Inner: xe.Inner}
	}
	var ie *invariant.Error
	if errors.As(inner, &ie) {
		return &Error{Op: op, Code: ErrCodeInvariantViolation, Msg: ie.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeIO, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code == code
	}
	return false
}

// recoverInvariant turns a panicking *invariant.Error crossing a public
// API boundary into a returned error, the one documented fork (spec §7)
// where a core invariant violation does not propagate as a fatal
// panic. Any other panic value is re-raised: those remain genuine bugs.
func recoverInvariant(op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*invariant.Error); ok {
		*errp = WrapError(op, ie)
		return
	}
	panic(r)
}
