package errors

import (
	"fmt"
	"runtime/debug"
)

const detailStackTrace = "stack_trace"

// Safely runs fn and turns a panic into a fatal ErrInternal.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecoverPanic(r)
		}
	}()
	return fn()
}

// RecoverPanic wraps a value returned by recover. Panics are never retried.
func RecoverPanic(r any) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail(detailStackTrace, string(debug.Stack())).
		AsFatal()
}

// StackTrace returns the stack captured by RecoverPanic, if any.
func StackTrace(err error) string {
	var appErr *Error
	if !As(err, &appErr) {
		return ""
	}
	s, _ := appErr.Details[detailStackTrace].(string)
	return s
}
