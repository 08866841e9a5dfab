package util

import "errors"

// PetroError is the project's local error type: a human message plus an
// optional wrapped cause, so callers further up the stack can still
// errors.Is/As through it.
type PetroError struct {
	Message string
	Err     error
}

func (e *PetroError) Error() string {
	return e.Message
}

func (e *PetroError) Unwrap() error {
	return e.Err
}

// ErrBufferPoolExhausted is the sentinel cause behind BufferpoolExhaustedError.
var ErrBufferPoolExhausted = errors.New("buffer pool: no victim frame available")

// BufferpoolExhaustedError is returned by NewPage/FetchPage when every frame
// is pinned and the replacer has no evictable candidate.
type BufferpoolExhaustedError struct {
	*PetroError
}

// NewBufferpoolExhaustedError wraps ErrBufferPoolExhausted under the
// caller's message.
func NewBufferpoolExhaustedError(message string) *BufferpoolExhaustedError {
	return &BufferpoolExhaustedError{
		PetroError: &PetroError{Message: message, Err: ErrBufferPoolExhausted},
	}
}
