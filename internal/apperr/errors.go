// Package apperr defines the error taxonomy shared by the transfer pipeline.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Kind classifies an item-level failure.
type Kind string

const (
	KindDecode             Kind = "decode"
	KindConversion         Kind = "conversion"
	KindConflictUnresolved Kind = "conflict_unresolved"
	KindBridge             Kind = "bridge"
	KindIO                 Kind = "io"
	KindPrecondition       Kind = "precondition"
)

// Error is an error attributed to a single transfer item.
type Error struct {
	Kind Kind
	Item string
	Err  error
}

// New wraps err with a kind and the item it belongs to.
func New(kind Kind, item string, err error) *Error {
	return &Error{Kind: kind, Item: item, Err: err}
}

func (e *Error) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Item, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind returns the classification as a plain string.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// KindOf returns the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Precondition reports a batch-level misconfiguration.
func Precondition(format string, args ...any) error {
	return New(KindPrecondition, "", fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
}
