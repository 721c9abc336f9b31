// Package apperror defines the typed error kinds shared by the chore engine,
// its storage collaborators and the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
)

// Kind discriminates errors so callers can branch without string matching.
type Kind string

const (
	KindInternal               Kind = "internal"
	KindNotFound               Kind = "not_found"
	KindConcurrentModification Kind = "concurrent_modification"
	KindAssignmentRequired     Kind = "assignment_required"
	KindAlreadyUndone          Kind = "already_undone"
	KindInsufficientStock      Kind = "insufficient_stock"
	KindStockDispatch          Kind = "stock_dispatch"
	KindConfiguration          Kind = "configuration"
	KindValidation             Kind = "validation"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrAssignmentRequired     = &Error{Kind: KindAssignmentRequired}
	ErrAlreadyUndone          = &Error{Kind: KindAlreadyUndone}
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock}
	ErrStockDispatch          = &Error{Kind: KindStockDispatch}
	ErrConfiguration          = &Error{Kind: KindConfiguration}
	ErrValidation             = &Error{Kind: KindValidation}
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg = e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind and operation to an existing error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
