package failure

import (
	"context"
	"errors"
	"fmt"

	"curveExchange/entity"
)

type Kind string

const (
	ValidationError    Kind = "ValidationError"
	NotFound           Kind = "NotFound"
	Unauthorized       Kind = "Unauthorized"
	AlreadyExists      Kind = "AlreadyExists"
	InsufficientFunds  Kind = "InsufficientFunds"
	ZeroValueOperation Kind = "ZeroValueOperation"
	Aborted            Kind = "Aborted"
	Internal           Kind = "Internal"
)

// Error is the only error type returned across the exchange boundary.
// Refund is set when the failed request carried attached value.
type Error struct {
	Kind    Kind
	Message string
	Refund  *entity.Settlement
	cause   error
}

func New(kind Kind, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(msg, args...)}
}

// Wrap keeps err as the cause. Context errors always become Aborted.
func Wrap(kind Kind, err error, msg string, args ...interface{}) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = Aborted
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(msg, args...), cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error by kind, so errors.Is(err, failure.New(NotFound, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// From converts any error into an *Error, classifying unknown errors as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(Internal, err, "internal error")
}

// KindOf returns the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
