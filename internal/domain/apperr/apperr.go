// Package apperr defines the failure kinds shared by every domain package.
//
// Domain errors carry one Kind. Callers classify an error with errors.Is
// against the sentinel values (ErrNotFound, ErrConflict, ...) or with KindOf,
// which is what the HTTP layer uses to pick a status code.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindReferenceNotFound
	KindInvalidArgument
	KindConflict
	KindInvalidToken
	KindUnavailable
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindNotFound:          "not_found",
	KindReferenceNotFound: "reference_not_found",
	KindInvalidArgument:   "invalid_argument",
	KindConflict:          "conflict",
	KindInvalidToken:      "invalid_token",
	KindUnavailable:       "unavailable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Sentinel values, one per kind. Compare with errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrReferenceNotFound = &Error{Kind: KindReferenceNotFound, Msg: "reference not found"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrConflict          = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrInvalidToken      = &Error{Kind: KindInvalidToken, Msg: "invalid token"}
	ErrUnavailable       = &Error{Kind: KindUnavailable, Msg: "unavailable"}
)

// Error is a classified failure with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets a
// specific error such as "order 5 not found" match ErrNotFound.
func (e *Error) Is(target error) bool {
	return Matches(e.Kind, target)
}

// Matches reports whether target is the sentinel (or any *Error) of kind.
// Typed domain errors use it to implement Is.
func Matches(kind Kind, target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == kind
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind, keeping err as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry the whole operation.
func Retryable(err error) bool {
	return KindOf(err) == KindUnavailable
}
