// Package apperr defines the typed failures surfaced to API callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindConfiguration
	KindNotAuthorized
	KindSelfApproval
	KindAlreadyActed
	KindInvalidState
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration_error"
	case KindNotAuthorized:
		return "not_authorized"
	case KindSelfApproval:
		return "self_approval"
	case KindAlreadyActed:
		return "already_acted"
	case KindInvalidState:
		return "invalid_state"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a kind to the response status used by the handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindAlreadyActed, KindInvalidState:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindNotAuthorized, KindSelfApproval:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind alone, so callers can compare against the
// package-level sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrSelfApproval  = &Error{Kind: KindSelfApproval}
	ErrAlreadyActed  = &Error{Kind: KindAlreadyActed}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrNotFound      = &Error{Kind: KindNotFound}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
