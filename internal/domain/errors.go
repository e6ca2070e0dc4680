package domain

import (
	"errors"
	"net/http"
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindUnprocessable
	KindBadGateway
)

// Error is the single error type that crosses service boundaries. Its Kind decides the
// status code the gateway answers with; Message is safe to show to clients.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func BadRequest(msg string) *Error    { return NewError(KindBadRequest, msg) }
func Unauthorized(msg string) *Error  { return NewError(KindUnauthorized, msg) }
func Forbidden(msg string) *Error     { return NewError(KindForbidden, msg) }
func NotFound(msg string) *Error      { return NewError(KindNotFound, msg) }
func Unprocessable(msg string) *Error { return NewError(KindUnprocessable, msg) }

func BadGateway(err error) *Error {
	return &Error{Kind: KindBadGateway, Message: "Bad Gateway", Err: err}
}

func (k ErrorKind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus is the inverse of Status, used when an error comes back over RPC.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnprocessableEntity:
		return KindUnprocessable
	case http.StatusBadGateway:
		return KindBadGateway
	default:
		return KindInternal
	}
}

// KindOf reports the kind of err, KindInternal for anything unclassified.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}

// PublicMessage is what a client may see for err.
func PublicMessage(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Kind != KindInternal {
		return domainErr.Message
	}
	return "Internal Server Error"
}
