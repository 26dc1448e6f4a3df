// Package errors defines the failure taxonomy shared by the upload and
// submission pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable failure category published to observers.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNetwork    Kind = "NETWORK"
	KindUpload     Kind = "UPLOAD"
	KindFileSize   Kind = "FILE_SIZE"
	KindFileType   Kind = "FILE_TYPE"
	KindServer     Kind = "SERVER"
	KindTimeout    Kind = "TIMEOUT"
	KindUnknown    Kind = "UNKNOWN"
)

// Error is an error raised with an explicit Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Meta    map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithMeta attaches a key/value pair and returns the same error.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// ResponseCarrier is implemented by transport errors that carry a structured
// response from the remote side.
type ResponseCarrier interface {
	error
	StatusCode() int
	ResponseBody() []byte
}

// Classify maps err onto a Kind. An explicit Kind anywhere in the chain wins,
// then a structured transport response means NETWORK, otherwise UNKNOWN.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	var carrier ResponseCarrier
	if errors.As(err, &carrier) {
		return KindNetwork
	}

	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return Classify(err) == kind
}

// Message returns the human-legible message for observers.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Error()
	}
	return err.Error()
}
