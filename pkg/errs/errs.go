// Package errs defines the structured error type surfaced by the image
// pipeline. Every failure that reaches a caller carries an HTTP-style
// status, a stable machine-readable code and a human-readable message,
// optionally wrapping the underlying cause.
package errs

import (
	"errors"
	"fmt"
)

// Error codes returned by the pipeline.
const (
	// CodeTooLargeImage is returned when the encoded result exceeds the
	// configured payload ceiling.
	CodeTooLargeImage = "TooLargeImageException"

	// CodePaddingOutOfBounds is returned when a smart crop rectangle,
	// after padding, does not fit inside the image.
	CodePaddingOutOfBounds = "SmartCrop::PaddingOutOfBounds"

	// CodeFaceIndexOutOfRange is returned when a smart crop requests a
	// face index beyond the detected face set.
	CodeFaceIndexOutOfRange = "SmartCrop::FaceIndexOutOfRange"

	// CodeUnknownEditOperation is returned when an edit specification
	// names an operation the engine does not implement.
	CodeUnknownEditOperation = "UnknownEditOperation"

	// CodeInvalidImage is returned when the request payload cannot be
	// decoded as an image.
	CodeInvalidImage = "InvalidImageData"

	// CodeInvalidEdit is returned when an edit entry carries parameters
	// that cannot be interpreted.
	CodeInvalidEdit = "InvalidEditParameters"

	// CodeNoSuchKey is returned when an overlay source object does not
	// exist in the backing store.
	CodeNoSuchKey = "NoSuchKey"

	// CodeUpstream is returned when a collaborator (store, detector)
	// fails for a reason of its own.
	CodeUpstream = "UpstreamFailure"

	// CodeInternal is the fallback code for unclassified failures.
	CodeInternal = "InternalError"
)

// Error is a pipeline failure with an associated status code.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(status int, code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records err as its cause.
func Wrap(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// From returns err as a *Error, classifying unstructured errors as
// internal failures. A nil err returns nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Status: 500, Code: CodeInternal, Message: err.Error(), Err: err}
}

// Is reports whether err is a *Error carrying the given code.
func Is(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
