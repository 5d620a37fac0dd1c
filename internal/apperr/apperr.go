// Package apperr classifies failures by behaviour rather than by Go
// type name, per the error-handling design in spec.md §7.
package apperr

import "fmt"

// Kind is one of the behavioural error categories from spec.md §7.
type Kind string

const (
	// Transient external - retried with bounded backoff.
	KindNetworkError        Kind = "NetworkError"
	KindRateLimited         Kind = "RateLimited"
	KindTranscriptionTimeout Kind = "TranscriptionTimeout"

	// Permanent external - terminal for the video.
	KindNotFound     Kind = "NotFound"
	KindAuthRequired Kind = "AuthRequired"
	KindUnsupported  Kind = "Unsupported"

	// Data integrity - fatal for the current video.
	KindIndexWriteError    Kind = "IndexWriteError"
	KindCorruptTranscript  Kind = "CorruptTranscript"
	KindEmbeddingMismatch  Kind = "EmbeddingMismatch"

	// Protocol - surfaced as HTTP 4xx.
	KindValidationError   Kind = "ValidationError"
	KindJobNotFound       Kind = "JobNotFound"
	KindJobNotPausable    Kind = "JobNotPausable"
	KindJobNotResumable   Kind = "JobNotResumable"
	KindJobAlreadyTerminal Kind = "JobAlreadyTerminal"

	// Internal - HTTP 500 with a generic reason.
	KindInternalError Kind = "InternalError"
)

// Error wraps an underlying cause with a behavioural Kind.
type Error struct {
	kind    Kind
	reason  string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.reason, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.reason)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Kind returns the behavioural category of the error.
func (e *Error) Kind() Kind { return e.kind }

// New builds an Error of the given kind with a single-line reason.
func New(kind Kind, reason string) *Error {
	return &Error{kind: kind, reason: reason}
}

// Wrap builds an Error of the given kind, preserving the cause for logs.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{kind: kind, reason: reason, wrapped: cause}
}

// As extracts an *Error from err, reporting ok=false if err isn't one.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}

// KindOf returns the Kind of err, or KindInternalError if uncategorised.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.kind
	}
	return KindInternalError
}

// Transient reports whether the kind is retried within a pipeline run.
func (k Kind) Transient() bool {
	switch k {
	case KindNetworkError, KindRateLimited, KindTranscriptionTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the HTTP status the control plane returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidationError:
		return 400
	case KindJobNotFound, KindNotFound:
		return 404
	case KindAuthRequired:
		return 401
	case KindJobNotPausable, KindJobNotResumable, KindJobAlreadyTerminal:
		return 409
	case KindRateLimited:
		return 429
	case "":
		return 200
	default:
		return 500
	}
}
