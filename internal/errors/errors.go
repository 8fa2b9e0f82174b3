package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	// KindConfiguration is fatal at startup: missing linguistic resources,
	// missing or corrupt artifacts, unusable training data.
	KindConfiguration Kind = "CONFIGURATION"
	// KindValidation is a recoverable per-request error, e.g. nothing to classify.
	KindValidation Kind = "VALIDATION"
	// KindArtifactMismatch means the vectorizer and classifier do not belong together.
	KindArtifactMismatch Kind = "ARTIFACT_MISMATCH"
	// KindUpstreamStore means a user or history store could not be reached.
	KindUpstreamStore Kind = "UPSTREAM_STORE"
	// KindConflict is returned when a resource already exists.
	KindConflict Kind = "CONFLICT"
	// KindUnauthorized is returned for missing or invalid credentials.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindInternal covers everything else.
	KindInternal Kind = "INTERNAL"
)

// Error carries a kind, a user-safe message and an optional cause.
// The cause is for operators and must never be shown to end users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Configuration creates a KindConfiguration error.
func Configuration(message string, err error) *Error {
	return New(KindConfiguration, message, err)
}

// Validation creates a KindValidation error.
func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// ArtifactMismatch creates a KindArtifactMismatch error.
func ArtifactMismatch(message string, err error) *Error {
	return New(KindArtifactMismatch, message, err)
}

// UpstreamStore creates a KindUpstreamStore error.
func UpstreamStore(message string, err error) *Error {
	return New(KindUpstreamStore, message, err)
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns a message that is safe to show to end users.
func PublicMessage(err error) string {
	var appErr *Error
	if stderrors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "internal error"
}
