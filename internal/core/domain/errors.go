package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown MIME type, event type or pack type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrInvalidTransition indicates a pipeline stage change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrBusClosed indicates the event bus no longer accepts publishes.
	ErrBusClosed = errors.New("event bus closed")

	// ErrDecrypt indicates ciphertext failed authentication or could not be opened.
	ErrDecrypt = errors.New("decryption failed")

	// Error kinds. Every error crossing a component edge maps onto one of these.

	// ErrValidation indicates bad or missing parameters. Not retried.
	ErrValidation = errors.New("validation error")

	// ErrAuthentication indicates the credential is invalid or expired and refresh failed.
	// Processing is paused pending re-authentication.
	ErrAuthentication = errors.New("authentication error")

	// ErrTransientProvider indicates a network or provider-side failure worth retrying.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrPermanent indicates corrupt or unsupported input. Terminal.
	ErrPermanent = errors.New("permanent error")

	// ErrTimeout indicates an action exceeded its declared bound.
	ErrTimeout = errors.New("timeout")
)

// ErrorKind names one class of the error taxonomy.
type ErrorKind string

// Error kinds.
const (
	KindValidation        ErrorKind = "ValidationError"
	KindNotFound          ErrorKind = "NotFound"
	KindAuthentication    ErrorKind = "AuthenticationError"
	KindTransientProvider ErrorKind = "TransientProviderError"
	KindPermanent         ErrorKind = "PermanentError"
	KindTimeout           ErrorKind = "Timeout"
)

// Sentinel returns the sentinel error matched by errors.Is for this kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindAuthentication:
		return ErrAuthentication
	case KindTransientProvider:
		return ErrTransientProvider
	case KindTimeout:
		return ErrTimeout
	default:
		return ErrPermanent
	}
}

// Retryable reports whether errors of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindTransientProvider
}

// Error is a classified error. errors.Is matches both the kind's sentinel
// and the wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind. The message defaults to err's text.
func WrapError(kind ErrorKind, err error, message string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != e.Err.Error() {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// KindOf classifies any error. Unclassified errors are PermanentError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrTransientProvider):
		return KindTransientProvider
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindPermanent
	}
}

// Classify returns err as a *Error, classifying it with KindOf when needed.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return WrapError(KindOf(err), err, "")
}
