package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed taxonomy of provider failure kinds.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "AUTHENTICATION"
	KindAuthorization  ErrorKind = "AUTHORIZATION"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindServerError    ErrorKind = "SERVER_ERROR"
	KindNetwork        ErrorKind = "NETWORK"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindParseError     ErrorKind = "PARSE_ERROR"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// AllKinds lists every kind in the taxonomy.
var AllKinds = []ErrorKind{
	KindAuthentication,
	KindAuthorization,
	KindNotFound,
	KindRateLimit,
	KindServerError,
	KindNetwork,
	KindTimeout,
	KindParseError,
	KindUnknown,
}

// Retryable reports whether failures of this kind may be retried.
// AUTHENTICATION, AUTHORIZATION and NOT_FOUND never are.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAuthentication, KindAuthorization, KindNotFound:
		return false
	default:
		return true
	}
}

// Valid reports whether k belongs to the taxonomy.
func (k ErrorKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k ErrorKind) String() string { return string(k) }

// Error represents a structured error with kind, message, and metadata.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Provider != "" {
		b.WriteString(" ")
		b.WriteString(e.Provider)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error. Retryable defaults to the kind's policy.
func NewError(kind ErrorKind, message string) *Error {
	if !kind.Valid() {
		kind = KindUnknown
	}
	return &Error{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable overrides the kind's retry policy.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable. Errors outside the taxonomy
// are classified first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return Classify(err, "").Retryable
}

// KindOf returns the taxonomy kind of err, classifying it if needed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return Classify(err, "").Kind
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
