package types

import (
	"fmt"
	"strings"
	"time"
)

// ErrorRecord is produced on every failed provider call. The breaker and
// the usage sink both consume it.
type ErrorRecord struct {
	Kind      ErrorKind `json:"kind"`
	Provider  string    `json:"provider"`
	Attempt   int       `json:"attempt"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// NewErrorRecord captures err as a record for the given attempt (1-based).
func NewErrorRecord(err *Error, provider string, attempt int, at time.Time) ErrorRecord {
	if provider == "" {
		provider = err.Provider
	}
	return ErrorRecord{
		Kind:      err.Kind,
		Provider:  provider,
		Attempt:   attempt,
		Retryable: err.Retryable,
		Timestamp: at,
		Message:   err.Error(),
	}
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("%s attempt %d: %s", r.Provider, r.Attempt, r.Message)
}

// AllProvidersFailedError is returned when neither the primary nor any
// fallback produced a result.
type AllProvidersFailedError struct {
	Attempts  []ErrorRecord `json:"attempts"`
	LastError *ErrorRecord  `json:"last_error,omitempty"`

	last error
}

// NewAllProvidersFailedError builds the terminal router error. last is the
// classified error behind the final record, kept for errors.As.
func NewAllProvidersFailedError(attempts []ErrorRecord, last error) *AllProvidersFailedError {
	e := &AllProvidersFailedError{Attempts: attempts, last: last}
	if n := len(attempts); n > 0 {
		rec := attempts[n-1]
		e.LastError = &rec
	}
	return e
}

func (e *AllProvidersFailedError) Error() string {
	if e.LastError == nil {
		return "all providers failed: no provider was available"
	}
	providers := make([]string, 0, len(e.Attempts))
	seen := make(map[string]bool)
	for _, a := range e.Attempts {
		if !seen[a.Provider] {
			seen[a.Provider] = true
			providers = append(providers, a.Provider)
		}
	}
	return fmt.Sprintf("all providers failed after %d attempts [%s]: last error: %s",
		len(e.Attempts), strings.Join(providers, ","), e.LastError.Message)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.last
}
