package llm

import "fmt"

// ErrorCode identifies a class of gateway failure.
type ErrorCode string

const (
	ErrMissingKey     ErrorCode = "MISSING_API_KEY"
	ErrUnavailable    ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrBadStatus      ErrorCode = "BAD_STATUS"
	ErrBadResponse    ErrorCode = "BAD_RESPONSE"
	ErrUnknownBackend ErrorCode = "UNKNOWN_PROVIDER"
)

// Error is a structured provider failure. Retryable marks transient faults
// (timeouts, 429s, 5xx) that the gateway may retry before giving up.
type Error struct {
	Code      ErrorCode
	Provider  string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
