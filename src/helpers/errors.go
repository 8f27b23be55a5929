package helpers

import "fmt"

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type ScannerError struct {
	Message string
	Cause   error
}

func (e *ScannerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ScannerError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// Taxonomy: distinct types for type assertions.
//
//   TransientNetworkError - socket error/close; retried via backoff,
//     never surfaced to callers.
//   AuthError - auth handshake failure or timeout; converted to a state
//     change (fallback endpoint or degraded).
//   ProtocolError - malformed frame either direction; frame dropped,
//     connection stays open.
//   CapacityError - provider connection limit; degraded + long backoff.
//   ConfigurationError - missing required setting; fatal at construction.
// -----------------------------------------------------------------------------

type TransientNetworkError struct{ ScannerError }
type AuthError struct{ ScannerError }
type ProtocolError struct{ ScannerError }
type CapacityError struct{ ScannerError }
type ConfigurationError struct{ ScannerError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewTransientNetworkError(msg string, cause error) *TransientNetworkError {
	return &TransientNetworkError{ScannerError{Message: msg, Cause: cause}}
}

func NewAuthError(msg string, cause error) *AuthError {
	return &AuthError{ScannerError{Message: msg, Cause: cause}}
}

func NewProtocolError(msg string, cause error) *ProtocolError {
	return &ProtocolError{ScannerError{Message: msg, Cause: cause}}
}

func NewCapacityError(msg string) *CapacityError {
	return &CapacityError{ScannerError{Message: msg}}
}

func NewConfigurationError(msg string) *ConfigurationError {
	return &ConfigurationError{ScannerError{Message: msg}}
}
