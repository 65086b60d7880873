package channel

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures for callers that need to decide
// between reporting, recording, and rejecting.
type ErrorKind string

const (
	// ErrKindConfiguration: required fields missing for the channel type.
	// Reported to the caller of test/send, never retried.
	ErrKindConfiguration ErrorKind = "configuration"
	// ErrKindAuthentication: provider rejected the credentials.
	ErrKindAuthentication ErrorKind = "authentication"
	// ErrKindNetwork: timeout or unreachable provider.
	ErrKindNetwork ErrorKind = "network"
	// ErrKindRouting: undecodable or mismatched webhook identifier.
	ErrKindRouting ErrorKind = "routing"
	// ErrKindUnsupported: unknown channel type.
	ErrKindUnsupported ErrorKind = "unsupported_channel"
)

// Error is a classified gateway error. Adapter and router failures are
// wrapped in it so boundaries can convert them to structured results
// instead of propagating raw errors.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports missing or invalid channel configuration.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewAuthenticationError reports provider credential rejection.
func NewAuthenticationError(format string, args ...any) *Error {
	return &Error{Kind: ErrKindAuthentication, Message: fmt.Sprintf(format, args...)}
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindNetwork, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewRoutingError wraps a webhook routing failure. Callers fail closed
// on it: no writes, no partial processing.
func NewRoutingError(err error, format string, args ...any) *Error {
	return &Error{Kind: ErrKindRouting, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewUnsupportedError reports an unregistered channel type.
func NewUnsupportedError(channelType string) *Error {
	return &Error{Kind: ErrKindUnsupported, Message: fmt.Sprintf("unsupported channel type: %s", channelType)}
}

// KindOf returns the ErrorKind carried by err, or empty when untyped.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}
