package cvapi

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError means the request never produced a response: DNS failure,
// refused connection, timeout, cancelled context.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: server not reachable: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is returned for 401/403 responses, failed logins, and protected
// calls attempted without a token.
type AuthError struct {
	Status  int // 0 when no request was sent
	Message string
}

func (e *AuthError) Error() string {
	if e.Status == 0 {
		return "authentication required: " + e.Message
	}
	return fmt.Sprintf("authentication failed (HTTP %d): %s", e.Status, e.Message)
}

// ServerError is any other non-2xx response.
type ServerError struct {
	Status  int
	Message string // "error" or "message" field of the body, if any
	Body    string
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("server error (HTTP %d): %s", e.Status, msg)
}

// ProtocolError means a 2xx response whose body could not be decoded or
// lacked a required field.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ValidationError is a client-side rejection: malformed JSON section,
// inverted date range, missing custom type text.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a *ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

func IsServer(err error) bool {
	var e *ServerError
	return errors.As(err, &e)
}

func IsProtocol(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// ErrorMessage renders err for display in a status line.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		te *TransportError
		ae *AuthError
		se *ServerError
		pe *ProtocolError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &ae):
		if ae.Status == 0 {
			return "Please log in first"
		}
		return "Authentication failed: " + ae.Message
	case errors.As(err, &se):
		if se.Message != "" {
			return fmt.Sprintf("Server error (%d): %s", se.Status, se.Message)
		}
		return fmt.Sprintf("Server error (%d)", se.Status)
	case errors.As(err, &pe):
		return "Unexpected server response: " + pe.Err.Error()
	case errors.As(err, &te):
		return "Network error: " + te.Err.Error()
	}
	return strings.TrimSpace(err.Error())
}
