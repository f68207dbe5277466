// Package errors provides standardized error codes for the chat client.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (transport, decode, protocol, session, ...)
//   - error: The specific error type within that domain
//
// The codes are stable so callers can branch on them without parsing text.
// Human-readable messages travel alongside the code and are what the user sees.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Transport domain - the websocket channel itself
	CodeTransportDialFailed  = "transport.dial_failed"  // Could not establish the websocket
	CodeTransportWriteFailed = "transport.write_failed" // Frame write failed
	CodeTransportClosed      = "transport.closed"       // Transport worker is shut down

	// Decode domain - malformed inbound envelopes
	CodeDecodeInvalidEnvelope = "decode.invalid_envelope" // Raw payload is not a valid envelope
	CodeDecodeInvalidPayload  = "decode.invalid_payload"  // Envelope data does not match its kind

	// Protocol domain - server broke the message contract
	CodeProtocolMissingToken = "protocol.missing_token" // LoginSuccess carried no credential

	// Channel domain - engine-level sequencing
	CodeChannelNotReady   = "channel.not_ready"   // Operation requires a ready channel
	CodeChannelEncodeFail = "channel.encode_fail" // Outbound value could not be encoded

	// Session domain - authentication state
	CodeSessionRestoreFailed = "session.restore_failed" // Stored credential could not be restored
	CodeSessionProfileFailed = "session.profile_failed" // Profile fetch failed
	CodeSessionNoCredential  = "session.no_credential"  // No credential is stored
	CodeSessionSuperseded    = "session.superseded"     // Credential changed during a fetch

	// Login domain - interactive login flow
	CodeLoginFailed  = "login.failed"  // Server rejected the login
	CodeLoginTimeout = "login.timeout" // No login result before the watchdog fired

	// Storage domain - local persistence
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// Config domain
	CodeConfigInvalid = "config.invalid" // A configuration value is unusable

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "decode.invalid_envelope")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// InvalidEnvelope creates a "decode.invalid_envelope" error.
func InvalidEnvelope(cause error) *CodedError {
	return Wrap(CodeDecodeInvalidEnvelope, "malformed envelope", cause)
}

// InvalidPayload creates a "decode.invalid_payload" error for the named kind.
func InvalidPayload(kind string, cause error) *CodedError {
	return Wrap(CodeDecodeInvalidPayload, fmt.Sprintf("malformed %s payload", kind), cause)
}

// MissingToken creates a "protocol.missing_token" error.
// The server reported a successful login without handing over a credential.
func MissingToken() *CodedError {
	return New(CodeProtocolMissingToken, "login succeeded but no token was received, please retry")
}

// NotReady creates a "channel.not_ready" error for the named operation.
func NotReady(operation string) *CodedError {
	return New(CodeChannelNotReady, fmt.Sprintf("%s requires a connected channel", operation))
}

// DialFailed creates a "transport.dial_failed" error.
func DialFailed(url string, cause error) *CodedError {
	return Wrap(CodeTransportDialFailed, fmt.Sprintf("dial %s failed", url), cause)
}

// RestoreFailed creates a "session.restore_failed" error.
// The stored credential was rejected and has been purged.
func RestoreFailed(cause error) *CodedError {
	return Wrap(CodeSessionRestoreFailed, "could not restore the previous session, please log in again", cause)
}

// ProfileFailed creates a "session.profile_failed" error.
func ProfileFailed(cause error) *CodedError {
	return Wrap(CodeSessionProfileFailed, "failed to fetch user profile", cause)
}

// LoginFailed creates a "login.failed" error carrying the server's text.
// An empty reason falls back to a generic hint.
func LoginFailed(reason string) *CodedError {
	if reason == "" {
		reason = "login failed, check username and password"
	}
	return New(CodeLoginFailed, reason)
}

// LoginTimeout creates a "login.timeout" error.
func LoginTimeout() *CodedError {
	return New(CodeLoginTimeout, "login timed out, request a new code and try again")
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
