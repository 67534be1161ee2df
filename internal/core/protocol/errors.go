package protocol

import (
	"errors"
	"fmt"
)

// Core protocol errors
var (
	// Connection errors

	ErrConnectionClosed  = errors.New("connection is closed")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrConnectionRefused = errors.New("connection refused")
	ErrConnectionLost    = errors.New("connection lost")

	// Message errors

	ErrMessageTooLarge       = errors.New("message too large")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrSerializationFailed   = errors.New("message serialization failed")
	ErrDeserializationFailed = errors.New("message deserialization failed")

	// Stream errors

	ErrStreamClosed  = errors.New("stream is closed")
	ErrStreamTimeout = errors.New("stream timeout")
	ErrStreamReset   = errors.New("stream was reset")

	// Document errors

	ErrInvalidDocument = errors.New("invalid document id")
	ErrUnknownRevision = errors.New("unknown revision")
	ErrInvalidPush     = errors.New("invalid push")

	// Transport errors

	ErrTransportClosed = errors.New("transport is closed")
	ErrTransportFailed = errors.New("transport failed")
	ErrDialFailed      = errors.New("dial failed")

	// Generic errors

	ErrInternalError = errors.New("internal error")
	ErrUnknownError  = errors.New("unknown error")
)

// ErrorCode represents a numeric error code carried in response frames
type ErrorCode int

const (
	// Success

	ErrorCodeSuccess ErrorCode = 0

	// Connection error codes (1000-1999)

	ErrorCodeConnectionClosed  ErrorCode = 1001
	ErrorCodeConnectionTimeout ErrorCode = 1002
	ErrorCodeConnectionRefused ErrorCode = 1003
	ErrorCodeConnectionLost    ErrorCode = 1004
	ErrorCodeProtocolViolation ErrorCode = 1007

	// Message error codes (3000-3999)

	ErrorCodeMessageTooLarge       ErrorCode = 3001
	ErrorCodeInvalidMessage        ErrorCode = 3003
	ErrorCodeSerializationFailed   ErrorCode = 3005
	ErrorCodeDeserializationFailed ErrorCode = 3006

	// Stream error codes (4000-4999)

	ErrorCodeStreamClosed  ErrorCode = 4001
	ErrorCodeStreamTimeout ErrorCode = 4004
	ErrorCodeStreamReset   ErrorCode = 4006

	// Document error codes (6000-6999)

	ErrorCodeInvalidDocument ErrorCode = 6001
	ErrorCodeUnknownRevision ErrorCode = 6002
	ErrorCodeInvalidPush     ErrorCode = 6003

	// Transport error codes (7000-7999)

	ErrorCodeTransportClosed ErrorCode = 7002
	ErrorCodeTransportFailed ErrorCode = 7003
	ErrorCodeDialFailed      ErrorCode = 7007

	// Generic error codes (9000-9999)

	ErrorCodeInternalError ErrorCode = 9003
	ErrorCodeUnknownError  ErrorCode = 9999
)

// Error represents a protocol-specific error. Errors received from the peer
// carry the remote code and message with no Cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error, falling back to the sentinel of the
// code so errors.Is works across the wire.
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelOf(e.Code)
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsTemporary checks if the error is temporary and the operation can be retried
func (e *Error) IsTemporary() bool {
	switch e.Code {
	case ErrorCodeConnectionClosed,
		ErrorCodeConnectionTimeout,
		ErrorCodeConnectionRefused,
		ErrorCodeConnectionLost,
		ErrorCodeStreamClosed,
		ErrorCodeStreamTimeout,
		ErrorCodeStreamReset,
		ErrorCodeTransportFailed,
		ErrorCodeDialFailed:
		return true
	default:
		return false
	}
}

// Error mapping from standard errors to error codes
var errorCodeMap = map[error]ErrorCode{
	ErrConnectionClosed:  ErrorCodeConnectionClosed,
	ErrConnectionTimeout: ErrorCodeConnectionTimeout,
	ErrConnectionRefused: ErrorCodeConnectionRefused,
	ErrConnectionLost:    ErrorCodeConnectionLost,

	ErrMessageTooLarge:       ErrorCodeMessageTooLarge,
	ErrInvalidMessage:        ErrorCodeInvalidMessage,
	ErrSerializationFailed:   ErrorCodeSerializationFailed,
	ErrDeserializationFailed: ErrorCodeDeserializationFailed,

	ErrStreamClosed:  ErrorCodeStreamClosed,
	ErrStreamTimeout: ErrorCodeStreamTimeout,
	ErrStreamReset:   ErrorCodeStreamReset,

	ErrInvalidDocument: ErrorCodeInvalidDocument,
	ErrUnknownRevision: ErrorCodeUnknownRevision,
	ErrInvalidPush:     ErrorCodeInvalidPush,

	ErrTransportClosed: ErrorCodeTransportClosed,
	ErrTransportFailed: ErrorCodeTransportFailed,
	ErrDialFailed:      ErrorCodeDialFailed,

	ErrInternalError: ErrorCodeInternalError,
	ErrUnknownError:  ErrorCodeUnknownError,
}

func sentinelOf(code ErrorCode) error {
	for err, c := range errorCodeMap {
		if c == code {
			return err
		}
	}
	return nil
}

// GetErrorCode returns the error code for a given error
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}

	// Check if it's already a ProtocolError
	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a ProtocolError
func WrapError(err error, message string) *Error {
	code := GetErrorCode(err)
	return NewProtocolError(code, message, err)
}
