package invocation

import (
	"errors"
	"fmt"
)

// Code is a stable failure kind shared by the session, gateway and orchestrator.
type Code string

const (
	CodeConnection             Code = "CONNECTION_ERROR"
	CodeCatalogRefresh         Code = "CATALOG_REFRESH_ERROR"
	CodeUnknownCapability      Code = "UNKNOWN_CAPABILITY"
	CodeArgument               Code = "ARGUMENT_ERROR"
	CodeTransportLost          Code = "TRANSPORT_LOST"
	CodeTimeout                Code = "INVOCATION_TIMEOUT"
	CodeSessionClosed          Code = "SESSION_CLOSED"
	CodeNoApplicableCapability Code = "NO_APPLICABLE_CAPABILITY"
	// CodeRemote is a failure reported by the provider itself; the connection stays usable.
	CodeRemote Code = "REMOTE_ERROR"
	// CodeInternal covers anything that does not map to a known kind.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code when the target carries no message,
// so errors.Is(err, ErrTransportLost) works for every transport-lost error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrConnection             = &Error{Code: CodeConnection}
	ErrCatalogRefresh         = &Error{Code: CodeCatalogRefresh}
	ErrUnknownCapability      = &Error{Code: CodeUnknownCapability}
	ErrArgument               = &Error{Code: CodeArgument}
	ErrTransportLost          = &Error{Code: CodeTransportLost}
	ErrTimeout                = &Error{Code: CodeTimeout}
	ErrSessionClosed          = &Error{Code: CodeSessionClosed}
	ErrNoApplicableCapability = &Error{Code: CodeNoApplicableCapability}
	ErrRemote                 = &Error{Code: CodeRemote}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsPreflight reports whether err was raised by local validation, before any round trip.
func IsPreflight(err error) bool {
	switch CodeOf(err) {
	case CodeUnknownCapability, CodeArgument:
		return true
	}
	return false
}

// Describe returns a plain-words description of a failure kind for user-facing text.
func Describe(code Code) string {
	switch code {
	case CodeConnection:
		return "the capability provider could not be reached"
	case CodeCatalogRefresh:
		return "the list of capabilities could not be refreshed"
	case CodeUnknownCapability:
		return "the chosen capability is not offered by the provider"
	case CodeArgument:
		return "the capability was asked for with missing or invalid arguments"
	case CodeTransportLost:
		return "the connection to the provider was lost while the request was running"
	case CodeTimeout:
		return "the provider did not answer in time"
	case CodeSessionClosed:
		return "the session was closed before the request could run"
	case CodeNoApplicableCapability:
		return "no available capability applies to this request"
	case CodeRemote:
		return "the provider reported an error while running the capability"
	default:
		return "an unexpected error occurred"
	}
}
