package down

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/kvdown/lib/query"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess               RetCode = iota // 0: Command executed successfully.
	RetCConnection                           // 1: Opening or reaching the store failed.
	RetCNotFound                             // 2: The key does not exist.
	RetCInvalidParameter                     // 3: A parameter is missing or malformed.
	RetCInvalidBatchOperation                // 4: A batch operation has an unknown type.
	RetCUnsupportedOperation                 // 5: The operation is not supported by the driver.
	RetCBackendDriver                        // 6: Opaque failure of the underlying store.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCConnection:
		return "ConnectionError"
	case RetCNotFound:
		return "NotFoundError"
	case RetCInvalidParameter:
		return "InvalidParameterError"
	case RetCInvalidBatchOperation:
		return "InvalidBatchOperationError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperationError"
	case RetCBackendDriver:
		return "BackendDriverError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the only error type returned by drivers. It wraps a return code
// (of type RetCode), an error message and optionally the underlying cause.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the backend error this error was created from, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, ErrNotFound) matches every not found error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with the given code and a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError creates a new Error with the given code that keeps err as its cause.
func WrapError(code RetCode, err error, msg string) *Error {
	return &Error{
		Code:  code,
		Msg:   fmt.Sprintf("%s: %v", msg, err),
		cause: err,
	}
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrConnection            = NewError(RetCConnection, "connection error")
	ErrNotFound              = NewError(RetCNotFound, "not found")
	ErrInvalidParameter      = NewError(RetCInvalidParameter, "invalid parameter")
	ErrInvalidBatchOperation = NewError(RetCInvalidBatchOperation, "invalid batch operation")
	ErrUnsupportedOperation  = NewError(RetCUnsupportedOperation, "unsupported operation")
	ErrBackendDriver         = NewError(RetCBackendDriver, "backend driver error")
)

// --------------------------------------------------------------------------
// Normalization
// --------------------------------------------------------------------------

// driverMessage is implemented by backend errors that carry the human
// readable message separately from their Go error string.
type driverMessage interface {
	DriverMessage() string
}

// NormalizeError maps any failure reported by a backend to an *Error:
//
//   - *Error values (also wrapped ones) pass through unchanged.
//   - errors carrying a driver message become a new error built from that message.
//   - other errors are wrapped (classified by the query sentinels they wrap).
//   - non error payloads are serialized to JSON, or printed if that fails.
func NormalizeError(v any) error {
	switch v := v.(type) {
	case nil:
		return nil
	case *Error:
		return v
	case error:
		var de *Error
		if errors.As(v, &de) {
			return de
		}
		var dm driverMessage
		if errors.As(v, &dm) {
			return NewError(RetCBackendDriver, dm.DriverMessage())
		}
		return &Error{Code: classify(v), Msg: v.Error(), cause: v}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return NewError(RetCBackendDriver, fmt.Sprint(v))
		}
		return NewError(RetCBackendDriver, string(raw))
	}
}

func classify(err error) RetCode {
	switch {
	case errors.Is(err, query.ErrNotFound):
		return RetCNotFound
	case errors.Is(err, query.ErrClosed),
		errors.Is(err, query.ErrTableNotFound),
		errors.Is(err, query.ErrTableExists),
		errors.Is(err, query.ErrInvalidPrimaryKey),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return RetCConnection
	default:
		return RetCBackendDriver
	}
}
