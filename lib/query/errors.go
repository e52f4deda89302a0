package query

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("query: key not found")
	ErrCursorExhausted   = errors.New("query: no more rows in the cursor")
	ErrTableExists       = errors.New("query: table exists")
	ErrTableNotFound     = errors.New("query: table does not exist")
	ErrInvalidPrimaryKey = errors.New("query: table primary key is not " + PK)
	ErrConflict          = errors.New("query: duplicate primary key")
	ErrClosed            = errors.New("query: backend is closed")
)

// --------------------------------------------------------------------------
// Error Codes (used to carry sentinel errors across the wire)
// --------------------------------------------------------------------------

type ErrCode uint8

const (
	ErrCNone ErrCode = iota
	ErrCDriver
	ErrCNotFound
	ErrCCursorExhausted
	ErrCTableExists
	ErrCTableNotFound
	ErrCInvalidPrimaryKey
	ErrCConflict
	ErrCClosed
)

var codeErrors = map[ErrCode]error{
	ErrCNotFound:          ErrNotFound,
	ErrCCursorExhausted:   ErrCursorExhausted,
	ErrCTableExists:       ErrTableExists,
	ErrCTableNotFound:     ErrTableNotFound,
	ErrCInvalidPrimaryKey: ErrInvalidPrimaryKey,
	ErrCConflict:          ErrConflict,
	ErrCClosed:            ErrClosed,
}

// CodeOf returns the code of the sentinel wrapped by err, ErrCDriver for any
// other error and ErrCNone for nil.
func CodeOf(err error) ErrCode {
	if err == nil {
		return ErrCNone
	}
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrCDriver
}

// ErrorFromCode rebuilds an error from its code and message. Sentinel codes are
// wrapped so that errors.Is keeps working on the receiving side.
func ErrorFromCode(code ErrCode, msg string) error {
	if code == ErrCNone && msg == "" {
		return nil
	}
	sentinel, ok := codeErrors[code]
	if !ok {
		return &DriverError{Msg: msg}
	}
	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	return &codedError{sentinel: sentinel, msg: msg}
}

type codedError struct {
	sentinel error
	msg      string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Unwrap() error { return e.sentinel }

// --------------------------------------------------------------------------
// Driver Error
// --------------------------------------------------------------------------

// DriverError is an opaque failure reported by a backend. It carries the
// human-readable message separately from its Go error string.
type DriverError struct {
	Msg string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("query driver error: %s", e.Msg)
}

// DriverMessage returns the message as reported by the backend.
func (e *DriverError) DriverMessage() string {
	return e.Msg
}
