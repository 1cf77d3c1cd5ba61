// Package failure defines the error taxonomy shared by every pipeline stage
// and maps it onto process exit codes.
package failure

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. Codes appear verbatim in log events and
// in the errors recorded on degraded sources.
type Code string

const (
	FeedFetchFailed   Code = "FEED_FETCH_FAILED"
	FeedParseError    Code = "FEED_PARSE_ERROR"
	ItemMalformed     Code = "ITEM_MALFORMED"
	NoItems           Code = "NO_ITEMS"
	QualityGateFail   Code = "QUALITY_GATE_FAIL"
	ConfigInvalid     Code = "CONFIG_INVALID"
	ValidationFail    Code = "VALIDATION_FAIL"
	UncaughtException Code = "UNCAUGHT_EXCEPTION"

	// AllSourcesFailed aborts a run in which every source degraded without
	// contributing a single item.
	AllSourcesFailed Code = "ALL_SOURCES_FAILED"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitConfigInvalid    = 1
	ExitAllSourcesFailed = 2
	ExitQualityGate      = 3
	ExitValidation       = 4
	ExitUncaught         = 5
)

// Error attaches a taxonomy code to an underlying error.
type Error struct {
	Code Code
	Err  error
}

// New returns an Error with the given code wrapping err.
func New(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf builds an Error from a format string. The %w verb is honoured.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the outermost Error in err's chain. Errors that
// carry no code are classified as UNCAUGHT_EXCEPTION.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return UncaughtException
}

// ExitCode maps err onto the process exit code contract. A nil error is
// success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch CodeOf(err) {
	case ConfigInvalid:
		return ExitConfigInvalid
	case AllSourcesFailed:
		return ExitAllSourcesFailed
	case QualityGateFail:
		return ExitQualityGate
	case ValidationFail:
		return ExitValidation
	default:
		return ExitUncaught
	}
}

// FromPanic converts a recovered panic value into an UNCAUGHT_EXCEPTION error.
func FromPanic(v any) *Error {
	if err, ok := v.(error); ok {
		return New(UncaughtException, fmt.Errorf("panic: %w", err))
	}
	return Errorf(UncaughtException, "panic: %v", v)
}
