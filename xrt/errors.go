package xrt

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the failures reported by the binding and by the runtime backends.
//
// ErrorKind implements the error interface, so a kind can be used as a target of errors.Is:
//
//	if errors.Is(err, xrt.NotFound) { ... }
type ErrorKind int

const (
	// RuntimeFailure is an opaque failure of the underlying runtime.
	RuntimeFailure ErrorKind = iota

	// MalformedInput is returned for bad buffers, identifiers of the wrong size or empty names.
	MalformedInput

	// NotFound is returned when a lookup by name has no match.
	NotFound

	// OutOfRange is returned when a lookup by index is past the end of the collection.
	OutOfRange

	// DeviceUnavailable is returned when a device index or BDF can't be opened, or the Device was destroyed.
	DeviceUnavailable

	// ProgrammingFailure is returned when the runtime rejects loading an (already parsed) xclbin.
	ProgrammingFailure

	// BitstreamMismatch is returned when a kernel/IP is requested against a device that is not loaded
	// with the requested xclbin UUID.
	BitstreamMismatch
)

var errorKindNames = []string{
	RuntimeFailure:     "runtime failure",
	MalformedInput:     "malformed input",
	NotFound:           "not found",
	OutOfRange:         "out of range",
	DeviceUnavailable:  "device unavailable",
	ProgrammingFailure: "programming failure",
	BitstreamMismatch:  "bitstream mismatch",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// Error implements the error interface, so kinds can be used as sentinels.
func (k ErrorKind) Error() string {
	return k.String()
}

// Error is the error type returned by the binding: it carries the ErrorKind and the diagnostic message,
// usually given by the runtime.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("XRT error (%s): %s", e.Kind, e.Message)
}

// Is allows errors.Is(err, kind) to match against an ErrorKind.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Errorf creates an *Error of the given kind with a formatted message, and attaches a stack trace
// (see github.com/pkg/errors).
//
// It is exported so backends can report failures with the right kind.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// KindOf returns the ErrorKind of err. Errors not created by this package are reported as RuntimeFailure.
// It returns false if err is nil.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return RuntimeFailure, false
	}
	var xrtErr *Error
	if errors.As(err, &xrtErr) {
		return xrtErr.Kind, true
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind, true
	}
	return RuntimeFailure, true
}

// asKind makes sure err carries an ErrorKind: errors already classified are returned as is, others are
// wrapped as the given kind, keeping the original message.
func asKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var xrtErr *Error
	if errors.As(err, &xrtErr) {
		return err
	}
	return Errorf(kind, "%v", err)
}
