// Package errors defines the error kinds used throughout the velox
// inference runtime (see spec §7). Every fallible operation returns
// one of these kinds wrapped in an *Error rather than panicking or
// silently swallowing the failure.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it without
// string-matching messages.
type Kind int

// The error kinds of the runtime's error handling design.
const (
	// InvalidArgument is a caller-visible contract violation: wrong
	// shapes/dtypes, empty inputs, a bad axis.
	InvalidArgument Kind = iota
	// OutOfMemory is an allocator failure.
	OutOfMemory
	// NotFound covers a missing kernel for an op, a missing provider,
	// or an unknown name.
	NotFound
	// NotImplemented marks an optional feature that was not built,
	// e.g. a cross-device copy without a backend route.
	NotImplemented
	// RuntimeError is a kernel failure during execution (numeric or
	// dispatch).
	RuntimeError
	// InvalidModel is a load-time graph validation failure not covered
	// by one of the more specific Validate kinds below (e.g. a
	// malformed attribute in the model format itself).
	InvalidModel
	// DeviceError is a device-specific failure.
	DeviceError

	// The six failure kinds spec §3/§4.C names for graph.Validate,
	// each standing in for what would otherwise be an InvalidModel
	// with no further structure: callers that want to branch on, say,
	// "this graph had a cycle" rather than just "this model is
	// invalid" can switch on Kind instead of matching Error().

	// NoInputs means a graph declares zero graph-input Values.
	NoInputs
	// NoOutputs means a graph declares zero graph-output Values.
	NoOutputs
	// UnproducedInput means a node consumes a Value that has no
	// producer, is not a declared graph input, and is not an
	// initializer.
	UnproducedInput
	// DuplicateID means the same Value id appears more than once in a
	// graph's declared Inputs or Outputs list.
	DuplicateID
	// MissingValueForInput means a node or graph output references a
	// Value id that does not exist in the graph.
	MissingValueForInput
	// Cycle means the node graph is not a DAG.
	Cycle
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case OutOfMemory:
		return "OutOfMemory"
	case NotFound:
		return "NotFound"
	case NotImplemented:
		return "NotImplemented"
	case RuntimeError:
		return "RuntimeError"
	case InvalidModel:
		return "InvalidModel"
	case DeviceError:
		return "DeviceError"
	case NoInputs:
		return "NoInputs"
	case NoOutputs:
		return "NoOutputs"
	case UnproducedInput:
		return "UnproducedInput"
	case DuplicateID:
		return "DuplicateID"
	case MissingValueForInput:
		return "MissingValueForInput"
	case Cycle:
		return "Cycle"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every fallible
// operation in the runtime. It always carries a Kind so callers can
// recover it with errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind, attaching cause as the
// wrapped error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
