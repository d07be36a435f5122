package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Engine error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies an engine error.
type ErrorKind int

const (
	// ErrSyntax covers lexical and parse failures. Always fatal to the
	// current compile.
	ErrSyntax ErrorKind = iota
	// ErrNotDefined is an unresolved identifier.
	ErrNotDefined
	// ErrAccessBeforeInit is a read or write of an uninitialized binding.
	ErrAccessBeforeInit
	// ErrAssignToConst is an assignment to an immutable, initialized binding.
	ErrAssignToConst
	// ErrUnknownOpcode is an unrecognized instruction byte.
	ErrUnknownOpcode
	// ErrStackOverflow is a call stack past its cap.
	ErrStackOverflow
	// ErrOutOfMemory is an allocation failure surviving a GC retry.
	ErrOutOfMemory
	// ErrType covers invalid operations on a value (calling a non-function,
	// prototype chain too deep).
	ErrType
)

var errorKindNames = map[ErrorKind]string{
	ErrSyntax:           "SyntaxError",
	ErrNotDefined:       "ReferenceError",
	ErrAccessBeforeInit: "ReferenceError",
	ErrAssignToConst:    "TypeError",
	ErrUnknownOpcode:    "VMError",
	ErrStackOverflow:    "VMError",
	ErrOutOfMemory:      "OutOfMemoryError",
	ErrType:             "TypeError",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// EngineError is a structured engine failure. It is returned across the
// Execute/Compile boundary rather than panicked.
type EngineError struct {
	Kind    ErrorKind
	Message string
}

func (e *EngineError) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// Is supports errors.Is against a bare-kind sentinel.
func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if errors.As(target, &other) {
		return other.Message == "" && other.Kind == e.Kind
	}
	return false
}

// NewError creates an EngineError.
func NewError(kind ErrorKind, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an EngineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *EngineError
	return errors.As(err, &e) && e.Kind == kind
}
