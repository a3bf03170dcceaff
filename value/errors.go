package value

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is returned when an integer or big-integer division has a
// zero divisor. Float division follows IEEE semantics instead.
var ErrDivisionByZero = errors.New("division by zero")

// TypeError reports an operation applied to a value whose runtime type does
// not support it.
type TypeError struct {
	Operation string
	Type      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("operation '%s' not supported for type %s", e.Operation, e.Type)
}

// OperationError is a runtime-level failure raised by a builtin or an
// operation: domain errors, bad arguments, explicit error() calls.
type OperationError struct {
	Msg string
}

func (e *OperationError) Error() string {
	return e.Msg
}

// Errorf builds an OperationError from a format string.
func Errorf(format string, args ...interface{}) error {
	return &OperationError{Msg: fmt.Sprintf(format, args...)}
}
