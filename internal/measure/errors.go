package measure

import (
	"errors"
	"fmt"
)

// ErrContract is matched by every *ContractError via errors.Is.
var ErrContract = errors.New("measurement contract violation")

// ContractError reports malformed input: wrong shape, non-finite
// coordinates, missing joints or weights, or a config that does not belong to
// the requested key. It is never converted into a NaN result.
type ContractError struct {
	Key    string
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *ContractError) Error() string {
	msg := "contract error"
	if e.Key != "" {
		msg += fmt.Sprintf(" for %q", e.Key)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContractError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrContract) hold for any ContractError.
func (e *ContractError) Is(target error) bool { return target == ErrContract }

func contractf(key, format string, args ...interface{}) *ContractError {
	return &ContractError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// ExecutionError reports an unexpected failure inside the algorithm. It
// indicates a defect and carries the goroutine stack when raised by a panic.
type ExecutionError struct {
	Key   string
	Cause error
	Stack []byte
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error for %q: %v", e.Key, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Diagnostic returns the error text followed by the stack, if any.
func (e *ExecutionError) Diagnostic() string {
	if len(e.Stack) == 0 {
		return e.Error()
	}
	return e.Error() + "\n" + string(e.Stack)
}
