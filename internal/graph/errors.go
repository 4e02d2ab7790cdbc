package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by graph construction and execution.
var (
	// ErrShape indicates incompatible static or runtime shapes.
	ErrShape = errors.New("shape mismatch")

	// ErrDType indicates an operand with an unsupported data type.
	ErrDType = errors.New("dtype mismatch")

	// ErrArity indicates a wrong number of arguments, states or outputs.
	ErrArity = errors.New("arity mismatch")

	// ErrUnbound indicates an input reachable from an output that was not
	// supplied to Compile.
	ErrUnbound = errors.New("unbound input")

	// ErrForeign indicates a Var that belongs to another graph.
	ErrForeign = errors.New("var from another graph")

	// ErrEmptySequence indicates a scan over a zero-length sequence.
	ErrEmptySequence = errors.New("empty sequence")

	// ErrExec wraps kernel failures raised while running a compiled function.
	ErrExec = errors.New("execution failed")
)

// Error is raised (as a panic) by graph constructors on configuration errors
// and recovered into a plain error by Try, Compile and Run.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fail panics with a *Error wrapping sentinel.
func fail(op string, sentinel error, format string, args ...any) {
	panic(&Error{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)})
}

// Try runs fn and converts a graph construction panic into an error. Other
// panics are re-raised.
func Try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ge, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			err = ge
		}
	}()
	fn()
	return nil
}
