package interp

import "fmt"

// LoadError is raised by an interpreter operation performed before a
// CFG is loaded, or after execution has already completed.
type LoadError struct {
	Message string
}

func (e *LoadError) Error() string { return e.Message }

// InstructionException wraps an error raised while executing a
// specific instruction, annotated with where it happened.
type InstructionException struct {
	Block string
	Index int
	Err   error
}

func (e *InstructionException) Error() string {
	return fmt.Sprintf("@%s[%d]: %s", e.Block, e.Index, e.Err)
}

func (e *InstructionException) Unwrap() error { return e.Err }

// DivisionByZero is raised when div or mod executes with a zero
// right-hand operand.
type DivisionByZero struct {
	Op string
}

func (e *DivisionByZero) Error() string { return fmt.Sprintf("%s by zero", e.Op) }

// UnknownInstruction is raised when the interpreter is asked to
// execute an instruction type it does not recognise, or a phi that
// cannot resolve its incoming edge.
type UnknownInstruction struct {
	Message string
}

func (e *UnknownInstruction) Error() string { return e.Message }

// ReadInterrupt suspends execution to request an integer value for
// Register from the host.
type ReadInterrupt struct {
	Register string
}

func (e *ReadInterrupt) Error() string { return fmt.Sprintf("read interrupt: %s", e.Register) }

// WriteInterrupt suspends execution to hand the value of Register to
// the host.
type WriteInterrupt struct {
	Register string
}

func (e *WriteInterrupt) Error() string { return fmt.Sprintf("write interrupt: %s", e.Register) }

// BreakpointInterrupt suspends execution at a named breakpoint.
type BreakpointInterrupt struct {
	Name string
}

func (e *BreakpointInterrupt) Error() string { return fmt.Sprintf("breakpoint: %s", e.Name) }
