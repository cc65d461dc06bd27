package dataflow

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by a dataflow that has been torn down.
var ErrClosed = errors.New("dataflow closed")

type ErrInvalidConfig = error

func NewInvalidConfigError(message string) ErrInvalidConfig {
	return fmt.Errorf("invalid dataflow configuration: %s", message)
}

type ErrGraphMismatch = error

func NewGraphMismatchError(worker int, message string) ErrGraphMismatch {
	return fmt.Errorf("worker %d built a different dataflow graph: %s", worker, message)
}

type ErrInput = error

func NewInputError(input, message string) ErrInput {
	return fmt.Errorf("input %q: %s", input, message)
}

// WorkerError reports a fault that terminated a worker's execution of an operator callback.
type WorkerError struct {
	Worker   int
	Operator string
	Time     string
	Panic    any
	Stack    []byte
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d failed in operator %q at time %s: %v", e.Worker, e.Operator,
		e.Time, e.Panic)
}

// Unwrap returns the panic value if it was an error.
func (e *WorkerError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}
