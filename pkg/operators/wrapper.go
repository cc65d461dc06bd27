package operators

import (
	"fmt"
	"runtime/debug"

	"github.com/go-logr/logr"
)

// BatchInfo identifies the batch a wrapper brackets.
type BatchInfo struct {
	Operator string
	Worker   int
	Time     string
	Logger   logr.Logger
}

// BatchWrapper brackets the whole body of a batch callback, never an individual record.
type BatchWrapper interface {
	fmt.Stringer
	Wrap(info BatchInfo, body func())
}

// NoWrapper runs the batch body as is: a panic in the logic is fatal to the worker.
type NoWrapper struct{}

func (NoWrapper) String() string                { return "NoWrapper" }
func (NoWrapper) Wrap(_ BatchInfo, body func()) { body() }

// Fault is a panic caught at the boundary of a batch.
type Fault struct {
	Operator string
	Worker   int
	Time     string
	Value    any
	Stack    []byte
}

// Error implements the error interface.
func (f Fault) Error() string {
	return fmt.Sprintf("fault in operator %q on worker %d at time %s: %v", f.Operator, f.Worker, f.Time, f.Value)
}

// FaultIsolation recovers a panic raised anywhere in a batch, logs it and hands it to Report. The
// output of the faulted batch is dropped and the worker carries on with the next one.
type FaultIsolation struct {
	// Log overrides the worker's logger when set.
	Log logr.Logger
	// Report, if not nil, receives every fault. It may be called from any worker goroutine.
	Report func(Fault)
}

func (FaultIsolation) String() string { return "FaultIsolation" }

func (w FaultIsolation) Wrap(info BatchInfo, body func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		f := Fault{Operator: info.Operator, Worker: info.Worker, Time: info.Time, Value: r, Stack: debug.Stack()}
		log := w.Log
		if log.GetSink() == nil {
			log = info.Logger
		}
		log.Error(f, "batch fault isolated", "operator", f.Operator, "time", f.Time)

		if w.Report != nil {
			w.Report(f)
		}
	}()

	body()
}
