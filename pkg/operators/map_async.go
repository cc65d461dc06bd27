package operators

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/zset"
)

// AsyncFault is a panic raised by the logic of an asynchronous map. It is re-raised on the worker
// once the batch has drained and therefore fails the worker.
type AsyncFault struct {
	Operator string
	Value    any
	Stack    []byte
}

// Error implements the error interface.
func (f *AsyncFault) Error() string {
	return fmt.Sprintf("asynchronous logic of operator %q failed: %v", f.Operator, f.Value)
}

// MapAsync is MapNamedAsync with the default name.
func MapAsync[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], logic func(context.Context, D) D2) *dataflow.Collection[T, D2, R] {
	return mapAsyncAt(c, "MapAsync", caller(1), logic)
}

// MapNamedAsync applies a blocking computation to every datum. All records of a batch are launched
// on their own goroutines, at most Config.AsyncConcurrency at a time if set, and the worker is held
// until every one of them completes. The results are emitted in completion order as one session
// at the batch's time, each with the time and diff of its input record. No two batches of the
// operator are ever in flight together.
func MapNamedAsync[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], name string, logic func(context.Context, D) D2) *dataflow.Collection[T, D2, R] {
	return mapAsyncAt(c, name, caller(1), logic)
}

func mapAsyncAt[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], name, site string, logic func(context.Context, D) D2) *dataflow.Collection[T, D2, R] {
	m := &asyncMapper[T, D, D2, R]{
		name:  siteName(name, site),
		limit: c.Scope().Config().AsyncConcurrency,
		logic: logic,
	}

	return dataflow.NewCollection(dataflow.Unary(c.Inner, dataflow.Pipeline[dataflow.Update[D, T, R]](), m.name,
		func(oc *dataflow.OpContext[T], in *dataflow.InputHandle[T, dataflow.Update[D, T, R]],
			out *dataflow.OutputHandle[T, dataflow.Update[D2, T, R]]) {
			for t, data, ok := in.Next(); ok; t, data, ok = in.Next() {
				m.run(oc.Context(), data)
				out.Session(t).GiveVec(&m.results)
			}
		}))
}

// asyncMapper holds the buffers of one worker's instance of an asynchronous map.
type asyncMapper[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]] struct {
	name    string
	limit   int
	logic   func(context.Context, D) D2
	scratch []dataflow.Update[D, T, R]
	results []dataflow.Update[D2, T, R]
	mu      sync.Mutex
}

// run evaluates a batch and leaves the outputs in the result buffer, which must be empty on entry.
func (m *asyncMapper[T, D, D2, R]) run(ctx context.Context, data []dataflow.Update[D, T, R]) {
	if len(m.results) != 0 {
		panic(fmt.Sprintf("operator %q: result buffer holds %d records from a previous batch",
			m.name, len(m.results)))
	}
	m.scratch = append(m.scratch[:0], data...)

	var g errgroup.Group
	if m.limit > 0 {
		g.SetLimit(m.limit)
	}
	for _, u := range m.scratch {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &AsyncFault{Operator: m.name, Value: r, Stack: debug.Stack()}
				}
			}()

			d := m.logic(ctx, u.Data)

			m.mu.Lock()
			m.results = append(m.results, dataflow.Update[D2, T, R]{Data: d, Time: u.Time, Diff: u.Diff})
			m.mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	clear(m.scratch)
	if err != nil {
		panic(err)
	}
}
