package operators

import (
	"fmt"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/zset"
)

// MapWrapped applies logic to every datum, leaving times and diffs as they are. The wrapper
// brackets each batch callback.
func MapWrapped[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], wrapper BatchWrapper, logic func(D) D2) *dataflow.Collection[T, D2, R] {
	return mapWrappedAt(c, fmt.Sprintf("MapWrapped(%s)", wrapper), caller(1), wrapper, logic)
}

// MapEx applies logic to every datum.
func MapEx[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], logic func(D) D2) *dataflow.Collection[T, D2, R] {
	return mapWrappedAt(c, "MapEx", caller(1), NoWrapper{}, logic)
}

// MapNamed is MapEx with a diagnostic name.
func MapNamed[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], name string, logic func(D) D2) *dataflow.Collection[T, D2, R] {
	return mapWrappedAt(c, name, caller(1), NoWrapper{}, logic)
}

// MapWrappedNamed is the primitive of the synchronous maps. Each batch is drained into a scratch
// buffer, transformed and emitted as a single session at the batch's time. Records never move to
// another worker. The operator is named after name and the user's call site.
func MapWrappedNamed[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], name string, wrapper BatchWrapper, logic func(D) D2) *dataflow.Collection[T, D2, R] {
	return mapWrappedAt(c, name, caller(1), wrapper, logic)
}

func mapWrappedAt[T dataflow.Timestamp[T], D, D2 any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R], name, site string, wrapper BatchWrapper, logic func(D) D2) *dataflow.Collection[T, D2, R] {
	var vec []dataflow.Update[D2, T, R]

	return dataflow.NewCollection(dataflow.Unary(c.Inner, dataflow.Pipeline[dataflow.Update[D, T, R]](), siteName(name, site),
		func(oc *dataflow.OpContext[T], in *dataflow.InputHandle[T, dataflow.Update[D, T, R]],
			out *dataflow.OutputHandle[T, dataflow.Update[D2, T, R]]) {
			info := BatchInfo{Operator: oc.Name(), Worker: oc.Worker(), Time: oc.Time().String(), Logger: oc.Logger()}
			wrapper.Wrap(info, func() {
				for t, data, ok := in.Next(); ok; t, data, ok = in.Next() {
					// a faulted batch may have left records behind
					vec = vec[:0]
					for _, u := range data {
						vec = append(vec, dataflow.Update[D2, T, R]{Data: logic(u.Data), Time: u.Time, Diff: u.Diff})
					}
					out.Session(t).GiveVec(&vec)
				}
			})
		}))
}
