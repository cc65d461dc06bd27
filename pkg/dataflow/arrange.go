package dataflow

import (
	"github.com/l7mp/dflow/pkg/zset"
)

// Arranged is a collection indexed by key on each worker: the stream of batches as they are
// inserted, and a shared handle on the trace holding all of them.
type Arranged[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]] struct {
	Stream *Stream[T, *Batch[T, K, V, R]]
	agent  *TraceAgent[T, K, V, R]
	name   string
}

// Name returns the diagnostic name of the arrangement.
func (a *Arranged[T, K, V, R]) Name() string { return a.name }

// Scope returns the worker scope of the arrangement.
func (a *Arranged[T, K, V, R]) Scope() *Scope[T] { return a.Stream.scope }

// Trace returns a new handle on the arrangement's trace. Consumers release it when done; handles
// taken by the operators of this package are released when the dataflow is closed.
func (a *Arranged[T, K, V, R]) Trace() *TraceAgent[T, K, V, R] { return a.agent.Clone() }

// ArrangeCore arranges a collection of key-value pairs, delivering the updates to the arrangement
// according to pact.
func ArrangeCore[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *Collection[T, KV[K, V], R],
	pact Pact[Update[KV[K, V], T, R]], name string) *Arranged[T, K, V, R] {
	return arrangeBy(c, pact, name, func(kv KV[K, V]) (K, V) { return kv.Key, kv.Val })
}

// ArrangeSelfCore arranges a collection by its data, each datum keyed against the unit value.
func ArrangeSelfCore[T Timestamp[T], K comparable, R zset.Semigroup[R]](c *Collection[T, K, R],
	pact Pact[Update[K, T, R]], name string) *Arranged[T, K, Unit, R] {
	return arrangeBy(c, pact, name, func(k K) (K, Unit) { return k, Unit{} })
}

func arrangeBy[T Timestamp[T], D any, K comparable, V comparable, R zset.Semigroup[R]](c *Collection[T, D, R],
	pact Pact[Update[D, T, R]], name string, split func(D) (K, V)) *Arranged[T, K, V, R] {
	s := c.Scope()
	tr := newTrace[T, K, V, R](name)
	agent := newTraceAgent(tr)
	s.compactors = append(s.compactors, tr)
	s.OnClose(agent.Release)

	type kv struct {
		key K
		val V
	}

	stream := unary(c.Inner, pact, name, "arrange",
		func(_ *OpContext[T], in *InputHandle[T, Update[D, T, R]], out *OutputHandle[T, *Batch[T, K, V, R]]) {
			for t, data, ok := in.Next(); ok; t, data, ok = in.Next() {
				sums := make(map[kv]R, len(data))
				var order []kv
				for _, u := range data {
					k, v := split(u.Data)
					key := kv{k, v}
					if r, ok := sums[key]; ok {
						sums[key] = r.Plus(u.Diff)
						continue
					}
					sums[key] = u.Diff
					order = append(order, key)
				}

				b := &Batch[T, K, V, R]{Time: t, Vals: make(map[K][]ValUpdate[V, T, R])}
				for _, key := range order {
					r := sums[key]
					if r.IsZero() {
						continue
					}
					if _, ok := b.Vals[key.key]; !ok {
						b.Keys = append(b.Keys, key.key)
					}
					b.Vals[key.key] = append(b.Vals[key.key], ValUpdate[V, T, R]{Val: key.val, Time: t, Diff: r})
				}
				if len(b.Keys) == 0 {
					continue
				}

				tr.Insert(b)
				out.Session(t).Give(b)
			}
		})

	return &Arranged[T, K, V, R]{Stream: stream, agent: agent, name: name}
}

// AsCollection flattens an arrangement back into a collection.
func AsCollection[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R], D any](a *Arranged[T, K, V, R],
	name string, f func(K, V) D) *Collection[T, D, R] {
	return NewCollection(Unary(a.Stream, Pipeline[*Batch[T, K, V, R]](), name,
		func(_ *OpContext[T], in *InputHandle[T, *Batch[T, K, V, R]], out *OutputHandle[T, Update[D, T, R]]) {
			for t, batches, ok := in.Next(); ok; t, batches, ok = in.Next() {
				session := out.Session(t)
				for _, b := range batches {
					for _, k := range b.Keys {
						for _, v := range b.Vals[k] {
							session.Give(Update[D, T, R]{Data: f(k, v.Val), Time: v.Time, Diff: v.Diff})
						}
					}
				}
			}
		}))
}
