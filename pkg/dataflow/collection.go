package dataflow

import (
	"github.com/l7mp/dflow/pkg/shard"
	"github.com/l7mp/dflow/pkg/zset"
)

// Update is one change of a collection: datum d changes its multiplicity by Diff at Time.
type Update[D, T, R any] struct {
	Data D
	Time T
	Diff R
}

// KV is a datum viewed as a key and a value.
type KV[K, V any] struct {
	Key K
	Val V
}

// Shard places a key-value pair by its key, so that resharded pairs are colocated with the
// arrangements keyed by the same key.
func (kv KV[K, V]) Shard() uint64 { return shard.Of(kv.Key) }

// Unit is the empty value of self-arrangements.
type Unit = struct{}

// Collection is a multiset of data evolving over logical time, represented as a stream of
// updates.
type Collection[T Timestamp[T], D any, R zset.Semigroup[R]] struct {
	Inner *Stream[T, Update[D, T, R]]
}

// NewCollection wraps a stream of updates.
func NewCollection[T Timestamp[T], D any, R zset.Semigroup[R]](s *Stream[T, Update[D, T, R]]) *Collection[T, D, R] {
	return &Collection[T, D, R]{Inner: s}
}

// Scope returns the worker scope the collection lives in.
func (c *Collection[T, D, R]) Scope() *Scope[T] { return c.Inner.scope }

// Exchange routes every update to the worker owning route(datum). The content of the collection
// is unchanged.
func Exchange[T Timestamp[T], D any, R zset.Semigroup[R]](c *Collection[T, D, R], name string, route func(D) uint64) *Collection[T, D, R] {
	pact := ExchangeBy(func(u Update[D, T, R]) uint64 { return route(u.Data) })
	return NewCollection(Unary(c.Inner, pact, name,
		func(_ *OpContext[T], in *InputHandle[T, Update[D, T, R]], out *OutputHandle[T, Update[D, T, R]]) {
			for t, data, ok := in.Next(); ok; t, data, ok = in.Next() {
				out.Session(t).GiveSlice(data)
			}
		}))
}
