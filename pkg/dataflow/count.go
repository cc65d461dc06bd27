package dataflow

import (
	"github.com/l7mp/dflow/pkg/zset"
)

// CountTotal counts the keys of an arrangement with a single running accumulation per key. Each
// round's batch is folded into the accumulation of the previous rounds, so the times of the scope
// must be totally ordered.
func CountTotal[T Timestamp[T], K comparable, R zset.Semigroup[R]](a *Arranged[T, K, Unit, R], name string) *Collection[T, KV[K, R], zset.Diff] {
	return accumulateTotal(a, name, func(k K, r R) KV[K, R] { return KV[K, R]{Key: k, Val: r} }, true)
}

// DistinctTotal emits every key of an arrangement whose accumulated weight is non-zero, for totally
// ordered times.
func DistinctTotal[T Timestamp[T], K comparable, R zset.Semigroup[R]](a *Arranged[T, K, Unit, R], name string) *Collection[T, K, zset.Diff] {
	return accumulateTotal(a, name, func(k K, _ R) K { return k }, false)
}

// accumulateTotal keeps the accumulated weight of every key seen on the worker and emits the
// change of f(key, weight) whenever it moves. When weighted is unset only presence changes emit.
func accumulateTotal[T Timestamp[T], K comparable, R zset.Semigroup[R], D any](a *Arranged[T, K, Unit, R], name string,
	f func(K, R) D, weighted bool) *Collection[T, D, zset.Diff] {
	acc := make(map[K]R)

	return NewCollection(unary(a.Stream, Pipeline[*Batch[T, K, Unit, R]](), name, "reduce",
		func(_ *OpContext[T], in *InputHandle[T, *Batch[T, K, Unit, R]], out *OutputHandle[T, Update[D, T, zset.Diff]]) {
			for t, batches, ok := in.Next(); ok; t, batches, ok = in.Next() {
				session := out.Session(t)
				for _, b := range batches {
					for _, k := range b.Keys {
						prev, had := acc[k]
						next, has := prev, had
						for _, u := range b.Vals[k] {
							if has {
								next = next.Plus(u.Diff)
							} else {
								next, has = u.Diff, true
							}
						}
						if has && next.IsZero() {
							has = false
						}

						if has {
							acc[k] = next
						} else {
							delete(acc, k)
						}

						if had == has && (!weighted || !has || prev == next) {
							continue
						}
						if had {
							session.Give(Update[D, T, zset.Diff]{Data: f(k, prev), Time: t, Diff: -1})
						}
						if has {
							session.Give(Update[D, T, zset.Diff]{Data: f(k, next), Time: t, Diff: 1})
						}
					}
				}
			}
		}))
}
