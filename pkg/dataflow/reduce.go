package dataflow

import (
	"slices"

	"github.com/l7mp/dflow/pkg/zset"
)

// Count counts the keys of an arrangement over partially ordered times. The output at every time
// holds (key, weight) with diff +1 for each key whose accumulated weight is non-zero.
func Count[T Timestamp[T], K comparable, R zset.Semigroup[R]](a *Arranged[T, K, Unit, R], name string) *Collection[T, KV[K, R], zset.Diff] {
	return reduceCore(a, name, func(k K, r R) KV[K, R] { return KV[K, R]{Key: k, Val: r} })
}

// Distinct emits every key of an arrangement whose accumulated weight is non-zero, over partially
// ordered times.
func Distinct[T Timestamp[T], K comparable, R zset.Semigroup[R]](a *Arranged[T, K, Unit, R], name string) *Collection[T, K, zset.Diff] {
	return reduceCore(a, name, func(k K, _ R) K { return k })
}

// keyState is the per-key state of a reduction: the times the key was evaluated at and the
// updates emitted for it.
type keyState[T Timestamp[T], D comparable] struct {
	times   []T
	outputs []Update[D, T, zset.Diff]
}

// reduceCore maintains the output f(key, weight) of every key at every time. The input of a key at
// time t is read back from the trace, the output emitted so far is accumulated from the operator's
// own history, and the difference is emitted at t. Whenever a key changes at t, the joins of t with
// the key's earlier times may need corrections and are scheduled for evaluation.
func reduceCore[T Timestamp[T], K comparable, R zset.Semigroup[R], D comparable](a *Arranged[T, K, Unit, R], name string,
	f func(K, R) D) *Collection[T, D, zset.Diff] {
	agent := a.Trace()
	a.Scope().OnClose(agent.Release)

	states := make(map[K]*keyState[T, D])
	pending := make(map[T][]K)

	return NewCollection(unary(a.Stream, Pipeline[*Batch[T, K, Unit, R]](), name, "reduce",
		func(oc *OpContext[T], in *InputHandle[T, *Batch[T, K, Unit, R]], out *OutputHandle[T, Update[D, T, zset.Diff]]) {
			now := oc.Time()

			seen := make(map[K]struct{})
			var keys []K
			add := func(k K) {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}

			for _, batches, ok := in.Next(); ok; _, batches, ok = in.Next() {
				for _, b := range batches {
					for _, k := range b.Keys {
						add(k)
					}
				}
			}
			for _, k := range pending[now] {
				add(k)
			}
			delete(pending, now)

			session := out.Session(now)
			for _, k := range keys {
				st, ok := states[k]
				if !ok {
					st = &keyState[T, D]{}
					states[k] = st
				}

				desired := zset.New[D, zset.Diff]()
				if r, ok := agent.Accumulate(k, now).Get(Unit{}); ok {
					desired.Add(f(k, r), 1)
				}
				current := zset.New[D, zset.Diff]()
				for _, u := range st.outputs {
					if u.Time.LessEqual(now) {
						current.Add(u.Data, u.Diff)
					}
				}

				for _, e := range zset.Subtract(desired, current).Entries() {
					u := Update[D, T, zset.Diff]{Data: e.Data, Time: now, Diff: e.Weight}
					st.outputs = append(st.outputs, u)
					session.Give(u)
				}

				known := false
				for _, s := range st.times {
					if s == now {
						known = true
						continue
					}
					j := s.Join(now)
					if j == now {
						continue
					}
					if !slices.Contains(pending[j], k) {
						pending[j] = append(pending[j], k)
					}
					oc.NotifyAt(j)
				}
				if !known {
					st.times = append(st.times, now)
				}
			}
		}))
}
