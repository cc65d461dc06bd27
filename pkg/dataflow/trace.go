package dataflow

import (
	"sync/atomic"

	"github.com/l7mp/dflow/pkg/zset"
)

// ValUpdate is a change of one value of a key in a trace.
type ValUpdate[V, T, R any] struct {
	Val  V
	Time T
	Diff R
}

// Batch is the consolidated set of updates an arrangement received at one time, grouped by key.
// Batches are immutable once emitted.
type Batch[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]] struct {
	Time T
	Keys []K
	Vals map[K][]ValUpdate[V, T, R]
}

// Len returns the number of updates in the batch.
func (b *Batch[T, K, V, R]) Len() int {
	n := 0
	for _, vs := range b.Vals {
		n += len(vs)
	}
	return n
}

// Trace is the append-only, key-indexed log of the batches of one arrangement on one worker. Only
// the arrangement operator writes it; compaction is left to the runtime.
type Trace[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]] struct {
	name    string
	history map[K][]ValUpdate[V, T, R]
	keys    []K
	batches int
	dropped bool
}

func newTrace[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](name string) *Trace[T, K, V, R] {
	return &Trace[T, K, V, R]{name: name, history: make(map[K][]ValUpdate[V, T, R])}
}

// Insert appends a batch.
func (tr *Trace[T, K, V, R]) Insert(b *Batch[T, K, V, R]) {
	if tr.dropped {
		return
	}
	for _, k := range b.Keys {
		if _, ok := tr.history[k]; !ok {
			tr.keys = append(tr.keys, k)
		}
		tr.history[k] = append(tr.history[k], b.Vals[k]...)
	}
	tr.batches++
}

// History returns the updates of a key in insertion order.
func (tr *Trace[T, K, V, R]) History(k K) []ValUpdate[V, T, R] {
	return tr.history[k]
}

// Accumulate returns the values of a key accumulated over the updates at times less than or equal
// to t. Values whose weights add up to zero are omitted.
func (tr *Trace[T, K, V, R]) Accumulate(k K, t T) *zset.ZSet[V, R] {
	ret := zset.New[V, R]()
	for _, u := range tr.history[k] {
		if u.Time.LessEqual(t) {
			ret.Add(u.Val, u.Diff)
		}
	}
	return ret
}

// Keys returns the keys that ever appeared, in order of first appearance.
func (tr *Trace[T, K, V, R]) Keys() []K { return tr.keys }

// Len returns the number of updates held.
func (tr *Trace[T, K, V, R]) Len() int {
	n := 0
	for _, h := range tr.history {
		n += len(h)
	}
	return n
}

// compact consolidates the updates of each key that share a value and a time. Accumulations at
// any time are unchanged.
func (tr *Trace[T, K, V, R]) compact() {
	type vt struct {
		val  V
		time T
	}
	for k, h := range tr.history {
		sums := make(map[vt]R, len(h))
		order := make([]vt, 0, len(h))
		for _, u := range h {
			key := vt{u.Val, u.Time}
			if r, ok := sums[key]; ok {
				sums[key] = r.Plus(u.Diff)
				continue
			}
			sums[key] = u.Diff
			order = append(order, key)
		}
		compacted := h[:0]
		for _, key := range order {
			if r := sums[key]; !r.IsZero() {
				compacted = append(compacted, ValUpdate[V, T, R]{Val: key.val, Time: key.time, Diff: r})
			}
		}
		tr.history[k] = compacted
	}
	if tr.batches > 0 {
		tr.batches = 1
	}
}

func (tr *Trace[T, K, V, R]) batchCount() int  { return tr.batches }
func (tr *Trace[T, K, V, R]) traceName() string { return tr.name }

func (tr *Trace[T, K, V, R]) drop() {
	tr.dropped = true
	tr.history = nil
	tr.keys = nil
}

type compactor interface {
	batchCount() int
	compact()
	traceName() string
}

// TraceAgent is a shared read handle on a trace. The trace lives as long as any agent does; the
// last Release drops its storage.
type TraceAgent[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]] struct {
	trace    *Trace[T, K, V, R]
	refs     *atomic.Int32
	released bool
}

func newTraceAgent[T Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](tr *Trace[T, K, V, R]) *TraceAgent[T, K, V, R] {
	refs := &atomic.Int32{}
	refs.Store(1)
	return &TraceAgent[T, K, V, R]{trace: tr, refs: refs}
}

// Clone returns a new handle on the same trace.
func (a *TraceAgent[T, K, V, R]) Clone() *TraceAgent[T, K, V, R] {
	a.refs.Add(1)
	return &TraceAgent[T, K, V, R]{trace: a.trace, refs: a.refs}
}

// Release gives up the handle.
func (a *TraceAgent[T, K, V, R]) Release() {
	if a.released {
		return
	}
	a.released = true
	if a.refs.Add(-1) == 0 {
		a.trace.drop()
	}
}

// Refs returns the number of live handles.
func (a *TraceAgent[T, K, V, R]) Refs() int { return int(a.refs.Load()) }

// History returns the updates of a key in insertion order.
func (a *TraceAgent[T, K, V, R]) History(k K) []ValUpdate[V, T, R] { return a.trace.History(k) }

// Accumulate returns the values of a key accumulated at time t.
func (a *TraceAgent[T, K, V, R]) Accumulate(k K, t T) *zset.ZSet[V, R] { return a.trace.Accumulate(k, t) }

// Keys returns the keys of the trace.
func (a *TraceAgent[T, K, V, R]) Keys() []K { return a.trace.Keys() }

// Len returns the number of updates in the trace.
func (a *TraceAgent[T, K, V, R]) Len() int { return a.trace.Len() }

// Batches returns the number of batches inserted since the last compaction.
func (a *TraceAgent[T, K, V, R]) Batches() int { return a.trace.batchCount() }
