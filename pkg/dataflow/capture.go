package dataflow

import (
	"slices"
	"sync"

	"github.com/l7mp/dflow/pkg/zset"
)

// CapturedUpdate is an update together with the worker it was observed on.
type CapturedUpdate[D, T, R any] struct {
	Worker int
	Update[D, T, R]
}

// Captured collects the updates of a collection from all workers.
type Captured[T Timestamp[T], D comparable, R zset.Semigroup[R]] struct {
	mu      sync.Mutex
	updates []CapturedUpdate[D, T, R]
}

// NewCaptured creates an empty capture, to be shared by the workers' Capture operators.
func NewCaptured[T Timestamp[T], D comparable, R zset.Semigroup[R]]() *Captured[T, D, R] {
	return &Captured[T, D, R]{}
}

// Capture records every update of a collection into a shared capture.
func Capture[T Timestamp[T], D comparable, R zset.Semigroup[R]](c *Collection[T, D, R], name string, into *Captured[T, D, R]) {
	Sink(c.Inner, Pipeline[Update[D, T, R]](), name, func(oc *OpContext[T], in *InputHandle[T, Update[D, T, R]]) {
		for _, data, ok := in.Next(); ok; _, data, ok = in.Next() {
			into.mu.Lock()
			for _, u := range data {
				into.updates = append(into.updates, CapturedUpdate[D, T, R]{Worker: oc.Worker(), Update: u})
			}
			into.mu.Unlock()
		}
	})
}

// Updates returns all captured updates in arrival order.
func (c *Captured[T, D, R]) Updates() []CapturedUpdate[D, T, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.updates)
}

// Drain returns and forgets the captured updates.
func (c *Captured[T, D, R]) Drain() []CapturedUpdate[D, T, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := c.updates
	c.updates = nil
	return ret
}

// ByWorker returns the updates observed on one worker.
func (c *Captured[T, D, R]) ByWorker(worker int) []Update[D, T, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []Update[D, T, R]
	for _, u := range c.updates {
		if u.Worker == worker {
			ret = append(ret, u.Update)
		}
	}
	return ret
}

// Times returns the distinct times of the captured updates, ordered by Compare.
func (c *Captured[T, D, R]) Times() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[T]struct{})
	var ret []T
	for _, u := range c.updates {
		if _, ok := seen[u.Time]; !ok {
			seen[u.Time] = struct{}{}
			ret = append(ret, u.Time)
		}
	}
	slices.SortFunc(ret, func(a, b T) int { return a.Compare(b) })
	return ret
}

// At consolidates the updates at exactly time t.
func (c *Captured[T, D, R]) At(t T) *zset.ZSet[D, R] {
	return c.accumulate(func(u T) bool { return u == t })
}

// AccumulateAt consolidates the updates at times less than or equal to t: the content of the
// collection as of t.
func (c *Captured[T, D, R]) AccumulateAt(t T) *zset.ZSet[D, R] {
	return c.accumulate(func(u T) bool { return u.LessEqual(t) })
}

// Accumulate consolidates all captured updates.
func (c *Captured[T, D, R]) Accumulate() *zset.ZSet[D, R] {
	return c.accumulate(func(T) bool { return true })
}

func (c *Captured[T, D, R]) accumulate(filter func(T) bool) *zset.ZSet[D, R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := zset.New[D, R]()
	for _, u := range c.updates {
		if filter(u.Time) {
			ret.Add(u.Data, u.Diff)
		}
	}
	return ret
}
