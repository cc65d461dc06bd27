package dataflow

import (
	"github.com/l7mp/dflow/pkg/zset"
)

// Input feeds updates into one worker's copy of the dataflow. Updates are staged at a time no
// earlier than the input's frontier; times the frontier has passed become eligible for processing.
type Input[T Timestamp[T], D any, R zset.Semigroup[R]] struct {
	name     string
	df       *Dataflow[T]
	frontier T
	closed   bool
	staged   map[T][]Update[D, T, R]
}

// NewInput registers an input on a worker and returns its handle and the collection it feeds.
func NewInput[T Timestamp[T], D any, R zset.Semigroup[R]](s *Scope[T], name string) (*Input[T, D, R], *Collection[T, D, R]) {
	n := s.addNode(name, "input")
	in := &Input[T, D, R]{
		name:   name,
		df:     s.df,
		staged: make(map[T][]Update[D, T, R]),
	}
	output := newOutputHandle[T, Update[D, T, R]](n)

	n.staged = func(t T) bool {
		in.df.mu.Lock()
		defer in.df.mu.Unlock()
		return len(in.staged[t]) > 0
	}
	n.run = func(oc *OpContext[T]) {
		in.df.mu.Lock()
		data := in.staged[oc.now]
		delete(in.staged, oc.now)
		in.df.mu.Unlock()

		output.now = oc.now
		output.Session(oc.now).GiveSlice(data)
		output.flush(oc.ctx, s.index)
	}

	s.df.mu.Lock()
	s.df.inputs = append(s.df.inputs, in)
	s.df.mu.Unlock()

	return in, NewCollection(&Stream[T, Update[D, T, R]]{scope: s, node: n, outs: output.outs})
}

// Time returns the input's frontier: the earliest time it can still send at.
func (in *Input[T, D, R]) Time() T {
	in.df.mu.Lock()
	defer in.df.mu.Unlock()
	return in.frontier
}

// Send stages an update at the input's frontier.
func (in *Input[T, D, R]) Send(d D, r R) error {
	in.df.mu.Lock()
	defer in.df.mu.Unlock()
	return in.sendLocked(d, in.frontier, r)
}

// SendAt stages an update at time t, which must not be earlier than the frontier.
func (in *Input[T, D, R]) SendAt(d D, t T, r R) error {
	in.df.mu.Lock()
	defer in.df.mu.Unlock()
	return in.sendLocked(d, t, r)
}

func (in *Input[T, D, R]) sendLocked(d D, t T, r R) error {
	if in.closed {
		return NewInputError(in.name, "input is closed")
	}
	if !in.frontier.LessEqual(t) {
		return NewInputError(in.name, "cannot send at "+t.String()+" behind the frontier "+in.frontier.String())
	}
	if r.IsZero() {
		return nil
	}
	in.staged[t] = append(in.staged[t], Update[D, T, R]{Data: d, Time: t, Diff: r})
	in.df.scheduleLocked(t)
	return nil
}

// AdvanceTo moves the frontier forward, declaring that no more updates will be sent before t.
func (in *Input[T, D, R]) AdvanceTo(t T) error {
	in.df.mu.Lock()
	defer in.df.mu.Unlock()
	if in.closed {
		return NewInputError(in.name, "input is closed")
	}
	if !in.frontier.LessEqual(t) {
		return NewInputError(in.name, "cannot advance to "+t.String()+" behind the frontier "+in.frontier.String())
	}
	in.frontier = t
	return nil
}

// Close declares the input complete.
func (in *Input[T, D, R]) Close() {
	in.df.mu.Lock()
	defer in.df.mu.Unlock()
	in.close()
}

func (in *Input[T, D, R]) close() { in.closed = true }

func (in *Input[T, D, R]) blocks(t T) bool {
	return !in.closed && in.frontier.LessEqual(t)
}
