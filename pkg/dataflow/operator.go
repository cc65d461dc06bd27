package dataflow

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
)

type inputPort[T Timestamp[T]] interface {
	has(target int, t T) bool
}

// node is one worker's instance of an operator.
type node[T Timestamp[T]] struct {
	id     int
	name   string
	kind   string
	ports  []inputPort[T]
	edges  []EdgeInfo
	notify map[T]struct{}
	staged func(T) bool
	run    func(*OpContext[T])
}

func (n *node[T]) hasWork(worker int, t T) bool {
	if _, ok := n.notify[t]; ok {
		return true
	}
	if n.staged != nil && n.staged(t) {
		return true
	}
	for _, p := range n.ports {
		if p.has(worker, t) {
			return true
		}
	}
	return false
}

// OpContext is the per-invocation context of an operator callback.
type OpContext[T Timestamp[T]] struct {
	ctx   context.Context
	node  *node[T]
	scope *Scope[T]
	now   T
}

// Time returns the logical time of the current round.
func (c *OpContext[T]) Time() T { return c.now }

// Worker returns the index of the worker running the callback.
func (c *OpContext[T]) Worker() int { return c.scope.index }

// Peers returns the number of workers.
func (c *OpContext[T]) Peers() int { return c.scope.Peers() }

// Name returns the diagnostic name of the operator.
func (c *OpContext[T]) Name() string { return c.node.name }

// Context returns the context of the dataflow step driving the callback.
func (c *OpContext[T]) Context() context.Context { return c.ctx }

// Logger returns the worker's logger.
func (c *OpContext[T]) Logger() logr.Logger { return c.scope.log }

// NotifyAt requests an invocation of the operator at a later time even if no input arrives then.
func (c *OpContext[T]) NotifyAt(t T) {
	if !c.now.LessEqual(t) {
		panic(fmt.Sprintf("operator %q requested a notification at %s during round %s",
			c.node.name, t, c.now))
	}
	if t == c.now {
		return
	}
	if c.node.notify == nil {
		c.node.notify = make(map[T]struct{})
	}
	c.node.notify[t] = struct{}{}
	c.scope.df.schedule(t)
}

// InputHandle yields the batch delivered to an operator in the current round.
type InputHandle[T Timestamp[T], D any] struct {
	ch     *channel[T, D]
	worker int
	now    T
	done   bool
}

// Next returns the next (time, batch) pair, or false once the input is exhausted for the round.
func (h *InputHandle[T, D]) Next() (T, []D, bool) {
	var zero T
	if h.done {
		return zero, nil, false
	}
	h.done = true
	if !h.ch.has(h.worker, h.now) {
		return zero, nil, false
	}
	return h.now, h.ch.take(h.worker, h.now), true
}

// OutputHandle buffers the records an operator emits; the runtime forwards them to the consumers
// when the callback returns.
type OutputHandle[T Timestamp[T], D any] struct {
	node  *node[T]
	outs  *[]*channel[T, D]
	now   T
	buf   map[T][]D
	order []T
}

func newOutputHandle[T Timestamp[T], D any](n *node[T]) *OutputHandle[T, D] {
	outs := make([]*channel[T, D], 0)
	return &OutputHandle[T, D]{node: n, outs: &outs, buf: make(map[T][]D)}
}

// Session opens an output session at time t. Emitting at a time earlier than the current round is
// a defect of the operator.
func (h *OutputHandle[T, D]) Session(t T) *Session[T, D] {
	if !h.now.LessEqual(t) {
		panic(fmt.Sprintf("operator %q cannot emit at time %s during round %s", h.node.name, t, h.now))
	}
	return &Session[T, D]{h: h, t: t}
}

func (h *OutputHandle[T, D]) flush(ctx context.Context, worker int) {
	for _, t := range h.order {
		data := h.buf[t]
		for _, ch := range *h.outs {
			ch.push(ctx, worker, t, data)
		}
		delete(h.buf, t)
	}
	h.order = h.order[:0]
}

// Session emits records at one time.
type Session[T Timestamp[T], D any] struct {
	h *OutputHandle[T, D]
	t T
}

// Give emits one record.
func (s *Session[T, D]) Give(d D) {
	if _, ok := s.h.buf[s.t]; !ok {
		s.h.order = append(s.h.order, s.t)
	}
	s.h.buf[s.t] = append(s.h.buf[s.t], d)
}

// GiveSlice emits a batch of records.
func (s *Session[T, D]) GiveSlice(data []D) {
	if len(data) == 0 {
		return
	}
	if _, ok := s.h.buf[s.t]; !ok {
		s.h.order = append(s.h.order, s.t)
	}
	s.h.buf[s.t] = append(s.h.buf[s.t], data...)
}

// GiveVec emits a batch of records and leaves the slice empty for reuse.
func (s *Session[T, D]) GiveVec(data *[]D) {
	s.GiveSlice(*data)
	clear(*data)
	*data = (*data)[:0]
}

// Unary registers an operator with one input and one output. The logic is invoked at most once per
// round, whenever a batch arrives or a requested notification is due.
func Unary[T Timestamp[T], D1, D2 any](in *Stream[T, D1], pact Pact[D1], name string,
	logic func(*OpContext[T], *InputHandle[T, D1], *OutputHandle[T, D2])) *Stream[T, D2] {
	return unary(in, pact, name, "unary", logic)
}

func unary[T Timestamp[T], D1, D2 any](in *Stream[T, D1], pact Pact[D1], name, kind string,
	logic func(*OpContext[T], *InputHandle[T, D1], *OutputHandle[T, D2])) *Stream[T, D2] {
	s := in.scope
	n := s.addNode(name, kind)
	ch := connect(in, n, pact)

	input := &InputHandle[T, D1]{ch: ch, worker: s.index}
	output := newOutputHandle[T, D2](n)

	n.run = func(oc *OpContext[T]) {
		input.now, input.done = oc.now, false
		output.now = oc.now
		logic(oc, input, output)
		output.flush(oc.ctx, s.index)
	}

	return &Stream[T, D2]{scope: s, node: n, outs: output.outs}
}

// Sink registers an operator that consumes a stream without producing one.
func Sink[T Timestamp[T], D any](in *Stream[T, D], pact Pact[D], name string,
	logic func(*OpContext[T], *InputHandle[T, D])) {
	s := in.scope
	n := s.addNode(name, "sink")
	ch := connect(in, n, pact)

	input := &InputHandle[T, D]{ch: ch, worker: s.index}
	n.run = func(oc *OpContext[T]) {
		input.now, input.done = oc.now, false
		logic(oc, input)
	}
}
