package dataflow

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/l7mp/dflow/pkg/shard"
)

// Pact is the delivery policy of an edge: records either stay on the worker that produced them
// (pipeline) or move to the worker owning their shard (exchange).
type Pact[D any] struct {
	route func(D) uint64
}

// Pipeline keeps records on their worker.
func Pipeline[D any]() Pact[D] { return Pact[D]{} }

// ExchangeBy sends each record to shard.Worker(route(record), peers).
func ExchangeBy[D any](route func(D) uint64) Pact[D] { return Pact[D]{route: route} }

// IsExchange tells whether the pact moves records between workers.
func (p Pact[D]) IsExchange() bool { return p.route != nil }

// channel is an edge of the dataflow graph. A single channel is shared by all workers: each
// (target, source) pair owns a mailbox that only the source writes and only the target reads, and
// the scheduler never runs a producer and its consumer in the same phase.
type channel[T Timestamp[T], D any] struct {
	id    int
	from  int
	peers int
	route func(D) uint64
	df    *Dataflow[T]
	slots [][]map[T][]D // [target][source]
}

func newChannel[T Timestamp[T], D any](df *Dataflow[T], id, from int, pact Pact[D]) *channel[T, D] {
	peers := df.config.Workers
	slots := make([][]map[T][]D, peers)
	for target := range slots {
		slots[target] = make([]map[T][]D, peers)
		for source := range slots[target] {
			slots[target][source] = make(map[T][]D)
		}
	}
	return &channel[T, D]{id: id, from: from, peers: peers, route: pact.route, df: df, slots: slots}
}

func (c *channel[T, D]) push(ctx context.Context, source int, t T, data []D) {
	if len(data) == 0 {
		return
	}

	if c.route == nil {
		slot := c.slots[source][source]
		slot[t] = append(slot[t], data...)
		c.df.schedule(t)
		return
	}

	moved := 0
	for _, d := range data {
		target := shard.Worker(c.route(d), c.peers)
		slot := c.slots[target][source]
		slot[t] = append(slot[t], d)
		if target != source {
			moved++
		}
	}
	c.df.schedule(t)

	if moved > 0 {
		c.df.instr.exchanged.Add(ctx, int64(moved), metric.WithAttributes(attribute.Int("channel", c.id)))
	}
}

func (c *channel[T, D]) has(target int, t T) bool {
	for _, slot := range c.slots[target] {
		if len(slot[t]) > 0 {
			return true
		}
	}
	return false
}

// take removes the batch for time t, concatenated in source worker order.
func (c *channel[T, D]) take(target int, t T) []D {
	var ret []D
	for _, slot := range c.slots[target] {
		ret = append(ret, slot[t]...)
		delete(slot, t)
	}
	return ret
}

// Stream is the output of an operator on one worker.
type Stream[T Timestamp[T], D any] struct {
	scope *Scope[T]
	node  *node[T]
	outs  *[]*channel[T, D]
}

// Scope returns the worker scope of the stream.
func (s *Stream[T, D]) Scope() *Scope[T] { return s.scope }

// connect attaches a consumer to a stream. Channels are created by the first worker and looked up
// by the others in construction order.
func connect[T Timestamp[T], D any](s *Stream[T, D], consumer *node[T], pact Pact[D]) *channel[T, D] {
	scope := s.scope
	idx := scope.nextChannel
	scope.nextChannel++

	var ch *channel[T, D]
	if idx < len(scope.df.channels) {
		existing, ok := scope.df.channels[idx].(*channel[T, D])
		if !ok || existing.from != s.node.id {
			panic(graphMismatch{worker: scope.index, message: "channel " + consumer.name +
				" does not match the first worker's graph"})
		}
		ch = existing
	} else {
		ch = newChannel(scope.df, idx, s.node.id, pact)
		scope.df.channels = append(scope.df.channels, ch)
	}

	*s.outs = append(*s.outs, ch)
	consumer.ports = append(consumer.ports, ch)
	consumer.edges = append(consumer.edges, EdgeInfo{From: s.node.id, To: consumer.id,
		Exchange: pact.IsExchange()})

	return ch
}
