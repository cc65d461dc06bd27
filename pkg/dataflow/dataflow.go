package dataflow

import (
	"container/heap"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Dataflow is a graph of operators instantiated once per worker.
type Dataflow[T Timestamp[T]] struct {
	config   Config
	log      logr.Logger
	instr    *instruments
	scopes   []*Scope[T]
	channels []any

	mu      sync.Mutex
	queue   timeQueue[T]
	queued  map[T]struct{}
	current T
	inRound bool
	inputs  []frontier[T]
	err     error
	closed  bool
}

// frontier is implemented by inputs: blocks reports whether the input may still produce data at
// or before t.
type frontier[T Timestamp[T]] interface {
	blocks(t T) bool
	close()
}

// New builds a dataflow: build is called once per worker, in worker order, and must register the
// same operators in the same order each time.
func New[T Timestamp[T]](config Config, build func(*Scope[T]) error) (*Dataflow[T], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}

	df := &Dataflow[T]{
		config: config,
		log:    config.Logger.WithName("dataflow"),
		queued: make(map[T]struct{}),
	}
	df.instr = getInstruments(df.log)

	for w := 0; w < config.Workers; w++ {
		s := &Scope[T]{df: df, index: w, log: df.log.WithValues("worker", w)}
		df.scopes = append(df.scopes, s)
		if err := df.build(s, build); err != nil {
			return nil, err
		}

		if w > 0 {
			if got, want := len(s.nodes), len(df.scopes[0].nodes); got != want {
				return nil, NewGraphMismatchError(w, fmt.Sprintf("%d operators, expected %d", got, want))
			}
			if got, want := s.nextChannel, len(df.channels); got != want {
				return nil, NewGraphMismatchError(w, fmt.Sprintf("%d channels, expected %d", got, want))
			}
		}
	}

	df.log.V(1).Info("dataflow ready", "workers", config.Workers, "operators", len(df.scopes[0].nodes))

	return df, nil
}

func (df *Dataflow[T]) build(s *Scope[T], build func(*Scope[T]) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if m, ok := r.(graphMismatch); ok {
				err = NewGraphMismatchError(m.worker, m.message)
				return
			}
			err = fmt.Errorf("failed to build worker %d: %v", s.index, r)
		}
	}()

	if err := build(s); err != nil {
		return fmt.Errorf("failed to build worker %d: %w", s.index, err)
	}
	return nil
}

// Config returns the configuration of the dataflow.
func (df *Dataflow[T]) Config() Config { return df.config }

func (df *Dataflow[T]) schedule(t T) {
	df.mu.Lock()
	defer df.mu.Unlock()
	df.scheduleLocked(t)
}

func (df *Dataflow[T]) scheduleLocked(t T) {
	if df.inRound && t == df.current {
		return
	}
	if _, ok := df.queued[t]; ok {
		return
	}
	df.queued[t] = struct{}{}
	heap.Push(&df.queue, t)
}

// nextLocked pops the earliest pending time, provided no input can still produce data at or
// before it.
func (df *Dataflow[T]) nextLocked() (T, bool) {
	var zero T
	if df.queue.Len() == 0 {
		return zero, false
	}
	t := df.queue[0]
	for _, in := range df.inputs {
		if in.blocks(t) {
			return zero, false
		}
	}
	heap.Pop(&df.queue)
	delete(df.queued, t)
	return t, true
}

// Step processes the earliest complete time, if any, and reports whether it made progress. A
// worker failure fails the dataflow: the error is returned now and by every later call.
func (df *Dataflow[T]) Step(ctx context.Context) (bool, error) {
	df.mu.Lock()
	if df.err != nil {
		defer df.mu.Unlock()
		return false, df.err
	}
	if df.closed {
		defer df.mu.Unlock()
		return false, ErrClosed
	}
	t, ok := df.nextLocked()
	if !ok {
		df.mu.Unlock()
		return false, nil
	}
	df.current, df.inRound = t, true
	df.mu.Unlock()

	err := df.round(ctx, t)

	df.mu.Lock()
	df.inRound = false
	if err != nil {
		df.err = err
	}
	df.mu.Unlock()

	if err != nil {
		return true, err
	}

	df.compact()
	return true, nil
}

// Run processes every complete time.
func (df *Dataflow[T]) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress, err := df.Step(ctx)
		if err != nil {
			return err
		}
		if !progress {
			return nil
		}
	}
}

// Finish closes every input and processes all remaining times.
func (df *Dataflow[T]) Finish(ctx context.Context) error {
	df.mu.Lock()
	for _, in := range df.inputs {
		in.close()
	}
	df.mu.Unlock()
	return df.Run(ctx)
}

// Close tears the dataflow down and releases the resources held by its operators.
func (df *Dataflow[T]) Close() {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.closed {
		return
	}
	df.closed = true
	for _, s := range df.scopes {
		for _, f := range s.closers {
			f()
		}
	}
	df.log.V(1).Info("dataflow closed")
}

// round runs every operator for time t: operators in construction order, the instances of one
// operator on all workers concurrently.
func (df *Dataflow[T]) round(ctx context.Context, t T) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "dflow.round", trace.WithAttributes(attribute.String("time", t.String())))
	defer span.End()

	df.log.V(1).Info("processing round", "time", t.String())

	for i := range df.scopes[0].nodes {
		var g errgroup.Group
		for _, s := range df.scopes {
			n := s.nodes[i]
			if !n.hasWork(s.index, t) {
				continue
			}
			g.Go(func() error { return df.invoke(ctx, s, n, t) })
		}
		if err := g.Wait(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "worker failure")
			return err
		}
	}

	df.instr.roundLatency.Record(ctx, time.Since(start).Seconds())
	return nil
}

// invoke runs one operator instance. A panic terminates the instance and is reported as a worker
// failure.
func (df *Dataflow[T]) invoke(ctx context.Context, s *Scope[T], n *node[T], t T) (err error) {
	ctx, span := tracer.Start(ctx, n.name, trace.WithAttributes(
		attribute.Int("worker", s.index),
		attribute.String("time", t.String()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = &WorkerError{Worker: s.index, Operator: n.name, Time: t.String(), Panic: r,
				Stack: debug.Stack()}
			span.RecordError(err)
			span.SetStatus(codes.Error, "worker failure")
			s.log.Error(err, "operator failed", "operator", n.name)
		}
	}()

	delete(n.notify, t)
	s.log.V(2).Info("invoking operator", "operator", n.name, "time", t.String())
	df.instr.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", n.kind)))

	n.run(&OpContext[T]{ctx: ctx, node: n, scope: s, now: t})
	return nil
}

func (df *Dataflow[T]) compact() {
	threshold := df.config.TraceMergeThreshold
	if threshold == 0 {
		return
	}
	for _, s := range df.scopes {
		for _, c := range s.compactors {
			if c.batchCount() > threshold {
				c.compact()
				s.log.V(1).Info("trace compacted", "trace", c.traceName())
			}
		}
	}
}

// OperatorInfo describes an operator of the dataflow.
type OperatorInfo struct {
	ID   int
	Name string
	Kind string
}

// EdgeInfo describes an edge of the dataflow.
type EdgeInfo struct {
	From     int
	To       int
	Exchange bool
}

// Description is the shape of the dataflow graph, as built by every worker.
type Description struct {
	Workers   int
	Operators []OperatorInfo
	Edges     []EdgeInfo
}

// Describe returns the operator graph.
func (df *Dataflow[T]) Describe() Description {
	d := Description{Workers: df.config.Workers}
	for _, n := range df.scopes[0].nodes {
		d.Operators = append(d.Operators, OperatorInfo{ID: n.id, Name: n.name, Kind: n.kind})
		d.Edges = append(d.Edges, n.edges...)
	}
	return d
}

// timeQueue is a min-heap of times ordered by Compare.
type timeQueue[T Timestamp[T]] []T

func (q timeQueue[T]) Len() int           { return len(q) }
func (q timeQueue[T]) Less(i, j int) bool { return q[i].Compare(q[j]) < 0 }
func (q timeQueue[T]) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *timeQueue[T]) Push(x any)        { *q = append(*q, x.(T)) }
func (q *timeQueue[T]) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
