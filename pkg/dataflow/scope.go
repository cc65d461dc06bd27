package dataflow

import (
	"fmt"

	"github.com/go-logr/logr"
)

// Scope is one worker's view of the dataflow under construction.
type Scope[T Timestamp[T]] struct {
	df          *Dataflow[T]
	index       int
	log         logr.Logger
	nodes       []*node[T]
	nextChannel int
	compactors  []compactor
	closers     []func()
}

type graphMismatch struct {
	worker  int
	message string
}

// Index returns the index of the worker.
func (s *Scope[T]) Index() int { return s.index }

// Peers returns the number of workers.
func (s *Scope[T]) Peers() int { return s.df.config.Workers }

// Logger returns the worker's logger.
func (s *Scope[T]) Logger() logr.Logger { return s.log }

// Config returns the configuration of the dataflow.
func (s *Scope[T]) Config() Config { return s.df.config }

// OnClose registers a function to run when the dataflow is torn down.
func (s *Scope[T]) OnClose(f func()) { s.closers = append(s.closers, f) }

// addNode registers an operator. Every worker must register the same operators in the same order
// as the first one.
func (s *Scope[T]) addNode(name, kind string) *node[T] {
	n := &node[T]{id: len(s.nodes), name: name, kind: kind}

	if s.index > 0 {
		first := s.df.scopes[0]
		if n.id >= len(first.nodes) {
			panic(graphMismatch{worker: s.index, message: fmt.Sprintf("extra operator %q", name)})
		}
		if ref := first.nodes[n.id]; ref.kind != kind || ref.name != name {
			panic(graphMismatch{worker: s.index, message: fmt.Sprintf("operator %d is %q (%s), expected %q (%s)",
				n.id, name, kind, ref.name, ref.kind)})
		}
	}

	s.nodes = append(s.nodes, n)
	return n
}
