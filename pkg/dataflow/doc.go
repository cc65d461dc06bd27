// Package dataflow is the minimal incremental dataflow runtime underneath dflow's operators.
//
// A dataflow is built once per worker: the build function receives a Scope and registers the same
// operators in the same order on every worker. Operators exchange collections of (datum, time,
// diff) updates either along a pipeline (records stay on their worker) or through an exchange
// (records move to the worker owning their shard).
//
// Execution is cooperative and proceeds in rounds. Each round processes exactly one logical time,
// chosen in a linear extension of the timestamp order, and only once every input's frontier has
// moved past it. Inside a round the operators run in construction order; the instances of one
// operator on the different workers run concurrently and are joined before the next operator
// starts. A round therefore delivers to each operator at most one batch per time, and all of the
// batch's upstream input is known to be complete.
//
// The package also provides the consumed contracts of the operator layer:
//   - Timestamps with a type-level total order capability (TotallyOrdered).
//   - Arrangements: append-only, per-worker, key-indexed traces shared by reference-counted
//     agents (ArrangeCore, ArrangeSelfCore).
//   - The two algorithm variants of count and distinct: a single-pass one for totally ordered
//     times (CountTotal, DistinctTotal) and a general one for partially ordered times (Count,
//     Distinct).
//
// Example usage:
//
//	var inputs []*dataflow.Input[dataflow.Epoch, string, zset.Diff]
//	out := dataflow.NewCaptured[dataflow.Epoch, string, zset.Diff]()
//	df, err := dataflow.New(cfg, func(s *dataflow.Scope[dataflow.Epoch]) error {
//		in, words := dataflow.NewInput[dataflow.Epoch, string, zset.Diff](s, "words")
//		inputs = append(inputs, in)
//		dataflow.Capture(words, "Capture", out)
//		return nil
//	})
package dataflow
