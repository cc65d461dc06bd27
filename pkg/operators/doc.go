// Package operators implements the operator extension layer of dflow on top of the dataflow
// runtime.
//
// The package provides:
//   - The arrangement builder: Arrange, ArrangeNamed, ArrangeSharded and ArrangeShardedNamed index
//     a key-value collection on the worker owning each key.
//   - The total/incremental switch: Count and Distinct select the single-pass algorithm when the
//     timestamp type of the scope is totally ordered and the general one otherwise. The choice is
//     made once, while the graph is constructed.
//   - Record transforms: MapWrapped and friends run a pure function over every datum of a batch,
//     bracketed by a BatchWrapper. MapNamedAsync runs a blocking per-record computation on a
//     group of goroutines and holds the worker until the whole batch has completed.
//   - Reshard, which redistributes a collection by the canonical shard of its data.
package operators
