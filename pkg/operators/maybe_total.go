package operators

import (
	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/zset"
)

const (
	countArrangeName    = "Arrange: CountMaybeTotal"
	distinctArrangeName = "Arrange: DistinctMaybeTotal"
)

// CountArranged counts the keys of a self-arrangement: the output holds (key, weight) with diff +1
// for every key of non-zero accumulated weight. The single-pass algorithm is used when the
// timestamp type is totally ordered.
func CountArranged[T dataflow.Timestamp[T], K comparable, R zset.Semigroup[R]](a *dataflow.Arranged[T, K, dataflow.Unit, R]) *dataflow.Collection[T, dataflow.KV[K, R], zset.Diff] {
	if dataflow.IsTotal[T]() {
		return dataflow.CountTotal(a, "CountTotal")
	}
	return dataflow.Count(a, "Count")
}

// DistinctArranged emits each key of a self-arrangement with non-zero accumulated weight once.
func DistinctArranged[T dataflow.Timestamp[T], K comparable, R zset.Semigroup[R]](a *dataflow.Arranged[T, K, dataflow.Unit, R]) *dataflow.Collection[T, K, zset.Diff] {
	if dataflow.IsTotal[T]() {
		return dataflow.DistinctTotal(a, "DistinctTotal")
	}
	return dataflow.Distinct(a, "Distinct")
}

// Count arranges a collection by its data and counts it.
func Count[T dataflow.Timestamp[T], K comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, K, R]) *dataflow.Collection[T, dataflow.KV[K, R], zset.Diff] {
	return CountArranged(arrangeSelfAt(c, countArrangeName, caller(1)))
}

// Distinct arranges a collection by its data and returns its distinct elements.
func Distinct[T dataflow.Timestamp[T], K comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, K, R]) *dataflow.Collection[T, K, zset.Diff] {
	return DistinctArranged(arrangeSelfAt(c, distinctArrangeName, caller(1)))
}
