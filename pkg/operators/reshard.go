package operators

import (
	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/shard"
	"github.com/l7mp/dflow/pkg/zset"
)

// Reshard moves every record to the worker owning the canonical shard of its datum. The content of
// the collection is unchanged and no state is kept.
func Reshard[T dataflow.Timestamp[T], D any, R zset.Semigroup[R]](c *dataflow.Collection[T, D, R]) *dataflow.Collection[T, D, R] {
	return dataflow.Exchange(c, "Reshard", shard.Of[D])
}
