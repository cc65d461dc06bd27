package operators

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/shard"
	"github.com/l7mp/dflow/pkg/zset"
)

// DefaultArrangeName is the diagnostic name of arrangements built without an explicit name.
const DefaultArrangeName = "Arrange"

// Arrange indexes a collection by key on the worker owning the canonical shard of each key.
func Arrange[T dataflow.Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, dataflow.KV[K, V], R]) *dataflow.Arranged[T, K, V, R] {
	return arrangeAt(c, shard.Of[K], DefaultArrangeName, caller(1))
}

// ArrangeNamed is Arrange with a diagnostic name.
func ArrangeNamed[T dataflow.Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, dataflow.KV[K, V], R], name string) *dataflow.Arranged[T, K, V, R] {
	return arrangeAt(c, shard.Of[K], name, caller(1))
}

// ArrangeSharded indexes a collection by key, placing each key on the worker selected by f.
func ArrangeSharded[T dataflow.Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, dataflow.KV[K, V], R], f shard.Func[K]) *dataflow.Arranged[T, K, V, R] {
	return arrangeAt(c, f, DefaultArrangeName, caller(1))
}

// ArrangeShardedNamed is ArrangeSharded with a diagnostic name.
func ArrangeShardedNamed[T dataflow.Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, dataflow.KV[K, V], R], f shard.Func[K], name string) *dataflow.Arranged[T, K, V, R] {
	return arrangeAt(c, f, name, caller(1))
}

// arrangeAt exchanges every update to the worker owning its key and builds the index there. The
// operator is named after the key and value types and the user's call site.
func arrangeAt[T dataflow.Timestamp[T], K comparable, V comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, dataflow.KV[K, V], R], f shard.Func[K], name, site string) *dataflow.Arranged[T, K, V, R] {
	pact := dataflow.ExchangeBy(func(u dataflow.Update[dataflow.KV[K, V], T, R]) uint64 { return f(u.Data.Key) })
	return dataflow.ArrangeCore(c, pact, arrangeName[K, V](name, site))
}

// arrangeSelfAt arranges a collection of keys against the unit value.
func arrangeSelfAt[T dataflow.Timestamp[T], K comparable, R zset.Semigroup[R]](c *dataflow.Collection[T, K, R], name, site string) *dataflow.Arranged[T, K, dataflow.Unit, R] {
	pact := dataflow.ExchangeBy(func(u dataflow.Update[K, T, R]) uint64 { return shard.Of(u.Data) })
	return dataflow.ArrangeSelfCore(c, pact, arrangeName[K, dataflow.Unit](name, site))
}

func arrangeName[K, V any](name, site string) string {
	return fmt.Sprintf("%s [%s, %s] at %s", name, reflect.TypeFor[K](), reflect.TypeFor[V](), site)
}

func siteName(name, site string) string { return name + " at " + site }

// caller returns the file:line of the caller skip frames above the function calling caller.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
