package shard

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ID is an unsigned partition identifier.
type ID = uint64

// Sharder is implemented by key types that provide their own canonical shard.
type Sharder interface {
	Shard() uint64
}

// Func is a caller-supplied sharding function.
type Func[K any] func(K) uint64

// Of returns the canonical shard of a key.
//
// Keys implementing Sharder decide for themselves. Strings, byte slices, integers, floats and bools
// are hashed from a fixed binary encoding, with both float zeros mapping to the same shard; any
// other value is hashed from its Go-syntax representation, which is stable for values built from
// basic types, arrays and structs. Types containing pointers, maps, channels or floats should
// implement Sharder.
func Of[K any](key K) uint64 {
	var buf [8]byte
	switch k := any(key).(type) {
	case Sharder:
		return k.Shard()
	case string:
		return xxhash.Sum64String(k)
	case []byte:
		return xxhash.Sum64(k)
	case bool:
		if k {
			buf[0] = 1
		}
		return xxhash.Sum64(buf[:1])
	case int:
		return sumUint(buf, uint64(k))
	case int8:
		return sumUint(buf, uint64(k))
	case int16:
		return sumUint(buf, uint64(k))
	case int32:
		return sumUint(buf, uint64(k))
	case int64:
		return sumUint(buf, uint64(k))
	case uint:
		return sumUint(buf, uint64(k))
	case uint8:
		return sumUint(buf, uint64(k))
	case uint16:
		return sumUint(buf, uint64(k))
	case uint32:
		return sumUint(buf, uint64(k))
	case uint64:
		return sumUint(buf, k)
	case float32:
		return sumFloat(buf, float64(k))
	case float64:
		return sumFloat(buf, k)
	default:
		return xxhash.Sum64String(fmt.Sprintf("%#v", key))
	}
}

func sumUint(buf [8]byte, v uint64) uint64 {
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}

// sumFloat hashes a float so that keys equal under == share a shard.
func sumFloat(buf [8]byte, f float64) uint64 {
	if f == 0 {
		f = 0 // -0
	}
	return sumUint(buf, math.Float64bits(f))
}

// Worker returns the index of the worker owning a shard in a dataflow of the given size.
func Worker(id ID, peers int) int {
	if peers <= 1 {
		return 0
	}
	return int(id % uint64(peers))
}
