// Package shard defines the sharding contract of dflow: a pure function mapping a key to the
// shard id that owns it.
//
// Every partition-sensitive operator places a key on worker Worker(shard(key), peers). Unless an
// operator is explicitly given a sharding function it uses the canonical one, Of. Key types can
// take control of their canonical placement by implementing Sharder.
//
// The canonical shard function is stable across processes and runs: it never depends on the wall
// clock, map iteration order or pointer identity, so two workers (or two runs) always agree on
// where a key lives.
package shard
