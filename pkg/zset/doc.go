// Package zset implements the weight domain of dflow collections: diffs drawn from a commutative
// semigroup, and Z-sets (multisets whose elements carry such weights).
//
// Two updates for the same datum combine by adding their weights; a datum whose weight adds up to
// zero disappears. Every consumer of a collection relies on this consolidation rule.
//
// Example usage:
//
//	z := zset.New[string, zset.Diff]()
//	z.Add("a", 1)  // insert
//	z.Add("a", -1) // retract, z is empty again
package zset
