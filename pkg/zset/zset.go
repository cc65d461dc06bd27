package zset

import (
	"fmt"
	"sort"
	"strings"
)

// ZSet is a consolidated multiset: each datum appears at most once with a non-zero weight.
type ZSet[D comparable, R Semigroup[R]] struct {
	weights map[D]R
}

// Entry is a datum with its weight.
type Entry[D comparable, R Semigroup[R]] struct {
	Data   D
	Weight R
}

// New creates an empty Z-set.
func New[D comparable, R Semigroup[R]]() *ZSet[D, R] {
	return &ZSet[D, R]{weights: make(map[D]R)}
}

// FromEntries builds a Z-set, consolidating repeated data.
func FromEntries[D comparable, R Semigroup[R]](entries ...Entry[D, R]) *ZSet[D, R] {
	z := New[D, R]()
	for _, e := range entries {
		z.Add(e.Data, e.Weight)
	}
	return z
}

// Add adds a weighted datum in place.
func (z *ZSet[D, R]) Add(d D, r R) {
	if r.IsZero() {
		return
	}
	if w, ok := z.weights[d]; ok {
		r = w.Plus(r)
	}
	if r.IsZero() {
		delete(z.weights, d)
		return
	}
	z.weights[d] = r
}

// Merge adds every entry of other in place.
func (z *ZSet[D, R]) Merge(other *ZSet[D, R]) {
	if other == nil {
		return
	}
	for d, r := range other.weights {
		z.Add(d, r)
	}
}

// Get returns the weight of a datum and whether it is present.
func (z *ZSet[D, R]) Get(d D) (R, bool) {
	r, ok := z.weights[d]
	return r, ok
}

// Len returns the number of distinct data with a non-zero weight.
func (z *ZSet[D, R]) Len() int { return len(z.weights) }

// IsZero checks if the Z-set is empty.
func (z *ZSet[D, R]) IsZero() bool { return len(z.weights) == 0 }

// Entries returns the contents in unspecified order.
func (z *ZSet[D, R]) Entries() []Entry[D, R] {
	ret := make([]Entry[D, R], 0, len(z.weights))
	for d, r := range z.weights {
		ret = append(ret, Entry[D, R]{Data: d, Weight: r})
	}
	return ret
}

// Clone creates a copy.
func (z *ZSet[D, R]) Clone() *ZSet[D, R] {
	ret := &ZSet[D, R]{weights: make(map[D]R, len(z.weights))}
	for d, r := range z.weights {
		ret.weights[d] = r
	}
	return ret
}

// Equal checks whether two Z-sets hold the same weighted data.
func (z *ZSet[D, R]) Equal(other *ZSet[D, R]) bool {
	if other == nil {
		return z.IsZero()
	}
	if len(z.weights) != len(other.weights) {
		return false
	}
	for d, r := range z.weights {
		if o, ok := other.weights[d]; !ok || o != r {
			return false
		}
	}
	return true
}

// Negated returns the additive inverse of an abelian Z-set.
func Negated[D comparable, R Abelian[R]](z *ZSet[D, R]) *ZSet[D, R] {
	ret := &ZSet[D, R]{weights: make(map[D]R, len(z.weights))}
	for d, r := range z.weights {
		ret.weights[d] = r.Negate()
	}
	return ret
}

// Subtract returns a - b.
func Subtract[D comparable, R Abelian[R]](a, b *ZSet[D, R]) *ZSet[D, R] {
	ret := a.Clone()
	if b != nil {
		ret.Merge(Negated(b))
	}
	return ret
}

// String returns a string representation of the Z-set for debugging. Entries are sorted by their
// rendering so the output is deterministic.
func (z *ZSet[D, R]) String() string {
	if z.IsZero() {
		return "∅"
	}

	parts := make([]string, 0, len(z.weights))
	for d, r := range z.weights {
		parts = append(parts, fmt.Sprintf("%v×%v", d, r))
	}
	sort.Strings(parts)

	return "{" + strings.Join(parts, ", ") + "}"
}
