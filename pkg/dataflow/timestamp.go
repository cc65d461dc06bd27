package dataflow

import (
	"cmp"
	"fmt"
)

// Timestamp is a logical time. LessEqual is a partial order, Join returns the least upper bound of
// two times and Compare is a total order extending LessEqual, used to schedule rounds.
type Timestamp[T any] interface {
	comparable
	LessEqual(T) bool
	Join(T) T
	Compare(T) int
	fmt.Stringer
}

// TotallyOrdered marks the timestamp types whose order is total. The marker is sealed: only the
// timestamp types of this package can carry it, and it is a property of the type, not of values.
type TotallyOrdered interface {
	totallyOrdered()
}

// IsTotal reports whether the timestamp type T is totally ordered. It is meant to be called while a
// graph is being constructed.
func IsTotal[T Timestamp[T]]() bool {
	var zero T
	_, ok := any(zero).(TotallyOrdered)
	return ok
}

// Epoch is a totally ordered timestamp.
type Epoch uint64

var _ TotallyOrdered = Epoch(0)

func (e Epoch) totallyOrdered() {}

func (e Epoch) LessEqual(o Epoch) bool { return e <= o }
func (e Epoch) Join(o Epoch) Epoch     { return max(e, o) }
func (e Epoch) Compare(o Epoch) int    { return cmp.Compare(e, o) }
func (e Epoch) String() string         { return fmt.Sprintf("%d", uint64(e)) }

// Product is a pair of counters under the product partial order, as found in nested iterative
// scopes. Two products are comparable only if one dominates the other in both coordinates.
type Product struct {
	Outer uint64
	Inner uint64
}

func (p Product) LessEqual(o Product) bool {
	return p.Outer <= o.Outer && p.Inner <= o.Inner
}

func (p Product) Join(o Product) Product {
	return Product{Outer: max(p.Outer, o.Outer), Inner: max(p.Inner, o.Inner)}
}

// Compare orders products lexicographically, which extends the product order.
func (p Product) Compare(o Product) int {
	if c := cmp.Compare(p.Outer, o.Outer); c != 0 {
		return c
	}
	return cmp.Compare(p.Inner, o.Inner)
}

func (p Product) String() string { return fmt.Sprintf("(%d, %d)", p.Outer, p.Inner) }
