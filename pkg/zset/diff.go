package zset

// Semigroup is a commutative, associative weight domain. IsZero identifies the weights that carry
// no information and are dropped on consolidation.
type Semigroup[R any] interface {
	comparable
	Plus(R) R
	IsZero() bool
}

// Abelian is a semigroup with additive inverses.
type Abelian[R any] interface {
	Semigroup[R]
	Negate() R
}

// Diff is the signed-count weight.
type Diff int64

// Plus implements Semigroup.
func (d Diff) Plus(o Diff) Diff { return d + o }

// IsZero implements Semigroup.
func (d Diff) IsZero() bool { return d == 0 }

// Negate implements Abelian.
func (d Diff) Negate() Diff { return -d }
