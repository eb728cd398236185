package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"amigo/internal/expr"
)

func TestLeqTransitivity(t *testing.T) {
	c := NewComparisons()
	a := expr.Atom("%a", expr.DefaultBits)
	b := expr.Atom("%b", expr.DefaultBits)
	d := expr.Atom("%d", expr.DefaultBits)

	c.AssertLeq(a, b)
	c.AssertLeq(b, d)

	assert.True(t, c.Leq(a, d), "expected a <= d to follow from a <= b <= d")
	assert.False(t, c.Leq(d, a), "d <= a should not be provable")
}

func TestAssertLeqBothWaysMergesClasses(t *testing.T) {
	c := NewComparisons()
	a := expr.Atom("%a", expr.DefaultBits)
	b := expr.Atom("%b", expr.DefaultBits)

	c.AssertLeq(a, b)
	c.AssertLeq(b, a)

	assert.True(t, c.Eq(a, b), "a <= b <= a should imply a == b")
}

func TestNeqContradictsEq(t *testing.T) {
	c := NewComparisons()
	a := expr.Atom("%a", expr.DefaultBits)

	c.AssertEq(a, a)
	c.AssertNeq(a, a)

	assert.False(t, c.IsConsistent(), "asserting a != a should make the conjunction inconsistent")
}

func TestSimplifyFoldsKnownComparison(t *testing.T) {
	s := NewPredicatedState()
	a := expr.Atom("%a", expr.DefaultBits)
	b := expr.Atom("%b", expr.DefaultBits)

	s.Comparisons().AssertLeq(a, b)

	leq := expr.Build(expr.OpLeq, expr.DefaultBits, a, b)
	got := s.Simplify(leq)
	assert.True(t, got.IsConst(), "a<=b should simplify to a constant once a<=b is known, got %s", got)
	assert.NotZero(t, got.IntVal.Sign(), "a<=b should simplify to 1 once a<=b is known, got %s", got)
}

func TestAssertNonzeroOnAtomAssertsNeqZero(t *testing.T) {
	s := NewPredicatedState()
	a := expr.Atom("%a", expr.DefaultBits)
	s.AssertNonzero(a)

	z := expr.IntN(0, expr.DefaultBits)
	assert.True(t, s.Comparisons().Neq(a, z), "AssertNonzero(%%a) should record %%a != 0")
}
