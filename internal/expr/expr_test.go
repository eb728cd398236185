package expr

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantFolding(t *testing.T) {
	sum := Build(OpAdd, DefaultBits, IntN(2, DefaultBits), IntN(3, DefaultBits))
	require.True(t, sum.IsConst())
	assert.Zero(t, sum.IntVal.Cmp(big.NewInt(5)))
}

func TestAddCommutesToEqualForm(t *testing.T) {
	x := Atom("%x", DefaultBits)
	y := Atom("%y", DefaultBits)
	xy := Build(OpAdd, DefaultBits, x, y)
	yx := Build(OpAdd, DefaultBits, y, x)
	assert.True(t, xy.Equal(yx), "x+y and y+x should canonicalize to the same form: %s vs %s", xy, yx)
}

func TestAddGroupsLikeTerms(t *testing.T) {
	x := Atom("%x", DefaultBits)
	// x + x should reduce to 2*x.
	twox := Build(OpAdd, DefaultBits, x, x)
	want := Build(OpMul, DefaultBits, IntN(2, DefaultBits), x)
	assert.True(t, twox.Equal(want), "x+x = %s, want %s", twox, want)
}

func TestSubSelfIsZero(t *testing.T) {
	x := Atom("%x", DefaultBits)
	diff := Build(OpSub, DefaultBits, x, x)
	assert.True(t, diff.IsZero(), "x-x = %s, want 0", diff)
}

func TestDivByZeroFoldsToZero(t *testing.T) {
	x := Atom("%x", DefaultBits)
	got := Build(OpDiv, DefaultBits, x, IntN(0, DefaultBits))
	assert.True(t, got.IsZero(), "x/0 = %s, want 0 under algebraic policy", got)
}

func TestDivMatchesFloorSemantics(t *testing.T) {
	got := Build(OpDiv, DefaultBits, IntN(-7, DefaultBits), IntN(2, DefaultBits))
	require.True(t, got.IsConst())
	assert.Zero(t, got.IntVal.Cmp(big.NewInt(-4)), "-7 / 2 = %s, want -4 (floor division)", got)

	mod := Build(OpMod, DefaultBits, IntN(-7, DefaultBits), IntN(2, DefaultBits))
	require.True(t, mod.IsConst())
	assert.Zero(t, mod.IntVal.Cmp(big.NewInt(1)), "-7 %% 2 = %s, want 1 (remainder sign matches divisor)", mod)
}

func TestXorSelfCancels(t *testing.T) {
	x := Atom("%x", DefaultBits)
	got := Build(OpXor, DefaultBits, x, x)
	assert.True(t, got.IsZero(), "x xor x = %s, want 0", got)
}

func TestShiftMergesExponents(t *testing.T) {
	x := Atom("%x", DefaultBits)
	once := Build(OpLShift, DefaultBits, x, IntN(2, DefaultBits))
	twice := Build(OpLShift, DefaultBits, once, IntN(3, DefaultBits))
	want := Build(OpLShift, DefaultBits, x, IntN(5, DefaultBits))
	assert.True(t, twice.Equal(want), "(x<<2)<<3 = %s, want %s", twice, want)
}

func TestNegativeShiftMirrors(t *testing.T) {
	x := Atom("%x", DefaultBits)
	left := Build(OpLShift, DefaultBits, x, IntN(-3, DefaultBits))
	right := Build(OpRShift, DefaultBits, x, IntN(3, DefaultBits))
	assert.True(t, left.Equal(right), "x << -3 = %s, want %s", left, right)
}

func TestCompareSelfFolds(t *testing.T) {
	x := Atom("%x", DefaultBits)
	eq := Build(OpEq, DefaultBits, x, x)
	require.True(t, eq.IsConst())
	assert.Zero(t, eq.IntVal.Cmp(big.NewInt(1)), "x==x = %s, want 1", eq)

	lt := Build(OpLt, DefaultBits, x, x)
	require.True(t, lt.IsConst())
	assert.Zero(t, lt.IntVal.Sign(), "x<x = %s, want 0", lt)
}

func TestPolishRoundTrip(t *testing.T) {
	x := Atom("%x", DefaultBits)
	y := Atom("%y", DefaultBits)
	e := Build(OpAdd, DefaultBits, Build(OpMul, DefaultBits, IntN(2, DefaultBits), x), y)

	s := e.Polish()
	back, err := ReadPolish(s, DefaultBits)
	require.NoError(t, err, "ReadPolish(%q)", s)
	assert.True(t, back.Equal(e), "round trip mismatch: %s vs %s", back, e)
}

func TestBuildPhiCollapsesIdenticalArgs(t *testing.T) {
	x := Atom("%x", DefaultBits)
	got := BuildPhi([]*Expr{x, x}, []string{"left", "right"}, DefaultBits)
	assert.True(t, got.Equal(x), "phi with identical incoming values should collapse to that value, got %s", got)
}

func TestBuildPhiSortsByLabel(t *testing.T) {
	x := Atom("%x", DefaultBits)
	y := Atom("%y", DefaultBits)
	a := BuildPhi([]*Expr{x, y}, []string{"b", "a"}, DefaultBits)
	b := BuildPhi([]*Expr{y, x}, []string{"a", "b"}, DefaultBits)
	assert.True(t, a.Equal(b), "phi argument order should canonicalize by label: %s vs %s", a, b)
}
