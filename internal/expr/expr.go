// Package expr implements the canonical algebraic expression form
// used by the value-numbering and code-motion passes: every
// expression reduces to one normal form so that two registers with
// equal values produce structurally equal expressions.
package expr

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Op names an expression-tree operator. It mirrors ir.BinOp plus the
// Phi operator, which has no counterpart in ir.BinOp since phi is its
// own instruction family.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpLShift
	OpRShift
	OpEq
	OpNeq
	OpLt
	OpLeq
	OpPhi
)

// opOrder fixes the total order used when comparing two operator
// expressions of different operators.
var opOrder = map[Op]int{
	OpAdd: 0, OpSub: 1, OpMul: 2, OpAnd: 3, OpOr: 4, OpXor: 5,
	OpEq: 6, OpNeq: 7, OpLt: 8, OpLeq: 9,
	OpLShift: 10, OpRShift: 11, OpDiv: 12, OpMod: 13, OpPhi: 14,
}

var opNames = map[Op]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpLShift: "lshift", OpRShift: "rshift",
	OpEq: "eq", OpNeq: "neq", OpLt: "lt", OpLeq: "leq", OpPhi: "phi",
}

func (o Op) String() string { return opNames[o] }

// Kind distinguishes the three leaf/branch shapes an Expr can take.
type Kind int

const (
	KindInt Kind = iota
	KindAtom
	KindOp
)

// Expr is an immutable, canonically-reduced algebraic expression.
// Construct new expressions with Int, Atom, or Build; never mutate an
// Expr's fields once returned from Build.
type Expr struct {
	Kind Kind

	IntVal *big.Int // KindInt
	Atom   string   // KindAtom: a register name, e.g. "%x"

	Op        Op       // KindOp
	Args      []*Expr  // KindOp operands (phi: incoming values, in PhiLabels order)
	PhiLabels []string // KindOp, Op==OpPhi: predecessor label per Args entry

	bits   uint
	polish string
}

const DefaultBits = 128

func Int(v *big.Int, bits uint) *Expr {
	if bits == 0 {
		bits = DefaultBits
	}
	return &Expr{Kind: KindInt, IntVal: wrap(v, bits), bits: bits}
}

func IntN(v int64, bits uint) *Expr { return Int(big.NewInt(v), bits) }

func Atom(name string, bits uint) *Expr {
	if bits == 0 {
		bits = DefaultBits
	}
	return &Expr{Kind: KindAtom, Atom: name, bits: bits}
}

func wrap(v *big.Int, bits uint) *big.Int {
	mod := new(big.Int).Lsh(big.NewInt(1), bits)
	half := new(big.Int).Rsh(mod, 1)
	w := new(big.Int).Mod(v, mod)
	if w.Sign() < 0 {
		w.Add(w, mod)
	}
	if w.Cmp(half) >= 0 {
		w.Sub(w, mod)
	}
	return w
}

func (e *Expr) Bits() uint { return e.bits }

// IsZero reports whether e is the integer literal 0.
func (e *Expr) IsZero() bool {
	return e.Kind == KindInt && e.IntVal.Sign() == 0
}

// IsConst reports whether e is an integer literal.
func (e *Expr) IsConst() bool { return e.Kind == KindInt }

func (e *Expr) String() string {
	switch e.Kind {
	case KindInt:
		return e.IntVal.String()
	case KindAtom:
		return e.Atom
	default:
		if e.Op == OpPhi {
			parts := make([]string, len(e.Args))
			for i, a := range e.Args {
				parts[i] = fmt.Sprintf("[%s:@%s]", a, e.PhiLabels[i])
			}
			return "phi(" + strings.Join(parts, ", ") + ")"
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", e.Op, strings.Join(parts, ", "))
	}
}

// Equal reports structural (post-canonicalization) equality.
func (e *Expr) Equal(o *Expr) bool { return e.Compare(o) == 0 }

// Compare imposes the total order used for commutative-operand
// sorting and for deterministic hash-consing: integers order before
// atoms, which order before operator expressions; operators are
// ordered by a fixed table. Phi comparison skips neither argument
// (unlike the source this was adapted from, Args here holds only the
// semantic incoming values, with no leading "target register" slot to
// skip).
func (e *Expr) Compare(o *Expr) int {
	rank := func(x *Expr) int { return int(x.Kind) }
	if d := rank(e) - rank(o); d != 0 {
		return d
	}
	switch e.Kind {
	case KindInt:
		return e.IntVal.Cmp(o.IntVal)
	case KindAtom:
		return strings.Compare(e.Atom, o.Atom)
	default:
		if d := opOrder[e.Op] - opOrder[o.Op]; d != 0 {
			return d
		}
		if e.Op == OpPhi {
			if d := len(e.Args) - len(o.Args); d != 0 {
				return d
			}
			for i := range e.Args {
				if d := strings.Compare(e.PhiLabels[i], o.PhiLabels[i]); d != 0 {
					return d
				}
				if d := e.Args[i].Compare(o.Args[i]); d != 0 {
					return d
				}
			}
			return 0
		}
		if d := len(e.Args) - len(o.Args); d != 0 {
			return d
		}
		for i := range e.Args {
			if d := e.Args[i].Compare(o.Args[i]); d != 0 {
				return d
			}
		}
		return 0
	}
}

func sortExprs(args []*Expr) {
	sort.Slice(args, func(i, j int) bool { return args[i].Compare(args[j]) < 0 })
}

// Polish returns the prefix-notation serialisation used for
// persistence: "op`arity child...", integers and atoms serialise as
// themselves.
func (e *Expr) Polish() string {
	if e.polish != "" {
		return e.polish
	}
	var b strings.Builder
	e.writePolish(&b)
	e.polish = b.String()
	return e.polish
}

func (e *Expr) writePolish(b *strings.Builder) {
	switch e.Kind {
	case KindInt:
		b.WriteString(e.IntVal.String())
	case KindAtom:
		b.WriteString(e.Atom)
	default:
		if e.Op == OpPhi {
			fmt.Fprintf(b, "phi`%d", len(e.Args))
			for i, a := range e.Args {
				b.WriteString(" @")
				b.WriteString(e.PhiLabels[i])
				b.WriteString(" ")
				a.writePolish(b)
			}
			return
		}
		fmt.Fprintf(b, "%s`%d", e.Op, len(e.Args))
		for _, a := range e.Args {
			b.WriteString(" ")
			a.writePolish(b)
		}
	}
}

// ReadPolish parses the output of Polish back into an Expr.
func ReadPolish(s string, bits uint) (*Expr, error) {
	toks := strings.Fields(s)
	e, rest, err := readPolishTokens(toks, bits)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing tokens after polish expression: %v", rest)
	}
	return e, nil
}

func readPolishTokens(toks []string, bits uint) (*Expr, []string, error) {
	if len(toks) == 0 {
		return nil, nil, fmt.Errorf("unexpected end of polish expression")
	}
	head := toks[0]
	toks = toks[1:]

	if head[0] == '%' {
		return Atom(head, bits), toks, nil
	}
	if n, ok := new(big.Int).SetString(head, 10); ok {
		return Int(n, bits), toks, nil
	}

	parts := strings.SplitN(head, "`", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed polish operator token %q", head)
	}
	arity, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("malformed polish arity in %q", head)
	}
	op, ok := opByName[parts[0]]
	if !ok {
		return nil, nil, fmt.Errorf("unknown polish operator %q", parts[0])
	}

	if op == OpPhi {
		args := make([]*Expr, 0, arity)
		labels := make([]string, 0, arity)
		for i := 0; i < arity; i++ {
			if len(toks) == 0 || toks[0][0] != '@' {
				return nil, nil, fmt.Errorf("expected @label in phi polish expression")
			}
			labels = append(labels, toks[0][1:])
			toks = toks[1:]
			var a *Expr
			a, toks, err = readPolishTokens(toks, bits)
			if err != nil {
				return nil, nil, err
			}
			args = append(args, a)
		}
		return &Expr{Kind: KindOp, Op: OpPhi, Args: args, PhiLabels: labels, bits: bits}, toks, nil
	}

	args := make([]*Expr, 0, arity)
	for i := 0; i < arity; i++ {
		var a *Expr
		a, toks, err = readPolishTokens(toks, bits)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, a)
	}
	return Build(op, bits, args...), toks, nil
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()
