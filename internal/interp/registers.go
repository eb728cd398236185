package interp

import (
	"math/big"

	"amigo/internal/ir"
)

// Registers holds the live values of a running program: a register
// file of signed integers wrapping modulo 2^bits, matching the
// algebra's own wraparound arithmetic (internal/expr).
type Registers struct {
	bits   uint
	values map[string]*big.Int

	half *big.Int // 2^(bits-1)
	mod  *big.Int // 2^bits
}

const DefaultBits = 128

func NewRegisters(bits uint) *Registers {
	if bits == 0 {
		bits = DefaultBits
	}
	mod := new(big.Int).Lsh(big.NewInt(1), bits)
	half := new(big.Int).Rsh(mod, 1)
	return &Registers{
		bits:   bits,
		values: make(map[string]*big.Int),
		half:   half,
		mod:    mod,
	}
}

// Wrap reduces v modulo 2^bits and re-centers it into the signed
// range [-2^(bits-1), 2^(bits-1)).
func (r *Registers) Wrap(v *big.Int) *big.Int {
	w := new(big.Int).Mod(v, r.mod)
	if w.Sign() < 0 {
		w.Add(w, r.mod)
	}
	if w.Cmp(r.half) >= 0 {
		w.Sub(w, r.mod)
	}
	return w
}

// Get resolves an operand: an integer literal resolves to itself, a
// value register resolves to its last written value (zero if never
// written).
func (r *Registers) Get(reg ir.Register) *big.Int {
	if n, ok := reg.Int(); ok {
		return big.NewInt(n)
	}
	name := string(reg)
	if v, ok := r.values[name]; ok {
		return v
	}
	return big.NewInt(0)
}

func (r *Registers) Set(reg ir.Register, v *big.Int) {
	r.values[string(reg)] = r.Wrap(v)
}

// Names returns every register that has been written to.
func (r *Registers) Names() []string {
	out := make([]string, 0, len(r.values))
	for n := range r.values {
		out = append(out, n)
	}
	return out
}
