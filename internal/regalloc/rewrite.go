package regalloc

import (
	"fmt"

	"amigo/internal/ir"
)

// deadSink is the target a colourless ReadInstruction is rewritten to:
// the read still has to execute (it consumes host input), but nothing
// downstream ever looks at its result, so there's no live register to
// name.
const deadSink ir.Register = "%_"

// rewrite substitutes every value register by its assigned colour,
// drops definitions whose target was never coloured (never live
// anywhere, hence genuinely dead) other than reads, and collapses any
// mov or phi that becomes trivial once every operand names the same
// colour. Reports whether it changed anything.
func rewrite(cfg *ir.CFG, col map[string]int) bool {
	changed := false
	sub := func(r ir.Register) ir.Register {
		if !r.IsValue() {
			return r
		}
		c, ok := col[string(r)]
		if !ok {
			return r
		}
		return ir.Register(fmt.Sprintf("%%%d", c))
	}

	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		var kept []ir.Instruction
		for _, inst := range b.Instructions {
			if read, ok := inst.(*ir.ReadInstruction); ok {
				if _, live := col[string(read.Tgt)]; live {
					read.Tgt = sub(read.Tgt)
				} else {
					read.Tgt = deadSink
					changed = true
				}
				kept = append(kept, read)
				continue
			}

			if d, isDef := inst.(ir.Definition); isDef {
				if _, live := col[string(d.Target())]; !live {
					changed = true
					continue
				}
			}

			if substituteInPlace(inst, sub) {
				changed = true
			}
			if d, isDef := inst.(ir.Definition); isDef {
				if newTgt := sub(d.Target()); newTgt != d.Target() {
					d.SetTarget(newTgt)
					changed = true
				}
			}

			if mov, ok := inst.(*ir.MovInstruction); ok && mov.Tgt == mov.Src {
				changed = true
				continue
			}
			if phi, ok := inst.(*ir.PhiInstruction); ok {
				if value, trivial := trivialPhiValue(phi); trivial {
					changed = true
					if value == phi.Tgt {
						continue
					}
					kept = append(kept, &ir.MovInstruction{Tgt: phi.Tgt, Src: value})
					continue
				}
			}
			kept = append(kept, inst)
		}
		b.Instructions = kept

		if b.Term != nil && substituteInPlace(b.Term, sub) {
			changed = true
		}
	}
	return changed
}

// substituteInPlace rewrites every operand of inst via sub, leaving
// its target (if any) untouched - callers substitute a Definition's
// target separately once they've decided the instruction survives.
func substituteInPlace(inst ir.Instruction, sub func(ir.Register) ir.Register) bool {
	ops := inst.Operands()
	if len(ops) == 0 {
		return false
	}
	out := make([]ir.Register, len(ops))
	any := false
	for i, op := range ops {
		out[i] = sub(op)
		if out[i] != op {
			any = true
		}
	}
	if any {
		inst.SetOperands(out)
	}
	return any
}

// trivialPhiValue reports the single value every one of phi's
// arguments has collapsed to, if they all agree.
func trivialPhiValue(phi *ir.PhiInstruction) (ir.Register, bool) {
	if len(phi.Args) == 0 {
		return "", false
	}
	first := phi.Args[0].Value
	for _, a := range phi.Args[1:] {
		if a.Value != first {
			return "", false
		}
	}
	return first, true
}
