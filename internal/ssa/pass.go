package ssa

import (
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// Analysis wraps Construct as a pass.Analysis with ID "ssa": requiring
// it converts the CFG to SSA form (if it isn't already marked valid)
// the same way other passes require "def" or "live". Unlike most
// analyses it mutates the CFG rather than merely reading it, which is
// allowed by pass.Analysis's contract and mirrors how the source
// treats SSA construction as just another cached, invalidatable
// compiler state.
type Analysis struct{}

func (Analysis) ID() string { return "ssa" }

func (Analysis) Compute(cfg *ir.CFG, m *pass.Manager) error {
	return Construct(cfg)
}
