// Package writer renders a *ir.CFG back into the A-Mi textual surface
// syntax reader.ParseString accepts, so that passes can be inspected
// or round-tripped. Grounded on the teacher's grammar/printer.go:
// one String-style function per syntactic form, built up into a
// strings.Builder by a handful of top-level traversal functions.
package writer

import (
	"fmt"
	"strings"

	"amigo/internal/ir"
)

// Write renders the whole CFG: CFG-scope metadata, then every block
// in the CFG's own insertion order.
func Write(cfg *ir.CFG) string {
	var b strings.Builder
	writeMetadata(&b, cfg.Metadata, "#")
	for _, label := range cfg.Labels() {
		writeBlock(&b, cfg.MustBlock(label))
	}
	return b.String()
}

func writeMetadata(b *strings.Builder, m *ir.Metadata, marker string) {
	for _, key := range m.Keys() {
		values := m.Get(key)
		fmt.Fprintf(b, ";%s!%s: %s $\n", marker, key, strings.Join(values, " "))
	}
}

func writeBlock(b *strings.Builder, block *ir.BasicBlock) {
	fmt.Fprintf(b, "@%s:\n", block.Label)
	writeMetadata(b, block.Metadata, "@")
	for _, inst := range block.Instructions {
		b.WriteString(instructionText(inst))
		b.WriteString("\n")
		if block.HasInstrMetadata(inst) {
			writeMetadata(b, block.InstrMetadata(inst), "%")
		}
	}
	b.WriteString(terminatorText(block.Term))
	b.WriteString("\n")
}

func instructionText(inst ir.Instruction) string {
	switch i := inst.(type) {
	case *ir.MovInstruction:
		return fmt.Sprintf("%s = %s", i.Tgt, i.Src)
	case *ir.PhiInstruction:
		args := make([]string, len(i.Args))
		for idx, a := range i.Args {
			args[idx] = fmt.Sprintf("[%s, @%s]", a.Value, a.Label)
		}
		return fmt.Sprintf("%s = phi %s", i.Tgt, strings.Join(args, ", "))
	case *ir.BinaryInstruction:
		return fmt.Sprintf("%s = %s %s %s", i.Tgt, i.Left, opSymbol(i.Op), i.Right)
	case *ir.ReadInstruction:
		return fmt.Sprintf("read %s", i.Tgt)
	case *ir.WriteInstruction:
		return fmt.Sprintf("write %s", i.Src)
	case *ir.BrkInstruction:
		return fmt.Sprintf("brkpt !%s", i.Name)
	}
	return inst.String()
}

func terminatorText(term ir.Terminator) string {
	switch t := term.(type) {
	case *ir.GotoTerminator:
		return fmt.Sprintf("goto @%s", t.TargetLabel)
	case *ir.BranchTerminator:
		return fmt.Sprintf("branch %s ? @%s : @%s", t.Cond, t.IfTrue, t.IfFalse)
	case *ir.ExitTerminator:
		return "exit"
	}
	return term.String()
}

func opSymbol(op ir.BinOp) string {
	switch op {
	case ir.OpAdd:
		return "+"
	case ir.OpSub:
		return "-"
	case ir.OpMul:
		return "*"
	case ir.OpDiv:
		return "/"
	case ir.OpMod:
		return "%"
	case ir.OpAnd:
		return "&"
	case ir.OpOr:
		return "|"
	case ir.OpXor:
		return "^"
	case ir.OpLShift:
		return "<<"
	case ir.OpRShift:
		return ">>"
	case ir.OpEq:
		return "=="
	case ir.OpNeq:
		return "!="
	case ir.OpLt:
		return "<"
	case ir.OpLeq:
		return "<="
	}
	return "?"
}
