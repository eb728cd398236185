// Package reader parses the A-Mi textual surface syntax into a
// populated *ir.CFG. Grounded on the teacher's grammar package:
// participle.Build over a stateful lexer, plus a caret-style error
// reporter for syntax failures.
package reader

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"

	"amigo/internal/ir"
)

// ParseError reports a syntax error at a specific source line,
// spec.md §7's ParseError(line, message).
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

var parser = participle.MustBuild[File](
	participle.Lexer(AMiLexer),
	participle.Elide("Whitespace", "MetaEOL"),
	participle.UseLookahead(3),
)

// ParseString parses an A-Mi program from source text already held in
// memory, under the given name (used only for error messages).
func ParseString(name, source string) (*ir.CFG, error) {
	file, err := parser.ParseString(name, source)
	if err != nil {
		return nil, asParseError(err)
	}
	return build(file)
}

// ParseFile reads and parses an A-Mi program from disk.
func ParseFile(path string) (*ir.CFG, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseString(path, string(source))
}

func asParseError(err error) error {
	pe, ok := err.(participle.Error)
	if !ok {
		return err
	}
	pos := pe.Position()
	return &ParseError{Line: pos.Line, Column: pos.Column, Message: pe.Message()}
}

// build walks the parsed lines in order, opening a new block at every
// label and appending instructions/metadata to whichever block (or
// the CFG itself) is currently in scope.
func build(file *File) (*ir.CFG, error) {
	cfg := ir.NewCFG()

	var current *ir.BasicBlock
	var lastInstr ir.Instruction // the most recently appended instruction, target of a following ";%!" directive

	for _, line := range file.Lines {
		if line == nil {
			continue
		}

		switch {
		case line.Label != "":
			label := ir.Register(line.Label).Label()
			b, err := cfg.AddBlock(label)
			if err != nil {
				return nil, err
			}
			current = b
			lastInstr = nil

		case line.Meta != nil:
			key, values := line.Meta.KeyRaw, line.Meta.Values
			key = strings.TrimSuffix(key, ":")
			switch {
			case line.Meta.CFGScope:
				cfg.Metadata.Set(key, values...)
			case line.Meta.BlockScope:
				if current == nil {
					return nil, &ir.AnonymousBlockError{}
				}
				current.Metadata.Set(key, values...)
			case line.Meta.InstrScope:
				if current == nil || lastInstr == nil {
					return nil, &ir.AnonymousBlockError{}
				}
				current.InstrMetadata(lastInstr).Set(key, values...)
			}

		case line.Comment != "":
			// Plain comments carry no semantic information.

		case line.Stmt != nil:
			if current == nil {
				return nil, &ir.AnonymousBlockError{}
			}
			inst, term, err := convertStatement(line.Stmt)
			if err != nil {
				return nil, err
			}
			if term != nil {
				current.Term = term
				lastInstr = nil
				continue
			}
			current.Instructions = append(current.Instructions, inst)
			lastInstr = inst
		}
	}

	cfg.RecomputeParents()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func convertStatement(s *Statement) (ir.Instruction, ir.Terminator, error) {
	switch {
	case s.Assign != nil:
		return convertAssign(s.Assign)
	case s.Goto != nil:
		return nil, &ir.GotoTerminator{TargetLabel: ir.Register(s.Goto.Target).Label()}, nil
	case s.Branch != nil:
		return nil, &ir.BranchTerminator{
			Cond:    ir.Register(s.Branch.Cond),
			IfTrue:  ir.Register(s.Branch.IfTrue).Label(),
			IfFalse: ir.Register(s.Branch.IfFalse).Label(),
		}, nil
	case s.Exit != nil:
		return nil, &ir.ExitTerminator{}, nil
	case s.Read != nil:
		return &ir.ReadInstruction{Tgt: ir.Register(s.Read.Tgt)}, nil, nil
	case s.Write != nil:
		return &ir.WriteInstruction{Src: ir.Register(s.Write.Src.Value)}, nil, nil
	case s.Brk != nil:
		return &ir.BrkInstruction{Name: s.Brk.Name}, nil, nil
	}
	return nil, nil, fmt.Errorf("empty statement")
}

func convertAssign(a *AssignStmt) (ir.Instruction, ir.Terminator, error) {
	tgt := ir.Register(a.Tgt)
	switch {
	case a.Phi != nil:
		args := make([]ir.PhiArg, len(a.Phi.Args))
		for i, arg := range a.Phi.Args {
			args[i] = ir.PhiArg{Value: ir.Register(arg.Value), Label: ir.Register(arg.Label).Label()}
		}
		return &ir.PhiInstruction{Tgt: tgt, Args: args}, nil, nil
	case a.Bin != nil:
		op, err := binOp(a.Bin.Op)
		if err != nil {
			return nil, nil, err
		}
		return &ir.BinaryInstruction{
			Tgt:   tgt,
			Op:    op,
			Left:  ir.Register(a.Bin.Left.Value),
			Right: ir.Register(a.Bin.Right.Value),
		}, nil, nil
	case a.Mov != nil:
		return &ir.MovInstruction{Tgt: tgt, Src: ir.Register(a.Mov.Value)}, nil, nil
	}
	return nil, nil, fmt.Errorf("empty assignment")
}

func binOp(sym string) (ir.BinOp, error) {
	switch sym {
	case "+":
		return ir.OpAdd, nil
	case "-":
		return ir.OpSub, nil
	case "*":
		return ir.OpMul, nil
	case "/":
		return ir.OpDiv, nil
	case "%":
		return ir.OpMod, nil
	case "&":
		return ir.OpAnd, nil
	case "|":
		return ir.OpOr, nil
	case "^":
		return ir.OpXor, nil
	case "<<":
		return ir.OpLShift, nil
	case ">>":
		return ir.OpRShift, nil
	case "==":
		return ir.OpEq, nil
	case "!=":
		return ir.OpNeq, nil
	case "<":
		return ir.OpLt, nil
	case "<=":
		return ir.OpLeq, nil
	}
	return 0, fmt.Errorf("unknown operator %q", sym)
}
