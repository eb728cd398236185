package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"amigo/internal/ir"
	"amigo/internal/reader"
)

func TestFormatIncludesCodeAndCaret(t *testing.T) {
	src := "@entry:\n%a = \nexit\n"
	r := NewReporter("t.ami", src)
	err := &CompilerError{
		Level:    Error,
		Code:     ErrorParse,
		Message:  "unexpected token",
		Position: Position{Filename: "t.ami", Line: 2, Column: 5},
		Length:   1,
	}
	out := r.Format(err)
	assert.Contains(t, out, "E0100")
	assert.Contains(t, out, "%a = ")
	assert.Contains(t, out, "^")
}

func TestFromErrorClassifiesAnonymousBlock(t *testing.T) {
	_, err := reader.ParseString("t.ami", "%a = 1\nexit\n")
	ce := FromError("t.ami", err)
	assert.Equal(t, ErrorAnonymousBlock, ce.Code)
}

func TestFromErrorClassifiesBadLabel(t *testing.T) {
	ce := FromError("t.ami", &ir.BadLabelError{Label: "nope"})
	assert.Equal(t, ErrorBadAddress, ce.Code)
}

func TestExitCodeBands(t *testing.T) {
	parse := &CompilerError{Code: ErrorParse}
	assert.Equal(t, 2, parse.ExitCode())

	arg := &CompilerError{Code: ErrorBadArgument}
	assert.Equal(t, 3, arg.ExitCode())

	flow := &CompilerError{Code: ErrorBadFlow}
	assert.Equal(t, 4, flow.ExitCode())
}
