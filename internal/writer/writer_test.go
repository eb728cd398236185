package writer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/ir"
	"amigo/internal/reader"
)

func TestWriteRoundTripsThroughReader(t *testing.T) {
	src := `@entry:
%cond = 1
branch %cond ? @left : @right
@left:
%x = 1
goto @join
@right:
%y = 2
goto @join
@join:
%z = phi [%x, @left], [%y, @right]
write %z
exit
`
	cfg, err := reader.ParseString("t.ami", src)
	require.NoError(t, err)

	out := Write(cfg)

	reparsed, err := reader.ParseString("roundtrip.ami", out)
	require.NoError(t, err, "reparsing writer output:\n--- output ---\n%s", out)
	assert.Equal(t, cfg.EntrypointLabel(), reparsed.EntrypointLabel(), "entrypoint changed across round-trip")
	for _, label := range cfg.Labels() {
		want := cfg.MustBlock(label)
		got := reparsed.MustBlock(label)
		assert.Len(t, got.Instructions, len(want.Instructions), "block @%s: instruction count changed", label)
	}
}

func TestWriteRendersBinaryOperatorsAsSymbols(t *testing.T) {
	cfg := ir.NewCFG()
	_, err := cfg.AddBlock("entry")
	require.NoError(t, err)
	entry := cfg.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%a", Op: ir.OpLeq, Left: "%x", Right: "%y"},
	}
	require.NoError(t, cfg.SetExit("entry"))

	out := Write(cfg)
	assert.Contains(t, out, "%a = %x <= %y")
}

func TestWriteEmitsMetadataDirectives(t *testing.T) {
	cfg := ir.NewCFG()
	cfg.Metadata.Set("source", "orig.ami")
	b, err := cfg.AddBlock("entry")
	require.NoError(t, err)
	b.Metadata.Set("freq", "100")
	require.NoError(t, cfg.SetExit("entry"))

	out := Write(cfg)
	assert.Contains(t, out, ";#!source: orig.ami $")
	assert.Contains(t, out, ";@!freq: 100 $")

	reparsed, err := reader.ParseString("t.ami", out)
	require.NoError(t, err)
	got := reparsed.Metadata.Get("source")
	require.Len(t, got, 1)
	assert.Equal(t, "orig.ami", got[0])
}
