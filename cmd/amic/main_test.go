package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPasses(t *testing.T) {
	assert.Nil(t, splitPasses(""))

	got := splitPasses(" ssa, gvn-rpo ,vdcm")
	want := []string{"ssa", "gvn-rpo", "vdcm"}
	assert.Equal(t, want, got)
}

func TestBuildPassKnownNames(t *testing.T) {
	for _, name := range []string{"branch-elim", "dce", "phi-elim", "gvn-rpo", "gvn-scc", "gargi-gvn", "available", "anticipatable", "vdcm", "reg-realloc"} {
		p, err := buildPass(name, "var", "rpo", 128, 4)
		require.NoError(t, err, "buildPass(%q)", name)
		assert.NotNil(t, p, "buildPass(%q): returned nil pass", name)
	}
}

func TestBuildPassUnknownName(t *testing.T) {
	_, err := buildPass("not-a-pass", "var", "rpo", 128, 4)
	assert.Error(t, err, "expected an error for an unrecognized pass name")
}

func TestBuildPassRejectsBadGVNMode(t *testing.T) {
	_, err := buildPass("gvn-rpo", "nonsense", "rpo", 128, 4)
	assert.Error(t, err, "expected gvn.NewRPO to reject an unrecognized mode")
}
