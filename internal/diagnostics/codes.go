// Package diagnostics renders compiler errors the way the teacher's
// internal/errors package does: a numbered code, a Rust-style
// caret-annotated source excerpt, and coloured severity labels.
// Adapted to the A-Mi middle-end's own error families (spec.md §7)
// instead of a front-end's semantic-analysis codes.
package diagnostics

// Code ranges, mirroring the teacher's banding convention:
//
//	E01xx  reader / parse errors
//	E02xx  CFG structural-invariant violations
//	E03xx  pass manager / argument errors
//	E04xx  instruction exceptions and interpreter interrupts
const (
	// E0100: a source line could not be parsed.
	ErrorParse = "E0100"
	// E0101: the program has no blocks at all.
	ErrorEmptyCFG = "E0101"
	// E0102: the program never designated an entrypoint block.
	ErrorNoEntryPoint = "E0102"
	// E0103: an instruction or metadata directive appeared before any
	// block label.
	ErrorAnonymousBlock = "E0103"

	// E0200: a terminator or phi referenced a label that doesn't exist.
	ErrorBadAddress = "E0200"
	// E0201: an edge edit left a terminator and the recorded children
	// inconsistent.
	ErrorBadFlow = "E0201"
	// E0202: a phi's predecessor set doesn't match the block's actual
	// parents.
	ErrorBadPhi = "E0202"

	// E0300: a pass or analysis ID doesn't match the required syntax.
	ErrorBadID = "E0300"
	// E0301: a pass constructor received an unrecognized or malformed
	// option.
	ErrorBadArgument = "E0301"
	// E0302: an optimization found a condition that makes the source
	// meaningless, e.g. use before def.
	ErrorOpt = "E0302"

	// E0400: the interpreter encountered an instruction it can't
	// execute.
	ErrorUnknownInstruction = "E0400"
	// E0401: the interpreter attempted to divide or take the
	// remainder by zero.
	ErrorDivisionByZero = "E0401"
	// E0402: a CFG failed to load (malformed metadata, missing
	// entrypoint for an embedded analysis, etc.)
	ErrorLoad = "E0402"
)

var descriptions = map[string]string{
	ErrorParse:              "the reader could not parse this line",
	ErrorEmptyCFG:           "the program has no blocks",
	ErrorNoEntryPoint:       "the program has no entrypoint block",
	ErrorAnonymousBlock:     "an instruction or directive appeared before any block label",
	ErrorBadAddress:         "a reference names a label that does not exist",
	ErrorBadFlow:            "a block's terminator and recorded children disagree",
	ErrorBadPhi:             "a phi argument names a block that is not an actual predecessor",
	ErrorBadID:              "a pass or analysis ID is not lowercase-kebab",
	ErrorBadArgument:        "a pass received an option it does not recognize",
	ErrorOpt:                "an optimization found the program meaningless at this point",
	ErrorUnknownInstruction: "the interpreter does not know how to execute this instruction",
	ErrorDivisionByZero:     "division or modulo by zero",
	ErrorLoad:               "the CFG could not be loaded",
}

// Describe returns a human-readable description of an error code, or
// "unknown error code" if it isn't recognized.
func Describe(code string) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "unknown error code"
}
