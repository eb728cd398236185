package diagnostics

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel is the severity of a reported diagnostic.
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
	Help    ErrorLevel = "help"
)

// Position locates a diagnostic within a source file. Line and Column
// are 1-based; Column may be zero when an error (e.g. EmptyCFG) has
// no specific column to point at.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// CompilerError is a structured diagnostic with enough context to
// render a Rust-style annotated excerpt.
type CompilerError struct {
	Level    ErrorLevel
	Code     string // one of the E0xxx constants in codes.go
	Message  string
	Position Position
	Length   int      // width of the underline; defaults to 1
	Notes    []string // additional context lines
	HelpText string
}

func (e *CompilerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Level, e.Message)
}

// ExitCode maps an error code's band to the process exit status
// spec.md §6 reserves for it: argument errors, parse errors, and
// optimization errors each get their own positive code; anything else
// reported as an error still exits nonzero.
func (e *CompilerError) ExitCode() int {
	switch {
	case e.Code == ErrorParse:
		return 2
	case e.Code == ErrorOpt:
		return 5
	case strings.HasPrefix(e.Code, "E03"):
		return 3
	case strings.HasPrefix(e.Code, "E01") || strings.HasPrefix(e.Code, "E02"):
		return 4
	default:
		return 1
	}
}

// Reporter renders CompilerErrors against one source file, the way
// the teacher's ErrorReporter does.
type Reporter struct {
	filename string
	lines    []string
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

// Format renders err as a coloured, caret-annotated block.
func (r *Reporter) Format(err *CompilerError) string {
	var b strings.Builder

	levelColor := r.levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		b.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, err.Message))
	} else {
		b.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(err.Level)), err.Message))
	}

	width := lineNumberWidth(err.Position.Line)
	indent := strings.Repeat(" ", width)

	b.WriteString(fmt.Sprintf("%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, err.Position.Line, err.Position.Column))
	b.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	if err.Position.Line >= 1 && err.Position.Line <= len(r.lines) {
		line := r.lines[err.Position.Line-1]
		b.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%*d", width, err.Position.Line)), dim("│"), line))
		b.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), marker(err.Position.Column, err.Length, err.Level)))
	}

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note))
	}
	if err.HelpText != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), helpColor("help:"), err.HelpText))
	}
	return b.String()
}

func (r *Reporter) levelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func marker(column, length int, level ErrorLevel) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", maxInt(0, column-1))
	markerColor := color.New(color.FgRed, color.Bold).SprintFunc()
	if level == Warning {
		markerColor = color.New(color.FgYellow, color.Bold).SprintFunc()
	}
	return spaces + markerColor(strings.Repeat("^", length))
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		return 3
	}
	return w
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
