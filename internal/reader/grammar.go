package reader

// File is the parsed surface form of an A-Mi program: an ordered run
// of lines, most of which are blank, a metadata directive, a comment,
// or a label/instruction.
type File struct {
	Lines []*Line `(@@? EOL)* @@?`
}

// Line is everything that can occupy one physical line. At most one
// of its fields is set; an entirely blank line parses to a nil *Line.
type Line struct {
	Label   string         `(   @Label ":"`
	Meta    *MetaDirective `  | @@`
	Comment string         `  | @Comment`
	Stmt    *Statement     `  | @@ )`
}

// MetaDirective is a `;#!`, `;@!`, or `;%!` comment, scoped to the
// CFG, the enclosing block, or the preceding instruction respectively.
// Its value may continue across several physical lines; the lexer
// switches into a mode where only `$` ends it.
type MetaDirective struct {
	CFGScope   bool     `(   @MetaCFGStart`
	BlockScope bool     `  | @MetaBlockStart`
	InstrScope bool     `  | @MetaInstrStart )`
	KeyRaw     string   `@MetaWord`
	Values     []string `@MetaWord* MetaEnd`
}

// Operand is a value register or an integer literal, the two things
// an instruction may read.
type Operand struct {
	Value string `@Register | @Integer`
}

// Statement is one instruction, in any of the surface forms spec.md
// §6 lists.
type Statement struct {
	Assign *AssignStmt `  @@`
	Goto   *GotoStmt   `| @@`
	Branch *BranchStmt `| @@`
	Exit   *ExitStmt   `| @@`
	Read   *ReadStmt   `| @@`
	Write  *WriteStmt  `| @@`
	Brk    *BrkStmt    `| @@`
}

// AssignStmt covers the three surface forms that write a register:
// `dst = src` (mov), `dst = phi [...], ...`, and `dst = a op b`.
type AssignStmt struct {
	Tgt string      `@Register "="`
	Phi *PhiRHS     `(   @@`
	Bin *BinaryRHS  `  | @@`
	Mov *Operand    `  | @@ )`
}

type PhiRHS struct {
	Args []*PhiArg `"phi" @@ ( "," @@ )*`
}

type PhiArg struct {
	Value string `"[" ( @Register | @Integer )`
	Label string `"," @Label "]"`
}

type BinaryRHS struct {
	Left  *Operand `@@`
	Op    string   `@Op`
	Right *Operand `@@`
}

type GotoStmt struct {
	Target string `"goto" @Label`
}

type BranchStmt struct {
	Cond    string `"branch" @Register "?"`
	IfTrue  string `@Label ":"`
	IfFalse string `@Label`
}

type ExitStmt struct {
	Exit bool `@"exit"`
}

type ReadStmt struct {
	Tgt string `"read" @Register`
}

type WriteStmt struct {
	Src *Operand `"write" @@`
}

type BrkStmt struct {
	Name string `"brkpt" "!" @Ident`
}
