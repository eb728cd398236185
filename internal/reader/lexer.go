package reader

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// AMiLexer tokenizes the A-Mi textual surface syntax. It is stateful
// so that a metadata directive (`;#!`, `;@!`, `;%!`) can switch into a
// mode where everything up to a lone `$` is a value word, rather than
// being re-lexed against the instruction grammar.
var AMiLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Whitespace", `[ \t\r]+`, nil},
		{"EOL", `\n`, nil},
		{"MetaCFGStart", `;#!`, lexer.Push("Meta")},
		{"MetaBlockStart", `;@!`, lexer.Push("Meta")},
		{"MetaInstrStart", `;%!`, lexer.Push("Meta")},
		{"Comment", `;[^\n]*`, nil},
		{"Label", `@[.\w]+`, nil},
		{"Register", `%[.\w]+`, nil},
		{"Integer", `-?\d+`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Op", `==|!=|<=|<<|>>|[-+*/%&|^<]`, nil},
		{"Punct", `[:=?,\[\]!]`, nil},
	},
	"Meta": {
		{"Whitespace", `[ \t\r]+`, nil},
		{"MetaEOL", `\n`, nil},
		{"MetaEnd", `\$`, lexer.Pop()},
		{"MetaWord", `[^\s$]+`, nil},
	},
})
