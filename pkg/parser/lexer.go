package parser

import "github.com/alecthomas/participle/v2/lexer"

// policyLexer tokenizes the RLS policy DSL. Order matters: longer operator
// spellings must precede shorter ones that share a prefix (">=" before
// ">", "!=" before nothing shorter here, but kept first on principle).
var policyLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(--|//)[^\n]*|/\*[\s\S]*?\*/`},
	{Name: "String", Pattern: `'(?:[^'\\]|\\.)*'`},
	{Name: "Int", Pattern: `-?[0-9]+`},
	{Name: "OpGe", Pattern: `>=`},
	{Name: "OpLe", Pattern: `<=`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpEq", Pattern: `=`},
	{Name: "OpGt", Pattern: `>`},
	{Name: "OpLt", Pattern: `<`},
	{Name: "Wildcard", Pattern: `_\b`},
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[(){}\[\],]`},
	{Name: "Whitespace", Pattern: `\s+`},
})
