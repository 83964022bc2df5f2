package parser

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

var (
	fileParser   *participle.Parser[File]
	policyParser *participle.Parser[PolicyDecl]
)

func init() {
	var err error
	fileParser, err = participle.Build[File](
		participle.Lexer(policyLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(participle.MaxLookahead),
	)
	if err != nil {
		panic(oops.Wrapf(err, "building policy file parser"))
	}

	policyParser, err = participle.Build[PolicyDecl](
		participle.Lexer(policyLexer),
		participle.Elide("Whitespace", "Comment"),
		participle.UseLookahead(participle.MaxLookahead),
	)
	if err != nil {
		panic(oops.Wrapf(err, "building single-policy parser"))
	}
}

// Option configures a Parse invocation.
type Option func(*convertOptions)

// WithMaxTraversalDepth overrides the default traversal depth bound,
// exposed to the CLI's --traversal-depth flag.
func WithMaxTraversalDepth(d int) Option {
	return func(o *convertOptions) { o.maxDepth = d }
}

// Parse parses one policy source file's text into a PolicySet together
// with an ordered diagnostics list. A parse is successful when the
// diagnostics list is empty. Errors collect rather than short-circuit:
// if the whole-file grammar fails, Parse falls back to a per-policy
// recovery pass that re-synchronizes at the next "POLICY" boundary so
// unrelated policies in the same file still parse.
func Parse(file string, src string, opts ...Option) (policy.PolicySet, Diagnostics) {
	options := defaultConvertOptions()
	for _, o := range opts {
		o(&options)
	}

	parsed, err := fileParser.ParseString(file, src)
	if err == nil {
		return convertFile(file, parsed, options)
	}

	// Whole-file parse failed; recover policy-by-policy.
	return parseWithRecovery(file, src, options)
}

func convertFile(file string, f *File, opts convertOptions) (policy.PolicySet, Diagnostics) {
	var diags Diagnostics
	ps := policy.PolicySet{}
	for _, decl := range f.Policies {
		p, ds := convertPolicy(file, decl, opts)
		diags = append(diags, ds...)
		ps.Policies = append(ps.Policies, p)
	}
	return ps, diags
}

// parseWithRecovery splits the source into one chunk per top-level
// "POLICY" keyword occurrence (determined from the token stream, so
// occurrences inside string literals never confuse the split) and parses
// each chunk independently, recording a diagnostic and skipping to the
// next chunk on failure.
func parseWithRecovery(file string, src string, opts convertOptions) (policy.PolicySet, Diagnostics) {
	var diags Diagnostics
	ps := policy.PolicySet{}

	boundaries := policyBoundaries(file, src)
	if len(boundaries) == 0 {
		diags = append(diags, Diagnostic{File: file, Line: 1, Column: 1, Message: "no policy declarations found"})
		return ps, diags
	}

	for i, start := range boundaries {
		end := len(src)
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		chunk := src[start:end]
		decl, err := policyParser.ParseString(file, chunk)
		if err != nil {
			line, col := offsetToLineCol(src, start)
			diags = append(diags, Diagnostic{
				File: file, Line: line, Column: col,
				Message: oops.Wrapf(err, "parsing policy declaration").Error(),
			})
			continue
		}
		p, ds := convertPolicy(file, decl, opts)
		diags = append(diags, ds...)
		ps.Policies = append(ps.Policies, p)
	}

	return ps, diags
}

// policyBoundaries returns the byte offsets in src where a new top-level
// "POLICY" keyword token begins.
func policyBoundaries(file, src string) []int {
	lex, err := policyLexer.Lex(file, strings.NewReader(src))
	if err != nil {
		return nil
	}
	var offsets []int
	for {
		tok, err := lex.Next()
		if err != nil || tok.EOF() {
			break
		}
		if tok.Value == "POLICY" {
			offsets = append(offsets, tok.Pos.Offset)
		}
	}
	return offsets
}

func offsetToLineCol(src string, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
