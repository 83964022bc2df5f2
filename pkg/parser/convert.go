package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// MaxTraversalDepth is the default bound on nested exists(...)
// traversals. Callers may override via convertOptions when the CLI's
// --traversal-depth flag differs.
const MaxTraversalDepth = 2

type convertOptions struct {
	maxDepth int
}

func defaultConvertOptions() convertOptions {
	return convertOptions{maxDepth: MaxTraversalDepth}
}

// convertPolicy turns one parsed PolicyDecl into a policy.Policy, or
// returns a validation diagnostic (duplicate detection is the caller's
// job — pkg/engine — since it requires cross-file context).
func convertPolicy(file string, decl *PolicyDecl, opts convertOptions) (policy.Policy, []Diagnostic) {
	var diags []Diagnostic

	var ptype policy.PolicyType
	if decl.Type == "RESTRICTIVE" {
		ptype = policy.Restrictive
	} else {
		ptype = policy.Permissive
	}

	cmds := make([]policy.Command, 0, len(decl.Commands))
	for _, c := range decl.Commands {
		cmds = append(cmds, convertCommand(c))
	}
	if len(cmds) == 0 {
		diags = append(diags, Diagnostic{
			File: file, Line: decl.Pos.Line, Column: decl.Pos.Column,
			Message: fmt.Sprintf("policy %q: commands must be non-empty", decl.Name),
		})
	}

	sel, selDiags := convertSelector(file, decl.Selector)
	diags = append(diags, selDiags...)

	clauses := make([]policy.Clause, 0, len(decl.Clauses))
	for _, c := range decl.Clauses {
		clause, cdiags := convertClause(file, c, opts, 0)
		diags = append(diags, cdiags...)
		clauses = append(clauses, clause)
	}

	return policy.Policy{
		Name:     decl.Name,
		Type:     ptype,
		Commands: policy.NewCommandSet(cmds...),
		Selector: sel,
		Clauses:  clauses,
		File:     file,
		Line:     decl.Pos.Line,
		Column:   decl.Pos.Column,
	}, diags
}

func convertCommand(s string) policy.Command {
	switch s {
	case "SELECT":
		return policy.CmdSelect
	case "INSERT":
		return policy.CmdInsert
	case "UPDATE":
		return policy.CmdUpdate
	case "DELETE":
		return policy.CmdDelete
	default:
		return policy.CmdSelect
	}
}

func convertSelector(file string, sx *SelectorExpr) (policy.Selector, []Diagnostic) {
	if sx == nil || len(sx.Terms) == 0 {
		return policy.All(), nil
	}
	var diags []Diagnostic
	result, ds := convertSelectorAnd(file, sx.Terms[0])
	diags = append(diags, ds...)
	for _, term := range sx.Terms[1:] {
		next, ds := convertSelectorAnd(file, term)
		diags = append(diags, ds...)
		result = policy.Or(result, next)
	}
	return result, diags
}

func convertSelectorAnd(file string, sa *SelectorAnd) (policy.Selector, []Diagnostic) {
	var diags []Diagnostic
	result, ds := convertSelectorNot(file, sa.Terms[0])
	diags = append(diags, ds...)
	for _, term := range sa.Terms[1:] {
		next, ds := convertSelectorNot(file, term)
		diags = append(diags, ds...)
		result = policy.And(result, next)
	}
	return result, diags
}

func convertSelectorNot(file string, sn *SelectorNot) (policy.Selector, []Diagnostic) {
	atom, diags := convertSelectorAtom(file, sn.Atom)
	if sn.Negated {
		atom = policy.Not(atom)
	}
	return atom, diags
}

func convertSelectorAtom(file string, sa *SelectorAtom) (policy.Selector, []Diagnostic) {
	switch {
	case sa.Paren != nil:
		return convertSelector(file, sa.Paren)
	case sa.All:
		return policy.All(), nil
	case sa.HasColumn != nil:
		return policy.HasColumn(unquoteSingle(sa.HasColumn.Name), unquoteSingle(sa.HasColumn.Type)), nil
	case sa.Named != nil:
		return policy.Named(unquoteSingle(sa.Named.Pattern)), nil
	case sa.InSchema != nil:
		return policy.InSchema(unquoteSingle(sa.InSchema.Schema)), nil
	case sa.Tagged != nil:
		return policy.Tagged(unquoteSingle(sa.Tagged.Tag)), nil
	default:
		return policy.All(), []Diagnostic{{File: file, Message: "empty selector atom"}}
	}
}

func convertClause(file string, cx *ClauseExpr, opts convertOptions, depth int) (policy.Clause, []Diagnostic) {
	var diags []Diagnostic
	atoms := make([]policy.Atom, 0, len(cx.Atoms))
	for _, ax := range cx.Atoms {
		atom, adiags := convertAtom(file, ax, opts, depth)
		diags = append(diags, adiags...)
		atoms = append(atoms, atom)
	}
	return policy.NewClause(atoms...), diags
}

func convertAtom(file string, ax *AtomExpr, opts convertOptions, depth int) (policy.Atom, []Diagnostic) {
	switch {
	case ax.Traversal != nil:
		return convertTraversal(file, ax.Traversal, opts, depth)
	case ax.Unary != nil:
		src, diags := convertValueSource(file, ax.Unary.Source)
		op := policy.OpIsNull
		if ax.Unary.Not {
			op = policy.OpIsNotNull
		}
		return policy.UnaryAtom(src, op), diags
	case ax.Binary != nil:
		left, ld := convertValueSource(file, ax.Binary.Left)
		right, rd := convertValueSource(file, ax.Binary.Right)
		op := convertBinOp(ax.Binary.Op)
		diags := append(ld, rd...)
		return policy.BinaryAtom(left, op, right), diags
	default:
		return policy.Atom{}, []Diagnostic{{File: file, Message: "empty atom"}}
	}
}

func convertTraversal(file string, tx *TraversalExpr, opts convertOptions, depth int) (policy.Atom, []Diagnostic) {
	var diags []Diagnostic
	if depth+1 > opts.maxDepth {
		diags = append(diags, Diagnostic{
			File: file, Line: tx.Pos.Line, Column: tx.Pos.Column,
			Message: fmt.Sprintf("traversal depth exceeds configured bound of %d", opts.maxDepth),
		})
	}
	srcTable := ""
	if tx.SourceTable != nil && !tx.SourceTable.Wildcard {
		srcTable = tx.SourceTable.Table
	}
	rel := policy.Relationship{
		SourceTable: srcTable,
		SourceCol:   tx.SourceCol,
		TargetTable: tx.TargetTable,
		TargetCol:   tx.TargetCol,
	}
	inner, innerDiags := convertClause(file, tx.Inner, opts, depth+1)
	diags = append(diags, innerDiags...)
	return policy.TraversalAtom(rel, inner), diags
}

func convertBinOp(op *BinOpExpr) policy.BinaryOp {
	switch {
	case op.NotIn:
		return policy.OpNotIN
	case op.NotLike:
		return policy.OpNotLIKE
	case op.In:
		return policy.OpIN
	case op.Like:
		return policy.OpLIKE
	case op.Ne:
		return policy.OpNEQ
	case op.Le:
		return policy.OpLTE
	case op.Ge:
		return policy.OpGTE
	case op.Lt:
		return policy.OpLT
	case op.Gt:
		return policy.OpGT
	default:
		return policy.OpEQ
	}
}

func convertValueSource(file string, vx *ValueSource) (policy.ValueSource, []Diagnostic) {
	switch {
	case vx.Column != "":
		return policy.Col(vx.Column), nil
	case vx.Session != "":
		return policy.Session(unquoteSingle(vx.Session)), nil
	case vx.Literal != nil:
		lit, diags := convertLiteral(file, vx.Literal)
		return policy.Lit(lit), diags
	case vx.Fn != nil:
		args := make([]policy.ValueSource, 0, len(vx.Fn.Args))
		var diags []Diagnostic
		for _, a := range vx.Fn.Args {
			v, d := convertValueSource(file, a)
			args = append(args, v)
			diags = append(diags, d...)
		}
		return policy.Fn(vx.Fn.Name, args...), diags
	default:
		return policy.ValueSource{}, []Diagnostic{{File: file, Message: "empty value source"}}
	}
}

func convertLiteral(file string, lx *LiteralExpr) (policy.LiteralValue, []Diagnostic) {
	switch {
	case lx.Str != nil:
		return policy.Str(unquoteSingle(*lx.Str)), nil
	case lx.Int != nil:
		n, err := strconv.ParseInt(*lx.Int, 10, 64)
		if err != nil {
			return policy.LiteralValue{}, []Diagnostic{{File: file, Message: fmt.Sprintf("invalid integer literal %q: %v", *lx.Int, err)}}
		}
		return policy.Int(n), nil
	case lx.Bool != nil:
		return policy.Bool(*lx.Bool == "true"), nil
	case lx.Null:
		return policy.Null(), nil
	case lx.List != nil:
		vals := make([]policy.LiteralValue, 0, len(lx.List))
		var diags []Diagnostic
		for _, e := range lx.List {
			v, d := convertLiteral(file, e)
			vals = append(vals, v)
			diags = append(diags, d...)
		}
		return policy.List(vals...), diags
	default:
		return policy.LiteralValue{}, []Diagnostic{{File: file, Message: "empty literal"}}
	}
}

// unquoteSingle strips the DSL's single-quote string delimiters and
// resolves backslash escapes. The lexer's String token already requires
// balanced single quotes (see lexer.go), so len(s) >= 2 here.
func unquoteSingle(s string) string {
	if len(s) < 2 {
		return s
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(inner[i])
			}
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
