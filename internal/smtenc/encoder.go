// Package smtenc translates normalized policy AST fragments into SMT-LIB2
// formulas over a single uninterpreted sort `Val` with equality. The
// encoder renders SMT-LIB2 text directly; internal/solver is the
// subprocess boundary that feeds this text to an external z3 binary.
package smtenc

import (
	"fmt"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// Context accumulates the constant declarations and literal-distinctness
// assertions produced across every Encode call made against it. A single
// Context corresponds to one solver invocation: each invocation binds
// logical names to solver-level constants within a single solver
// context.
type Context struct {
	valConsts    []string
	valDeclared  map[string]bool
	boolConsts   []string
	boolDeclared map[string]bool

	literalConsts []string // in first-seen order, for the distinct assertion in Declarations
	literalByKey  map[string]string

	nextTraversal int
	nextOpaque    int
}

// NewContext returns an empty encoding context.
func NewContext() *Context {
	return &Context{
		valDeclared:  map[string]bool{},
		boolDeclared: map[string]bool{},
		literalByKey: map[string]string{},
	}
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (c *Context) declareVal(name string) string {
	if !c.valDeclared[name] {
		c.valDeclared[name] = true
		c.valConsts = append(c.valConsts, name)
	}
	return name
}

func (c *Context) declareBool(name string) string {
	if !c.boolDeclared[name] {
		c.boolDeclared[name] = true
		c.boolConsts = append(c.boolConsts, name)
	}
	return name
}

// columnConst returns the Val constant for col(x) scoped to tablePrefix:
// <prefix>_col_<name>. The same (tablePrefix, name) pair always yields the
// same constant within a Context, which is what makes traversal joins
// work.
func (c *Context) columnConst(tablePrefix, name string) string {
	return c.declareVal(fmt.Sprintf("%s_col_%s", sanitize(tablePrefix), sanitize(name)))
}

// sessionConst returns the Val constant for session(k) scoped to
// sessionPrefix: <prefix>_session_<key>.
func (c *Context) sessionConst(sessionPrefix, key string) string {
	return c.declareVal(fmt.Sprintf("%s_session_%s", sanitize(sessionPrefix), sanitize(key)))
}

// literalConst returns the Val constant for a literal value source. Two
// literals sharing the same syntactic representation (LiteralValue.String)
// map to the same constant; distinct representations are asserted
// pairwise-distinct by the distinct assertion Context.Declarations emits.
func (c *Context) literalConst(v policy.LiteralValue) string {
	key := v.String()
	if name, ok := c.literalByKey[key]; ok {
		return name
	}
	name := c.declareVal(fmt.Sprintf("lit_%d", len(c.literalConsts)))
	c.literalByKey[key] = name
	c.literalConsts = append(c.literalConsts, name)
	return name
}

// SessionConst exposes sessionConst for proof construction that needs to
// bind a session variable to a specific literal (e.g. role separation),
// outside of encoding any particular atom.
func (c *Context) SessionConst(sessionPrefix, key string) string {
	return c.sessionConst(sessionPrefix, key)
}

// LiteralConst exposes literalConst for proof construction that needs to
// assert a session variable equal to a specific literal.
func (c *Context) LiteralConst(v policy.LiteralValue) string {
	return c.literalConst(v)
}

// freshOpaqueBool returns a fresh, unconstrained Bool constant standing in
// for an ordering or LIKE/NOT_LIKE comparison. Leaving the constant
// unconstrained is sound for UNSAT conclusions; a query such an atom
// alone would decide comes back unknown instead of wrong.
func (c *Context) freshOpaqueBool(label string) string {
	name := fmt.Sprintf("opaque_%s_%d", sanitize(label), c.nextOpaque)
	c.nextOpaque++
	return c.declareBool(name)
}

// nullFlag returns the per-column Bool constant recording IS_NULL for
// col(x) scoped to tablePrefix. Like columnConst, the same pair always
// yields the same flag within a Context.
func (c *Context) nullFlag(tablePrefix, name string) string {
	return c.declareBool(fmt.Sprintf("%s_col_%s_isnull", sanitize(tablePrefix), sanitize(name)))
}

// freshTablePrefix allocates a unique column-scoping prefix for a
// traversal's target table, so repeated or nested traversals to the same
// table never alias each other's constants within one context.
func (c *Context) freshTablePrefix(targetTable string) string {
	c.nextTraversal++
	return fmt.Sprintf("%s_%d", sanitize(targetTable), c.nextTraversal)
}

// Declarations renders every `(declare-const ...)` line accumulated so
// far, followed by the literal-distinctness assertion, in deterministic
// declaration order.
func (c *Context) Declarations() []string {
	var out []string
	for _, name := range c.valConsts {
		out = append(out, fmt.Sprintf("(declare-const %s Val)", name))
	}
	for _, name := range c.boolConsts {
		out = append(out, fmt.Sprintf("(declare-const %s Bool)", name))
	}
	if len(c.literalConsts) > 1 {
		out = append(out, fmt.Sprintf("(assert (distinct %s))", strings.Join(c.literalConsts, " ")))
	}
	return out
}

// Script assembles a complete SMT-LIB2 program asserting formula and
// checking satisfiability: sort declaration, accumulated constant
// declarations, the distinctness assertion, the formula itself, and
// check-sat/get-model.
func (c *Context) Script(formula string) string {
	var b strings.Builder
	b.WriteString("(declare-sort Val 0)\n")
	for _, line := range c.Declarations() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(assert %s)\n", formula)
	b.WriteString("(check-sat)\n")
	b.WriteString("(get-model)\n")
	return b.String()
}

// Encoder translates AST fragments into SMT-LIB2 boolean formula strings.
// It is pure and stateless between invocations; all per-context state
// (constant names, distinctness bookkeeping) lives in the Context passed
// to each method.
type Encoder struct{}

// New returns an Encoder. Encoders carry no state of their own.
func New() *Encoder { return &Encoder{} }

// EncodeEffective renders the effective predicate for a (table, command)
// pair: the disjunction of every permissive policy's
// clauses, conjoined with the conjunction, over every restrictive policy,
// of that policy's own clause disjunction. An empty permissive set
// encodes as falsity (default deny).
func (e *Encoder) EncodeEffective(permissive, restrictive []policy.Policy, table, sessionPrefix string, ctx *Context) string {
	var permClauses []policy.Clause
	for _, p := range permissive {
		permClauses = append(permClauses, p.Clauses...)
	}
	permExpr := e.encodeDisjunction(permClauses, table, table, sessionPrefix, ctx)
	if len(restrictive) == 0 {
		return permExpr
	}
	exprs := []string{permExpr}
	for _, r := range restrictive {
		exprs = append(exprs, e.encodeDisjunction(r.Clauses, table, table, sessionPrefix, ctx))
	}
	return andAll(exprs)
}

// encodeDisjunction ORs the encoding of each clause. An empty clause list
// (no applicable policies) encodes as falsity; a present-but-empty clause
// encodes as truth (policy.Clause.IsEmpty denotes an unconditional grant).
func (e *Encoder) encodeDisjunction(clauses []policy.Clause, prefix, policyTable, sessionPrefix string, ctx *Context) string {
	if len(clauses) == 0 {
		return "false"
	}
	exprs := make([]string, len(clauses))
	for i, c := range clauses {
		exprs[i] = e.EncodeClause(c, prefix, policyTable, sessionPrefix, ctx)
	}
	return orAll(exprs)
}

// EncodeClause conjoins the encoding of every atom in c, scoped to prefix
// (the current column-scoping table) with policyTable retained as the
// fixed table a wildcard rel(_, ...) source resolves to. An empty clause
// encodes as truth.
func (e *Encoder) EncodeClause(c policy.Clause, prefix, policyTable, sessionPrefix string, ctx *Context) string {
	if c.IsEmpty() {
		return "true"
	}
	atoms := c.Sorted()
	exprs := make([]string, len(atoms))
	for i, a := range atoms {
		exprs[i] = e.encodeAtom(a, prefix, policyTable, sessionPrefix, ctx)
	}
	return andAll(exprs)
}

func (e *Encoder) encodeAtom(a policy.Atom, prefix, policyTable, sessionPrefix string, ctx *Context) string {
	switch a.Kind {
	case policy.AtomBinary:
		return e.encodeBinary(a, prefix, sessionPrefix, ctx)
	case policy.AtomUnary:
		flag := e.encodeNullFlag(a.Source, prefix, sessionPrefix, ctx)
		if a.UnOp == policy.OpIsNull {
			return flag
		}
		return fmt.Sprintf("(not %s)", flag)
	case policy.AtomTraversal:
		return e.encodeTraversal(a, prefix, policyTable, sessionPrefix, ctx)
	default:
		return "false"
	}
}

func (e *Encoder) encodeNullFlag(v policy.ValueSource, prefix, sessionPrefix string, ctx *Context) string {
	if v.Kind == policy.SourceColumn {
		return ctx.nullFlag(prefix, v.Column)
	}
	// session/literal/fn-call null checks have no column scope; key the
	// flag on the value source's own rendering.
	return ctx.nullFlag("value", v.String())
}

func (e *Encoder) encodeBinary(a policy.Atom, prefix, sessionPrefix string, ctx *Context) string {
	switch a.BinOp {
	case policy.OpIN, policy.OpNotIN:
		left := e.encodeValueSource(a.Left, prefix, sessionPrefix, ctx)
		list := literalListOf(a.Right)
		if len(list) == 0 {
			if a.BinOp == policy.OpIN {
				return "false"
			}
			return "true"
		}
		exprs := make([]string, len(list))
		for i, lit := range list {
			exprs[i] = fmt.Sprintf("(= %s %s)", left, ctx.literalConst(lit))
		}
		if a.BinOp == policy.OpIN {
			return orAll(exprs)
		}
		for i, expr := range exprs {
			exprs[i] = fmt.Sprintf("(not %s)", expr)
		}
		return andAll(exprs)
	case policy.OpLT, policy.OpGT, policy.OpLTE, policy.OpGTE:
		return ctx.freshOpaqueBool("ord")
	case policy.OpLIKE, policy.OpNotLIKE:
		return ctx.freshOpaqueBool("like")
	default: // EQ, NEQ
		left := e.encodeValueSource(a.Left, prefix, sessionPrefix, ctx)
		right := e.encodeValueSource(a.Right, prefix, sessionPrefix, ctx)
		if a.BinOp == policy.OpEQ {
			return fmt.Sprintf("(= %s %s)", left, right)
		}
		return fmt.Sprintf("(not (= %s %s))", left, right)
	}
}

func literalListOf(v policy.ValueSource) []policy.LiteralValue {
	if v.Kind == policy.SourceLiteral && v.Literal.Kind == policy.LiteralList {
		return v.Literal.List
	}
	return nil
}

func (e *Encoder) encodeValueSource(v policy.ValueSource, prefix, sessionPrefix string, ctx *Context) string {
	switch v.Kind {
	case policy.SourceColumn:
		return ctx.columnConst(prefix, v.Column)
	case policy.SourceSessionVar:
		return ctx.sessionConst(sessionPrefix, v.SessionVar)
	case policy.SourceLiteral:
		return ctx.literalConst(v.Literal)
	case policy.SourceFnCall:
		// Function calls are opaque to the encoder: modeled as a fresh,
		// unconstrained constant per call occurrence, same soundness
		// rationale as ordering/LIKE operators.
		name := fmt.Sprintf("fn_%s_%d", sanitize(v.FnName), ctx.nextOpaque)
		ctx.nextOpaque++
		return ctx.declareVal(name)
	default:
		return ctx.declareVal("unknown")
	}
}

func (e *Encoder) encodeTraversal(a policy.Atom, prefix, policyTable, sessionPrefix string, ctx *Context) string {
	rel := a.Rel
	srcTable := rel.SourceTable
	if srcTable == "" {
		srcTable = policyTable
	}
	targetPrefix := ctx.freshTablePrefix(rel.TargetTable)
	sourceConst := ctx.columnConst(srcTable, rel.SourceCol)
	targetConst := ctx.columnConst(targetPrefix, rel.TargetCol)
	joinEq := fmt.Sprintf("(= %s %s)", sourceConst, targetConst)
	inner := e.EncodeClause(a.Inner, targetPrefix, policyTable, sessionPrefix, ctx)
	return fmt.Sprintf("(and %s %s)", joinEq, inner)
}

func andAll(exprs []string) string {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return fmt.Sprintf("(and %s)", strings.Join(exprs, " "))
}

func orAll(exprs []string) string {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return fmt.Sprintf("(or %s)", strings.Join(exprs, " "))
}
