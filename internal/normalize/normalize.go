// Package normalize implements the canonicalizing rewrite system: a
// confluent, terminating fixpoint that eliminates
// tautologies and contradictions within a clause, merges redundant atoms,
// and drops clauses subsumed by a more permissive sibling within the same
// policy.
//
// Normalize is a pure, total, denotation-preserving function over its
// input, so it never returns an error; internal/proof's AnalysisError
// and internal/sqlgen's CompilationError are where this pipeline's later
// stages surface failure.
package normalize

import (
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// Normalize rewrites every policy's clause list to canonical form. Table
// iteration and policy order are preserved; clause order within a policy
// is preserved modulo the clauses rule 5 removes (subsumed clauses), since
// rule 5's tie-break ("ties broken deterministically by clause index")
// depends on that order.
func Normalize(ps policy.PolicySet) policy.PolicySet {
	out := policy.PolicySet{Policies: make([]policy.Policy, 0, len(ps.Policies))}
	for _, p := range ps.Policies {
		out.Policies = append(out.Policies, normalizePolicy(p))
	}
	return out
}

func normalizePolicy(p policy.Policy) policy.Policy {
	clauses := p.Clauses
	for {
		next := rewriteClauses(clauses)
		next = dropContradictory(next)
		next = removeSubsumed(next)
		if clauseListsEqual(next, clauses) {
			return p.WithClauses(next)
		}
		clauses = next
	}
}

func rewriteClauses(clauses []policy.Clause) []policy.Clause {
	out := make([]policy.Clause, len(clauses))
	for i, c := range clauses {
		out[i] = rewriteClause(c)
	}
	return out
}

// rewriteClause applies rule 2 (tautology elimination) and rule 4 (atom
// merging) within a single clause.
func rewriteClause(c policy.Clause) policy.Clause {
	atoms := make([]policy.Atom, 0, len(c.Atoms))
	for _, a := range c.Atoms {
		if isTautology(a) {
			continue
		}
		atoms = append(atoms, a)
	}
	return policy.NewClause(mergeInAtoms(atoms)...)
}

// isTautology reports whether a is Binary(c, EQ, c) per rule 2 — an
// equality comparing a value source to itself.
func isTautology(a policy.Atom) bool {
	return a.Kind == policy.AtomBinary && a.BinOp == policy.OpEQ && a.Left.Equal(a.Right)
}

// mergeInAtoms implements rule 4: when col(x) = literal v and col(x) IN L
// both appear and v ∈ L, the IN is dropped; multiple col(x) IN Lᵢ atoms on
// the same column merge to a single col(x) IN ⋂ Lᵢ, collapsing to an
// equality when the intersection is a singleton.
func mergeInAtoms(atoms []policy.Atom) []policy.Atom {
	type inGroup struct {
		col    string
		lists  [][]policy.LiteralValue
		idxs   []int
	}
	groups := map[string]*inGroup{}
	eqLiterals := map[string]policy.LiteralValue{}

	for _, a := range atoms {
		col, lit, ok := columnEqLiteral(a)
		if ok {
			eqLiterals[col] = lit
		}
	}

	drop := make([]bool, len(atoms))
	for i, a := range atoms {
		col, list, ok := columnInList(a)
		if !ok {
			continue
		}
		if lit, has := eqLiterals[col]; has && literalInList(lit, list) {
			drop[i] = true
			continue
		}
		g, exists := groups[col]
		if !exists {
			g = &inGroup{col: col}
			groups[col] = g
		}
		g.lists = append(g.lists, list)
		g.idxs = append(g.idxs, i)
	}

	out := make([]policy.Atom, 0, len(atoms))
	replaced := map[int]policy.Atom{}
	for _, g := range groups {
		if len(g.lists) < 2 {
			continue
		}
		inter := g.lists[0]
		for _, l := range g.lists[1:] {
			inter = intersectLiterals(inter, l)
		}
		for _, idx := range g.idxs {
			drop[idx] = true
		}
		var merged policy.Atom
		if len(inter) == 1 {
			merged = policy.BinaryAtom(policy.Col(g.col), policy.OpEQ, policy.Lit(inter[0]))
		} else {
			merged = policy.BinaryAtom(policy.Col(g.col), policy.OpIN, policy.Lit(policy.List(inter...)))
		}
		replaced[g.idxs[0]] = merged
	}

	for i, a := range atoms {
		if drop[i] {
			if m, has := replaced[i]; has {
				out = append(out, m)
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

// columnEqLiteral reports (column, literal, true) when a is
// col(x) = lit(v) in either operand order.
func columnEqLiteral(a policy.Atom) (string, policy.LiteralValue, bool) {
	if a.Kind != policy.AtomBinary || a.BinOp != policy.OpEQ {
		return "", policy.LiteralValue{}, false
	}
	if a.Left.Kind == policy.SourceColumn && a.Right.Kind == policy.SourceLiteral {
		return a.Left.Column, a.Right.Literal, true
	}
	if a.Right.Kind == policy.SourceColumn && a.Left.Kind == policy.SourceLiteral {
		return a.Right.Column, a.Left.Literal, true
	}
	return "", policy.LiteralValue{}, false
}

// columnInList reports (column, list, true) when a is col(x) IN [literal
// list].
func columnInList(a policy.Atom) (string, []policy.LiteralValue, bool) {
	if a.Kind != policy.AtomBinary || a.BinOp != policy.OpIN {
		return "", nil, false
	}
	if a.Left.Kind == policy.SourceColumn && a.Right.Kind == policy.SourceLiteral && a.Right.Literal.Kind == policy.LiteralList {
		return a.Left.Column, a.Right.Literal.List, true
	}
	return "", nil, false
}

func literalInList(v policy.LiteralValue, list []policy.LiteralValue) bool {
	for _, l := range list {
		if l.Equal(v) {
			return true
		}
	}
	return false
}

func intersectLiterals(a, b []policy.LiteralValue) []policy.LiteralValue {
	var out []policy.LiteralValue
	for _, v := range a {
		if literalInList(v, b) {
			out = append(out, v)
		}
	}
	return out
}

// dropContradictory implements rule 3: a clause is dropped outright when
// its atoms syntactically prove no row can satisfy it.
func dropContradictory(clauses []policy.Clause) []policy.Clause {
	out := make([]policy.Clause, 0, len(clauses))
	for _, c := range clauses {
		if isContradictory(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isContradictory(c policy.Clause) bool {
	literalsByCol := map[string][]policy.LiteralValue{}
	sessionsByCol := map[string][]string{}
	var inLists []struct {
		col  string
		list []policy.LiteralValue
	}

	for _, a := range c.Atoms {
		if col, lit, ok := columnEqLiteral(a); ok {
			literalsByCol[col] = appendUniqueLiteral(literalsByCol[col], lit)
			continue
		}
		if col, sess, ok := columnEqSession(a); ok {
			sessionsByCol[col] = appendUniqueString(sessionsByCol[col], sess)
			continue
		}
		if col, list, ok := columnInList(a); ok {
			inLists = append(inLists, struct {
				col  string
				list []policy.LiteralValue
			}{col, list})
		}
	}

	for col, lits := range literalsByCol {
		if len(lits) > 1 {
			return true // (a) two distinct literal equalities on the same column
		}
		if len(sessionsByCol[col]) > 0 {
			return true // (c) a literal equality and a session equality on the same column
		}
	}
	for _, sessions := range sessionsByCol {
		if len(sessions) > 1 {
			return true // (b) two distinct session-var equalities on the same column
		}
	}

	byCol := map[string][][]policy.LiteralValue{}
	for _, e := range inLists {
		byCol[e.col] = append(byCol[e.col], e.list)
	}
	for col, lists := range byCol {
		inter := lists[0]
		for _, l := range lists[1:] {
			inter = intersectLiterals(inter, l)
		}
		if len(lists) > 1 && len(inter) == 0 {
			return true // (d) IN lists with empty intersection
		}
		if lit, has := firstLiteral(literalsByCol[col]); has {
			for _, l := range lists {
				if !literalInList(lit, l) {
					return true // (e) equality literal outside an IN list
				}
			}
		}
	}

	return false
}

func firstLiteral(lits []policy.LiteralValue) (policy.LiteralValue, bool) {
	if len(lits) == 0 {
		return policy.LiteralValue{}, false
	}
	return lits[0], true
}

func columnEqSession(a policy.Atom) (string, string, bool) {
	if a.Kind != policy.AtomBinary || a.BinOp != policy.OpEQ {
		return "", "", false
	}
	if a.Left.Kind == policy.SourceColumn && a.Right.Kind == policy.SourceSessionVar {
		return a.Left.Column, a.Right.SessionVar, true
	}
	if a.Right.Kind == policy.SourceColumn && a.Left.Kind == policy.SourceSessionVar {
		return a.Right.Column, a.Left.SessionVar, true
	}
	return "", "", false
}

func appendUniqueLiteral(lits []policy.LiteralValue, v policy.LiteralValue) []policy.LiteralValue {
	if literalInList(v, lits) {
		return lits
	}
	return append(lits, v)
}

func appendUniqueString(ss []string, v string) []string {
	for _, s := range ss {
		if s == v {
			return ss
		}
	}
	return append(ss, v)
}

// removeSubsumed implements rule 5: if atoms(c1) ⊆ atoms(c2) then c1 is
// more permissive and c2 is removed, ties broken deterministically by
// clause index.
func removeSubsumed(clauses []policy.Clause) []policy.Clause {
	keep := make([]bool, len(clauses))
	for i := range clauses {
		keep[i] = true
	}
	for i := range clauses {
		if !keep[i] {
			continue
		}
		for j := range clauses {
			if i == j || !keep[j] {
				continue
			}
			if !clauses[i].Subset(clauses[j]) {
				continue
			}
			if clauses[j].Subset(clauses[i]) && j < i {
				// Equal atom sets; the earlier index wins the tie-break.
				continue
			}
			keep[j] = false
		}
	}
	out := make([]policy.Clause, 0, len(clauses))
	for i, k := range keep {
		if k {
			out = append(out, clauses[i])
		}
	}
	return out
}

func clauseListsEqual(a, b []policy.Clause) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
