package policy

import (
	"fmt"
	"sort"
	"strings"
)

// BinaryOp enumerates binary comparison operators.
type BinaryOp int

const (
	OpEQ BinaryOp = iota
	OpNEQ
	OpLT
	OpGT
	OpLTE
	OpGTE
	OpIN
	OpNotIN
	OpLIKE
	OpNotLIKE
)

func (op BinaryOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNEQ:
		return "!="
	case OpLT:
		return "<"
	case OpGT:
		return ">"
	case OpLTE:
		return "<="
	case OpGTE:
		return ">="
	case OpIN:
		return "IN"
	case OpNotIN:
		return "NOT_IN"
	case OpLIKE:
		return "LIKE"
	case OpNotLIKE:
		return "NOT_LIKE"
	default:
		return "?"
	}
}

// UnaryOp enumerates unary null-check operators.
type UnaryOp int

const (
	OpIsNull UnaryOp = iota
	OpIsNotNull
)

func (op UnaryOp) String() string {
	if op == OpIsNull {
		return "IS_NULL"
	}
	return "IS_NOT_NULL"
}

// Relationship is the four-tuple rel(source_table?, source_col, target_table,
// target_col) that a traversal atom follows. SourceTable is empty when the
// DSL used the wildcard placeholder; callers resolve it to the enclosing
// policy's matched table at compile/encode time.
type Relationship struct {
	SourceTable string
	SourceCol   string
	TargetTable string
	TargetCol   string
}

func (r Relationship) Equal(o Relationship) bool { return r == o }

func (r Relationship) String() string {
	src := r.SourceTable
	if src == "" {
		src = "_"
	}
	return fmt.Sprintf("rel(%s, %s, %s, %s)", src, r.SourceCol, r.TargetTable, r.TargetCol)
}

// AtomKind discriminates the variant held by an Atom.
type AtomKind int

const (
	AtomBinary AtomKind = iota
	AtomUnary
	AtomTraversal
)

// Atom is an irreducible boolean predicate: a binary comparison, a unary
// null check, or an existential traversal over a declared relationship.
type Atom struct {
	Kind AtomKind

	Left  ValueSource // AtomBinary
	BinOp BinaryOp    // AtomBinary
	Right ValueSource // AtomBinary

	Source ValueSource // AtomUnary
	UnOp   UnaryOp     // AtomUnary

	Rel   Relationship // AtomTraversal
	Inner Clause       // AtomTraversal
}

func BinaryAtom(left ValueSource, op BinaryOp, right ValueSource) Atom {
	return Atom{Kind: AtomBinary, Left: left, BinOp: op, Right: right}
}

func UnaryAtom(source ValueSource, op UnaryOp) Atom {
	return Atom{Kind: AtomUnary, Source: source, UnOp: op}
}

func TraversalAtom(rel Relationship, inner Clause) Atom {
	return Atom{Kind: AtomTraversal, Rel: rel, Inner: inner}
}

// Equal reports structural equality between two atoms.
func (a Atom) Equal(o Atom) bool {
	if a.Kind != o.Kind {
		return false
	}
	switch a.Kind {
	case AtomBinary:
		return a.BinOp == o.BinOp && a.Left.Equal(o.Left) && a.Right.Equal(o.Right)
	case AtomUnary:
		return a.UnOp == o.UnOp && a.Source.Equal(o.Source)
	case AtomTraversal:
		return a.Rel.Equal(o.Rel) && a.Inner.Equal(o.Inner)
	default:
		return false
	}
}

// SortKey returns the stable rendering key the compiler uses to order
// atoms within a clause: binary before unary before traversal, ties broken
// by canonical string.
func (a Atom) SortKey() string {
	rank := map[AtomKind]int{AtomBinary: 0, AtomUnary: 1, AtomTraversal: 2}[a.Kind]
	return fmt.Sprintf("%d|%s", rank, a.String())
}

func (a Atom) String() string {
	switch a.Kind {
	case AtomBinary:
		return fmt.Sprintf("%s %s %s", a.Left, a.BinOp, a.Right)
	case AtomUnary:
		return fmt.Sprintf("%s %s", a.Source, a.UnOp)
	case AtomTraversal:
		return fmt.Sprintf("exists(%s, {%s})", a.Rel, a.Inner)
	default:
		return "<invalid atom>"
	}
}

// Clause is an unordered set of atoms, conjunctively interpreted. The empty
// clause denotes truth. Clauses compare by structural equality on their
// atom set, independent of construction order.
type Clause struct {
	Atoms []Atom
}

// NewClause builds a clause, deduplicating atoms per the clause's set
// semantics.
func NewClause(atoms ...Atom) Clause {
	deduped := make([]Atom, 0, len(atoms))
	for _, a := range atoms {
		found := false
		for _, existing := range deduped {
			if existing.Equal(a) {
				found = true
				break
			}
		}
		if !found {
			deduped = append(deduped, a)
		}
	}
	return Clause{Atoms: deduped}
}

// IsEmpty reports whether the clause denotes truth.
func (c Clause) IsEmpty() bool { return len(c.Atoms) == 0 }

// Contains reports whether the clause's atom set contains a.
func (c Clause) Contains(a Atom) bool {
	for _, existing := range c.Atoms {
		if existing.Equal(a) {
			return true
		}
	}
	return false
}

// Subset reports whether every atom in c also appears in o — the relation
// the normalizer's clause-subsumption rule (rule 5) tests.
func (c Clause) Subset(o Clause) bool {
	for _, a := range c.Atoms {
		if !o.Contains(a) {
			return false
		}
	}
	return true
}

// Equal reports structural (set) equality between two clauses.
func (c Clause) Equal(o Clause) bool {
	return c.Subset(o) && o.Subset(c)
}

// Sorted returns the clause's atoms ordered by the compiler's stable sort
// key, without mutating the receiver.
func (c Clause) Sorted() []Atom {
	out := make([]Atom, len(c.Atoms))
	copy(out, c.Atoms)
	sort.Slice(out, func(i, j int) bool { return out[i].SortKey() < out[j].SortKey() })
	return out
}

func (c Clause) String() string {
	if c.IsEmpty() {
		return "true"
	}
	parts := make([]string, len(c.Atoms))
	for i, a := range c.Sorted() {
		parts[i] = a.String()
	}
	return strings.Join(parts, " AND ")
}
