// Package policy defines the algebraic data types that flow through the
// rest of the pipeline: value sources, operators, atoms, clauses, policies,
// selectors, policy sets, and schema metadata. Every type here is an
// immutable value with structural equality; nothing in this package mutates
// a value after construction.
package policy

import "fmt"

// ValueSourceKind discriminates the variant held by a ValueSource.
type ValueSourceKind int

const (
	SourceColumn ValueSourceKind = iota
	SourceSessionVar
	SourceLiteral
	SourceFnCall
)

func (k ValueSourceKind) String() string {
	switch k {
	case SourceColumn:
		return "column"
	case SourceSessionVar:
		return "session_var"
	case SourceLiteral:
		return "literal"
	case SourceFnCall:
		return "fn_call"
	default:
		return "unknown"
	}
}

// ValueSource is a scalar producer inside an atom. Exactly one field is
// populated according to Kind.
type ValueSource struct {
	Kind ValueSourceKind

	Column     string // SourceColumn
	SessionVar string // SourceSessionVar
	Literal    LiteralValue

	FnName string        // SourceFnCall
	FnArgs []ValueSource // SourceFnCall
}

// Col constructs a column value source.
func Col(name string) ValueSource { return ValueSource{Kind: SourceColumn, Column: name} }

// Session constructs a session-variable value source.
func Session(key string) ValueSource { return ValueSource{Kind: SourceSessionVar, SessionVar: key} }

// Lit constructs a literal value source.
func Lit(v LiteralValue) ValueSource { return ValueSource{Kind: SourceLiteral, Literal: v} }

// Fn constructs a function-call value source.
func Fn(name string, args ...ValueSource) ValueSource {
	return ValueSource{Kind: SourceFnCall, FnName: name, FnArgs: args}
}

// Equal reports structural equality between two value sources.
func (v ValueSource) Equal(o ValueSource) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case SourceColumn:
		return v.Column == o.Column
	case SourceSessionVar:
		return v.SessionVar == o.SessionVar
	case SourceLiteral:
		return v.Literal.Equal(o.Literal)
	case SourceFnCall:
		if v.FnName != o.FnName || len(v.FnArgs) != len(o.FnArgs) {
			return false
		}
		for i := range v.FnArgs {
			if !v.FnArgs[i].Equal(o.FnArgs[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the DSL spelling of the value source.
func (v ValueSource) String() string {
	switch v.Kind {
	case SourceColumn:
		return fmt.Sprintf("col(%s)", v.Column)
	case SourceSessionVar:
		return fmt.Sprintf("session(%q)", v.SessionVar)
	case SourceLiteral:
		return fmt.Sprintf("lit(%s)", v.Literal.String())
	case SourceFnCall:
		args := make([]string, len(v.FnArgs))
		for i, a := range v.FnArgs {
			args[i] = a.String()
		}
		return fmt.Sprintf("fn(%s, %v)", v.FnName, args)
	default:
		return "<invalid value source>"
	}
}

// LiteralKind discriminates the variant held by a LiteralValue.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInt
	LiteralBool
	LiteralNull
	LiteralList
)

// LiteralValue is a constant appearing in the DSL: a string, a signed
// 64-bit integer, a boolean, null, or a list of literal values.
type LiteralValue struct {
	Kind LiteralKind

	Str  string
	Int  int64
	Bool bool
	List []LiteralValue
}

func Str(s string) LiteralValue  { return LiteralValue{Kind: LiteralString, Str: s} }
func Int(n int64) LiteralValue   { return LiteralValue{Kind: LiteralInt, Int: n} }
func Bool(b bool) LiteralValue   { return LiteralValue{Kind: LiteralBool, Bool: b} }
func Null() LiteralValue         { return LiteralValue{Kind: LiteralNull} }
func List(vs ...LiteralValue) LiteralValue {
	return LiteralValue{Kind: LiteralList, List: vs}
}

// Equal reports structural equality, including the syntactic-representation
// rule the SMT encoder relies on: two literals with different syntax are
// never conflated even if a caller considers them "equal" under a looser
// semantic notion (e.g. no cross-kind numeric coercion).
func (l LiteralValue) Equal(o LiteralValue) bool {
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case LiteralString:
		return l.Str == o.Str
	case LiteralInt:
		return l.Int == o.Int
	case LiteralBool:
		return l.Bool == o.Bool
	case LiteralNull:
		return true
	case LiteralList:
		if len(l.List) != len(o.List) {
			return false
		}
		for i := range l.List {
			if !l.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the DSL spelling used both for pretty-printing and as the
// syntactic key the SMT encoder's literal-distinctness rule keys on.
func (l LiteralValue) String() string {
	switch l.Kind {
	case LiteralString:
		return fmt.Sprintf("%q", l.Str)
	case LiteralInt:
		return fmt.Sprintf("%d", l.Int)
	case LiteralBool:
		if l.Bool {
			return "true"
		}
		return "false"
	case LiteralNull:
		return "null"
	case LiteralList:
		parts := make([]string, len(l.List))
		for i, v := range l.List {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%v", parts)
	default:
		return "<invalid literal>"
	}
}
