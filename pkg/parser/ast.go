// Package parser implements the policy DSL grammar with participle: a
// lexer, a participle grammar over structs tagged with `parser:"..."`
// productions, and a conversion pass from the raw parse tree into the
// pkg/policy domain types. Diagnostics collect rather than
// short-circuit, and the driver recovers at the next policy boundary.
package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// File is a sequence of policy declarations — the DSL's top-level
// production. A single File corresponds to one *.policy source file.
type File struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Policies []*PolicyDecl  `parser:"@@*" json:"policies"`
}

// PolicyDecl matches:
//
//	"POLICY" name type "FOR" commandList "SELECTOR" selector clauseList
type PolicyDecl struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Name     string         `parser:"'POLICY' @Ident" json:"name"`
	Type     string         `parser:"@('PERMISSIVE' | 'RESTRICTIVE')" json:"type"`
	Commands []string       `parser:"'FOR' @('SELECT'|'INSERT'|'UPDATE'|'DELETE') (',' @('SELECT'|'INSERT'|'UPDATE'|'DELETE'))*" json:"commands"`
	Selector *SelectorExpr  `parser:"'SELECTOR' @@" json:"selector"`
	Clauses  []*ClauseExpr  `parser:"'CLAUSE' @@ ('OR' 'CLAUSE' @@)*" json:"clauses"`
}

// --- Selector grammar: Or > And > Not > Atom, parentheses at Atom level ---

// SelectorExpr is the top-level selector production (disjunction).
type SelectorExpr struct {
	Pos   lexer.Position   `parser:"" json:"-"`
	Terms []*SelectorAnd   `parser:"@@ ('OR' @@)*" json:"terms"`
}

// SelectorAnd is a conjunction of negatable selector atoms.
type SelectorAnd struct {
	Pos   lexer.Position   `parser:"" json:"-"`
	Terms []*SelectorNot   `parser:"@@ ('AND' @@)*" json:"terms"`
}

// SelectorNot is an optionally-negated selector atom.
type SelectorNot struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Negated bool           `parser:"@'NOT'?" json:"negated"`
	Atom    *SelectorAtom  `parser:"@@" json:"atom"`
}

// SelectorAtom is one base selector or a parenthesized sub-expression.
type SelectorAtom struct {
	Pos        lexer.Position `parser:"" json:"-"`
	Paren      *SelectorExpr  `parser:"  '(' @@ ')'" json:"paren,omitempty"`
	All        bool           `parser:"| @('all' '(' ')')" json:"all,omitempty"`
	HasColumn  *HasColumnSel  `parser:"| @@" json:"has_column,omitempty"`
	Named      *NamedSel      `parser:"| @@" json:"named,omitempty"`
	InSchema   *InSchemaSel   `parser:"| @@" json:"in_schema,omitempty"`
	Tagged     *TaggedSel     `parser:"| @@" json:"tagged,omitempty"`
}

type HasColumnSel struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Name string         `parser:"'has_column' '(' @String" json:"name"`
	Type string         `parser:"(',' @String)? ')'" json:"type,omitempty"`
}

type NamedSel struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Pattern string         `parser:"'named' '(' @String ')'" json:"pattern"`
}

type InSchemaSel struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Schema string         `parser:"'in_schema' '(' @String ')'" json:"schema"`
}

type TaggedSel struct {
	Pos lexer.Position `parser:"" json:"-"`
	Tag string         `parser:"'tagged' '(' @String ')'" json:"tag"`
}

// --- Clause / atom grammar ---

// ClauseExpr is a conjunction of atoms.
type ClauseExpr struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Atoms []*AtomExpr    `parser:"@@ ('AND' @@)*" json:"atoms"`
}

// AtomExpr is one of: a traversal, a unary null check, or a binary
// comparison. Traversal is tried first because it starts with the unique
// keyword "exists"; unary and binary both start with a ValueSource, so
// the grammar backtracks (MaxLookahead) to decide between them based on
// whether an "IS" token follows.
type AtomExpr struct {
	Pos       lexer.Position `parser:"" json:"-"`
	Traversal *TraversalExpr `parser:"  @@" json:"traversal,omitempty"`
	Unary     *UnaryExpr     `parser:"| @@" json:"unary,omitempty"`
	Binary    *BinaryExpr    `parser:"| @@" json:"binary,omitempty"`
}

// TraversalExpr matches exists(rel(source?, sc, target, tc), { clause }).
type TraversalExpr struct {
	Pos         lexer.Position `parser:"" json:"-"`
	Kw          string         `parser:"'exists' '(' 'rel' '('" json:"-"`
	SourceTable *RelTableRef   `parser:"@@ ','" json:"source_table"`
	SourceCol   string         `parser:"@Ident ','" json:"source_col"`
	TargetTable string         `parser:"@Ident ','" json:"target_table"`
	TargetCol   string         `parser:"@Ident ')' ','" json:"target_col"`
	Inner       *ClauseExpr    `parser:"'{' @@ '}' ')'" json:"inner"`
}

// RelTableRef is either a declared table identifier or the reserved
// wildcard placeholder "_", valid only in this position.
type RelTableRef struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Wildcard bool           `parser:"  @Wildcard" json:"wildcard,omitempty"`
	Table    string         `parser:"| @Ident" json:"table,omitempty"`
}

// UnaryExpr matches value_source "IS" ["NOT"] "NULL".
type UnaryExpr struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Source *ValueSource   `parser:"@@ 'IS'" json:"source"`
	Not    bool           `parser:"@'NOT'?" json:"not,omitempty"`
	Null   string         `parser:"'NULL'" json:"-"`
}

// BinaryExpr matches value_source op value_source.
type BinaryExpr struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Left  *ValueSource   `parser:"@@" json:"left"`
	Op    *BinOpExpr     `parser:"@@" json:"op"`
	Right *ValueSource   `parser:"@@" json:"right"`
}

// BinOpExpr matches one binary operator spelling. NOT IN and NOT LIKE are
// two-token keyword pairs, tried before the bare operand keywords so the
// "NOT" is consumed as part of the operator rather than left dangling.
type BinOpExpr struct {
	Pos      lexer.Position `parser:"" json:"-"`
	NotIn    bool           `parser:"  @('NOT' 'IN')" json:"not_in,omitempty"`
	NotLike  bool           `parser:"| @('NOT' 'LIKE')" json:"not_like,omitempty"`
	In       bool           `parser:"| @'IN'" json:"in,omitempty"`
	Like     bool           `parser:"| @'LIKE'" json:"like,omitempty"`
	Eq       bool           `parser:"| @OpEq" json:"eq,omitempty"`
	Ne       bool           `parser:"| @OpNe" json:"ne,omitempty"`
	Le       bool           `parser:"| @OpLe" json:"le,omitempty"`
	Ge       bool           `parser:"| @OpGe" json:"ge,omitempty"`
	Lt       bool           `parser:"| @OpLt" json:"lt,omitempty"`
	Gt       bool           `parser:"| @OpGt" json:"gt,omitempty"`
}

// --- Value sources and literals ---

// ValueSource matches col(name) | session('key') | lit(literal) |
// fn(name, [args]).
type ValueSource struct {
	Pos     lexer.Position `parser:"" json:"-"`
	Column  string         `parser:"  'col' '(' @Ident ')'" json:"column,omitempty"`
	Session string         `parser:"| 'session' '(' @String ')'" json:"session,omitempty"`
	Literal *LiteralExpr   `parser:"| 'lit' '(' @@ ')'" json:"literal,omitempty"`
	Fn      *FnCallExpr    `parser:"| @@" json:"fn,omitempty"`
}

type FnCallExpr struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Name string         `parser:"'fn' '(' @Ident ',' '['" json:"name"`
	Args []*ValueSource `parser:"(@@ (',' @@)*)? ']' ')'" json:"args,omitempty"`
}

// LiteralExpr matches a string, integer, boolean, null, or bracketed list.
type LiteralExpr struct {
	Pos  lexer.Position `parser:"" json:"-"`
	Str  *string        `parser:"  @String" json:"str,omitempty"`
	Int  *string        `parser:"| @Int" json:"int,omitempty"`
	Bool *string        `parser:"| @('true' | 'false')" json:"bool,omitempty"`
	Null bool            `parser:"| @'null'" json:"null,omitempty"`
	List []*LiteralExpr `parser:"| '[' (@@ (',' @@)*)? ']'" json:"list,omitempty"`
}
