// Package sqlgen compiles a normalized policy set plus schema metadata
// into native PostgreSQL row-level-security DDL. Compilation is a pure,
// deterministic function: identical inputs always produce identical
// byte-for-byte output. Determinism is pinned by three
// orders — metadata table order, policy declaration order, and the stable
// atom sort key — with no other source of variation in rendering.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// CompiledPolicy is one CREATE POLICY artifact for a governed table.
type CompiledPolicy struct {
	// Name is the generated policy name: <policy_name>_<table_name>.
	Name string
	// Source is the declaring DSL policy's name.
	Source string
	Type   policy.PolicyType
	// UsingExpr is the body inside USING (...), retained separately so the
	// drift detector can compare it against pg_policies.qual without
	// re-parsing the full statement.
	UsingExpr string
	// SQL is the complete CREATE POLICY statement.
	SQL string
}

// TableArtifacts is the per-table artifact group: the table's identity,
// its ENABLE/FORCE RLS statements, and its CREATE POLICY statements in
// policy declaration order.
type TableArtifacts struct {
	Schema    string
	Name      string
	EnableRLS string
	ForceRLS  string
	Policies  []CompiledPolicy
}

// QualifiedName returns "schema.table".
func (t TableArtifacts) QualifiedName() string { return t.Schema + "." + t.Name }

// Statements returns the table's DDL in emission order: ENABLE, FORCE,
// then each CREATE POLICY.
func (t TableArtifacts) Statements() []string {
	out := []string{t.EnableRLS, t.ForceRLS}
	for _, p := range t.Policies {
		out = append(out, p.SQL)
	}
	return out
}

// CompiledState is the compiler's output: per-table artifact groups in
// metadata table order.
type CompiledState struct {
	Tables []TableArtifacts
}

// Table looks up a table's artifacts by schema-qualified name.
func (s CompiledState) Table(schema, name string) (TableArtifacts, bool) {
	for _, t := range s.Tables {
		if t.Schema == schema && t.Name == name {
			return t, true
		}
	}
	return TableArtifacts{}, false
}

// Statements flattens every table's DDL in emission order.
func (s CompiledState) Statements() []string {
	var out []string
	for _, t := range s.Tables {
		out = append(out, t.Statements()...)
	}
	return out
}

// Compile renders DDL for every table in meta governed by at least one
// policy in ps. Tables iterate in metadata order, policies in declaration
// order; a table no selector matches produces no artifacts.
func Compile(ps policy.PolicySet, meta policy.SchemaMetadata) (CompiledState, error) {
	state := CompiledState{}
	for _, table := range meta.Tables {
		var compiled []CompiledPolicy
		for _, p := range ps.Policies {
			ok, err := p.Selector.Evaluate(table)
			if err != nil {
				return CompiledState{}, &CompilationError{Policy: p.Name, Table: table.Name, Message: err.Error()}
			}
			if !ok {
				continue
			}
			cp, err := compilePolicy(p, table, meta)
			if err != nil {
				return CompiledState{}, err
			}
			compiled = append(compiled, cp)
		}
		if len(compiled) == 0 {
			continue
		}
		state.Tables = append(state.Tables, TableArtifacts{
			Schema:    table.Schema,
			Name:      table.Name,
			EnableRLS: fmt.Sprintf("ALTER TABLE %s.%s ENABLE ROW LEVEL SECURITY;", table.Schema, table.Name),
			ForceRLS:  fmt.Sprintf("ALTER TABLE %s.%s FORCE ROW LEVEL SECURITY;", table.Schema, table.Name),
			Policies:  compiled,
		})
	}
	return state, nil
}

func compilePolicy(p policy.Policy, table policy.TableMetadata, meta policy.SchemaMetadata) (CompiledPolicy, error) {
	using, err := renderClauses(p, table, meta)
	if err != nil {
		return CompiledPolicy{}, err
	}

	name := fmt.Sprintf("%s_%s", p.Name, table.Name)
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s.%s AS %s FOR %s USING (%s);",
		name, table.Schema, table.Name, p.Type, renderCommands(p.Commands), using)

	return CompiledPolicy{
		Name:      name,
		Source:    p.Name,
		Type:      p.Type,
		UsingExpr: using,
		SQL:       b.String(),
	}, nil
}

// renderCommands emits FOR ALL for the full quartet and otherwise the
// commands in declaration order.
func renderCommands(s policy.CommandSet) string {
	if s.IsFullQuartet() {
		return "ALL"
	}
	parts := make([]string, 0, s.Len())
	for _, c := range s.Commands() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ", ")
}

// renderClauses joins the policy's clauses with OR. A clause containing
// more than one atom is parenthesized when it is one disjunct among
// several; a single clause renders bare.
func renderClauses(p policy.Policy, table policy.TableMetadata, meta policy.SchemaMetadata) (string, error) {
	if len(p.Clauses) == 0 {
		return "false", nil
	}
	parts := make([]string, len(p.Clauses))
	for i, c := range p.Clauses {
		rendered, multi, err := renderClause(p, c, table, meta)
		if err != nil {
			return "", err
		}
		if multi && len(p.Clauses) > 1 {
			rendered = "(" + rendered + ")"
		}
		parts[i] = rendered
	}
	return strings.Join(parts, " OR "), nil
}
