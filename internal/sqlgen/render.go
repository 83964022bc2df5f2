package sqlgen

import (
	"fmt"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// scope is the column-qualification context an atom renders under: the
// outer clause renders columns bare, a traversal's inner clause qualifies
// them to the traversal's target table.
type scope struct {
	schema    string
	table     string
	qualified bool
}

func (s scope) column(name string) string {
	if s.qualified {
		return fmt.Sprintf("%s.%s.%s", s.schema, s.table, name)
	}
	return name
}

func renderClause(p policy.Policy, c policy.Clause, table policy.TableMetadata, meta policy.SchemaMetadata) (string, bool, error) {
	if c.IsEmpty() {
		return "true", false, nil
	}
	sc := scope{schema: table.Schema, table: table.Name}
	atoms := c.Sorted()
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		rendered, err := renderAtom(p, a, sc, table, meta)
		if err != nil {
			return "", false, err
		}
		parts[i] = rendered
	}
	return strings.Join(parts, " AND "), len(atoms) > 1, nil
}

func renderAtom(p policy.Policy, a policy.Atom, sc scope, table policy.TableMetadata, meta policy.SchemaMetadata) (string, error) {
	switch a.Kind {
	case policy.AtomBinary:
		return renderBinary(p, a, sc, table, meta)
	case policy.AtomUnary:
		src, err := renderValueSource(p, a.Source, sc, table, meta)
		if err != nil {
			return "", err
		}
		if a.UnOp == policy.OpIsNull {
			return src + " IS NULL", nil
		}
		return src + " IS NOT NULL", nil
	case policy.AtomTraversal:
		return renderTraversal(p, a, sc, table, meta)
	default:
		return "", &CompilationError{Policy: p.Name, Table: table.Name, Message: fmt.Sprintf("unknown atom kind %d", a.Kind)}
	}
}

func renderBinary(p policy.Policy, a policy.Atom, sc scope, table policy.TableMetadata, meta policy.SchemaMetadata) (string, error) {
	left, err := renderValueSource(p, a.Left, sc, table, meta)
	if err != nil {
		return "", err
	}

	switch a.BinOp {
	case policy.OpIN, policy.OpNotIN:
		items, err := renderLiteralList(p, a.Right, table)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			// IN () is invalid SQL; an empty list denotes falsity (truth
			// for NOT IN), same as the SMT encoding.
			if a.BinOp == policy.OpIN {
				return "false", nil
			}
			return "true", nil
		}
		op := "IN"
		if a.BinOp == policy.OpNotIN {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", left, op, strings.Join(items, ", ")), nil
	default:
		right, err := renderValueSource(p, a.Right, sc, table, meta)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, sqlOperator(a.BinOp), right), nil
	}
}

func sqlOperator(op policy.BinaryOp) string {
	switch op {
	case policy.OpEQ:
		return "="
	case policy.OpNEQ:
		return "<>"
	case policy.OpLT:
		return "<"
	case policy.OpGT:
		return ">"
	case policy.OpLTE:
		return "<="
	case policy.OpGTE:
		return ">="
	case policy.OpLIKE:
		return "LIKE"
	case policy.OpNotLIKE:
		return "NOT LIKE"
	default:
		return "="
	}
}

func renderLiteralList(p policy.Policy, v policy.ValueSource, table policy.TableMetadata) ([]string, error) {
	if v.Kind != policy.SourceLiteral || v.Literal.Kind != policy.LiteralList {
		return nil, &CompilationError{Policy: p.Name, Table: table.Name, Message: "IN/NOT_IN requires a literal list operand"}
	}
	items := make([]string, len(v.Literal.List))
	for i, lit := range v.Literal.List {
		items[i] = renderLiteral(lit)
	}
	return items, nil
}

func renderValueSource(p policy.Policy, v policy.ValueSource, sc scope, table policy.TableMetadata, meta policy.SchemaMetadata) (string, error) {
	switch v.Kind {
	case policy.SourceColumn:
		return sc.column(v.Column), nil
	case policy.SourceSessionVar:
		return fmt.Sprintf("current_setting('%s')", escapeString(v.SessionVar)), nil
	case policy.SourceLiteral:
		return renderLiteral(v.Literal), nil
	case policy.SourceFnCall:
		args := make([]string, len(v.FnArgs))
		for i, arg := range v.FnArgs {
			rendered, err := renderValueSource(p, arg, sc, table, meta)
			if err != nil {
				return "", err
			}
			args[i] = rendered
		}
		return fmt.Sprintf("%s(%s)", v.FnName, strings.Join(args, ", ")), nil
	default:
		return "", &CompilationError{Policy: p.Name, Table: table.Name, Message: fmt.Sprintf("unknown value source kind %d", v.Kind)}
	}
}

func renderLiteral(l policy.LiteralValue) string {
	switch l.Kind {
	case policy.LiteralString:
		return "'" + escapeString(l.Str) + "'"
	case policy.LiteralInt:
		return fmt.Sprintf("%d", l.Int)
	case policy.LiteralBool:
		if l.Bool {
			return "true"
		}
		return "false"
	case policy.LiteralNull:
		return "NULL"
	case policy.LiteralList:
		parts := make([]string, len(l.List))
		for i, v := range l.List {
			parts[i] = renderLiteral(v)
		}
		return strings.Join(parts, ", ")
	default:
		return "NULL"
	}
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// renderTraversal emits the EXISTS subquery form of a traversal: the
// join equality first (target column = source column, both qualified),
// then the inner conjuncts qualified to the target table. A wildcard
// source table resolves to the containing policy's matched table.
func renderTraversal(p policy.Policy, a policy.Atom, sc scope, table policy.TableMetadata, meta policy.SchemaMetadata) (string, error) {
	rel := a.Rel

	srcName := rel.SourceTable
	if srcName == "" {
		srcName = table.Name
	}
	src, err := lookupTable(p, srcName, table, meta)
	if err != nil {
		return "", err
	}
	target, err := lookupTable(p, rel.TargetTable, table, meta)
	if err != nil {
		return "", err
	}

	targetScope := scope{schema: target.Schema, table: target.Name, qualified: true}
	join := fmt.Sprintf("%s.%s.%s = %s.%s.%s",
		target.Schema, target.Name, rel.TargetCol,
		src.Schema, src.Name, rel.SourceCol)

	conjuncts := []string{join}
	for _, inner := range a.Inner.Sorted() {
		rendered, err := renderAtom(p, inner, targetScope, table, meta)
		if err != nil {
			return "", err
		}
		conjuncts = append(conjuncts, rendered)
	}

	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s.%s WHERE %s)",
		target.Schema, target.Name, strings.Join(conjuncts, " AND ")), nil
}

// lookupTable resolves a table name from a relationship against schema
// metadata. The policy's matched table is checked first so a self-join
// resolves without a scan.
func lookupTable(p policy.Policy, name string, matched policy.TableMetadata, meta policy.SchemaMetadata) (policy.TableMetadata, error) {
	if name == matched.Name {
		return matched, nil
	}
	for _, t := range meta.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return policy.TableMetadata{}, &CompilationError{
		Policy:  p.Name,
		Table:   matched.Name,
		Message: fmt.Sprintf("relationship references table %s absent from schema metadata", name),
	}
}
