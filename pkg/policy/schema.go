package policy

// ColumnMetadata describes one column of an introspected or declared table.
type ColumnMetadata struct {
	Name string
	Type string
}

// TableMetadata is a governed or candidate table: its qualified name,
// schema, and column set. Tags is metadata-specific (the Tagged selector)
// and is optional — nil or empty when the introspection adapter does not
// carry a tagging convention.
type TableMetadata struct {
	Name    string
	Schema  string
	Columns []ColumnMetadata
	Tags    []string
}

// QualifiedName returns "schema.table".
func (t TableMetadata) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// Column looks up a column by name.
func (t TableMetadata) Column(name string) (ColumnMetadata, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMetadata{}, false
}

// SchemaMetadata is the set of tables the introspection adapter observed
// or the operator declared, consumed by the compiler, selector evaluator,
// and analyzer. Table order is producer-defined and is the source of the
// compiler's deterministic table-iteration order.
type SchemaMetadata struct {
	Tables []TableMetadata
}

// Table looks up a table by schema-qualified name.
func (s SchemaMetadata) Table(schema, name string) (TableMetadata, bool) {
	for _, t := range s.Tables {
		if t.Schema == schema && t.Name == name {
			return t, true
		}
	}
	return TableMetadata{}, false
}

// Matching returns every table for which the selector evaluates true, in
// schema table order.
func (s SchemaMetadata) Matching(sel Selector) ([]TableMetadata, error) {
	var out []TableMetadata
	for _, t := range s.Tables {
		ok, err := sel.Evaluate(t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// ObservedPolicy is one row of the introspected policy catalog for a
// governed table: (name, type, command, using_expr?, check_expr?).
type ObservedPolicy struct {
	Name       string
	Type       PolicyType
	Command    Command
	UsingExpr  string
	CheckExpr  string
	HasUsing   bool
	HasCheck   bool
}

// ObservedTable is the introspected state of one table: its RLS flags and
// observed policy catalog rows.
type ObservedTable struct {
	Schema     string
	Name       string
	RLSEnabled bool
	RLSForced  bool
	Policies   []ObservedPolicy
}

func (t ObservedTable) QualifiedName() string { return t.Schema + "." + t.Name }

// ObservedState is, per governed table, the RLS flags and policy catalog
// the introspection adapter produced.
type ObservedState struct {
	Tables []ObservedTable
}

// Table looks up an observed table by schema-qualified name.
func (s ObservedState) Table(schema, name string) (ObservedTable, bool) {
	for _, t := range s.Tables {
		if t.Schema == schema && t.Name == name {
			return t, true
		}
	}
	return ObservedTable{}, false
}
