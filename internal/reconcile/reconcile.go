// Package reconcile maps drift items to the remediation DDL that brings
// observed state back to expected, assuming execution in a single
// transaction. Pure string production; nothing here touches a database.
package reconcile

import (
	"fmt"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/drift"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
)

// Statements maps each drift item to its remediation DDL, in report
// order. ExtraPolicy items produce nothing: unmanaged policies are
// reported, never auto-dropped.
func Statements(report drift.Report, expected sqlgen.CompiledState) []string {
	var out []string
	for _, item := range report.Items {
		out = append(out, remediate(item, expected)...)
	}
	return out
}

func remediate(item drift.Item, expected sqlgen.CompiledState) []string {
	switch item.Kind {
	case drift.MissingPolicy:
		if sql, ok := expectedPolicySQL(expected, item); ok {
			return []string{sql}
		}
		return nil
	case drift.ModifiedPolicy:
		sql, ok := expectedPolicySQL(expected, item)
		if !ok {
			return nil
		}
		drop := fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s.%s;", item.PolicyName, item.Schema, item.Table)
		return []string{drop, sql}
	case drift.RlsDisabled:
		return []string{fmt.Sprintf("ALTER TABLE %s.%s ENABLE ROW LEVEL SECURITY;", item.Schema, item.Table)}
	case drift.RlsNotForced:
		return []string{fmt.Sprintf("ALTER TABLE %s.%s FORCE ROW LEVEL SECURITY;", item.Schema, item.Table)}
	default: // ExtraPolicy
		return nil
	}
}

func expectedPolicySQL(expected sqlgen.CompiledState, item drift.Item) (string, bool) {
	table, ok := expected.Table(item.Schema, item.Table)
	if !ok {
		return "", false
	}
	for _, p := range table.Policies {
		if p.Name == item.PolicyName {
			return p.SQL, true
		}
	}
	return "", false
}
