// Package drift compares the compiler's expected artifact set against the
// introspection adapter's observed state and reports structured
// differences. The detector never parses observed SQL expressions back
// into the DSL; policy ownership is decided purely by the compiler's
// naming convention, and expression bodies compare as whitespace-
// canonicalized strings.
package drift

import (
	"fmt"
	"strings"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// Kind discriminates the drift taxonomy.
type Kind int

const (
	MissingPolicy Kind = iota
	ExtraPolicy
	ModifiedPolicy
	RlsDisabled
	RlsNotForced
)

func (k Kind) String() string {
	switch k {
	case MissingPolicy:
		return "missing_policy"
	case ExtraPolicy:
		return "extra_policy"
	case ModifiedPolicy:
		return "modified_policy"
	case RlsDisabled:
		return "rls_disabled"
	case RlsNotForced:
		return "rls_not_forced"
	default:
		return "unknown"
	}
}

// Severity ranks a drift item's operational impact.
type Severity int

const (
	Warning Severity = iota
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	default:
		return "WARNING"
	}
}

// Item is one detected difference between expected and observed state.
type Item struct {
	Kind     Kind
	Severity Severity
	Schema   string
	Table    string

	// PolicyName is set for the policy-level kinds.
	PolicyName string

	// ExpectedExpr and ActualExpr carry the differing bodies for
	// ModifiedPolicy, after whitespace canonicalization.
	ExpectedExpr string
	ActualExpr   string
}

// QualifiedTable returns "schema.table".
func (i Item) QualifiedTable() string { return i.Schema + "." + i.Table }

// Description renders a human-readable account of the item.
func (i Item) Description() string {
	switch i.Kind {
	case MissingPolicy:
		return fmt.Sprintf("expected policy %s is absent from %s", i.PolicyName, i.QualifiedTable())
	case ExtraPolicy:
		return fmt.Sprintf("unmanaged policy %s present on %s", i.PolicyName, i.QualifiedTable())
	case ModifiedPolicy:
		return fmt.Sprintf("policy %s on %s differs from expected definition", i.PolicyName, i.QualifiedTable())
	case RlsDisabled:
		return fmt.Sprintf("row level security is disabled on %s", i.QualifiedTable())
	case RlsNotForced:
		return fmt.Sprintf("row level security is enabled but not forced on %s", i.QualifiedTable())
	default:
		return fmt.Sprintf("unknown drift on %s", i.QualifiedTable())
	}
}

// Report is the ordered drift item list: governed tables in compiled
// order, flag items before policy items within a table.
type Report struct {
	Items []Item
}

// HasDrift reports whether any item was detected.
func (r Report) HasDrift() bool { return len(r.Items) > 0 }

// Detect diffs the expected compiled state against observed introspection
// results, one governed table at a time in compiled order.
func Detect(expected sqlgen.CompiledState, observed policy.ObservedState) Report {
	var report Report
	for _, table := range expected.Tables {
		report.Items = append(report.Items, detectTable(table, observed)...)
	}
	return report
}

func detectTable(expected sqlgen.TableArtifacts, observed policy.ObservedState) []Item {
	var items []Item

	obs, found := observed.Table(expected.Schema, expected.Name)
	if !found || !obs.RLSEnabled {
		items = append(items, Item{Kind: RlsDisabled, Severity: Critical, Schema: expected.Schema, Table: expected.Name})
	} else if !obs.RLSForced {
		items = append(items, Item{Kind: RlsNotForced, Severity: High, Schema: expected.Schema, Table: expected.Name})
	}

	observedByName := map[string]policy.ObservedPolicy{}
	var observedOrder []string
	for _, p := range obs.Policies {
		if _, seen := observedByName[p.Name]; !seen {
			observedByName[p.Name] = p
			observedOrder = append(observedOrder, p.Name)
		}
	}

	managed := map[string]bool{}
	for _, exp := range expected.Policies {
		managed[exp.Name] = true
		actual, ok := observedByName[exp.Name]
		if !ok {
			items = append(items, Item{Kind: MissingPolicy, Severity: Critical,
				Schema: expected.Schema, Table: expected.Name, PolicyName: exp.Name})
			continue
		}
		want := canonicalExpr(exp.UsingExpr)
		got := canonicalExpr(actual.UsingExpr)
		if want != got {
			items = append(items, Item{Kind: ModifiedPolicy, Severity: Critical,
				Schema: expected.Schema, Table: expected.Name, PolicyName: exp.Name,
				ExpectedExpr: want, ActualExpr: got})
		}
	}

	for _, name := range observedOrder {
		if !managed[name] {
			items = append(items, Item{Kind: ExtraPolicy, Severity: Warning,
				Schema: expected.Schema, Table: expected.Name, PolicyName: name})
		}
	}

	return items
}

// canonicalExpr normalizes an expression body before comparison:
// whitespace collapses to single spaces, the implicit ::text casts the
// server's decompiler inserts are dropped, and redundant outer
// parentheses are stripped. Any remaining byte difference is reported as
// modification.
func canonicalExpr(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "::text", "")
	s = strings.ReplaceAll(s, "( ", "(")
	s = strings.ReplaceAll(s, " )", ")")
	for wrappedInParens(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// wrappedInParens reports whether s is one balanced parenthesized group,
// so "(a) AND (b)" is never mistaken for a wrapped expression.
func wrappedInParens(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
