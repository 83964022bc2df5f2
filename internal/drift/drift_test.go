package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

func fixtureState(t *testing.T) sqlgen.CompiledState {
	t.Helper()

	tenant := []policy.ColumnMetadata{
		{Name: "id", Type: "uuid"},
		{Name: "tenant_id", Type: "uuid"},
		{Name: "is_deleted", Type: "boolean"},
	}
	project := []policy.ColumnMetadata{
		{Name: "id", Type: "uuid"},
		{Name: "project_id", Type: "uuid"},
	}
	meta := policy.SchemaMetadata{Tables: []policy.TableMetadata{
		{Name: "users", Schema: "public", Columns: tenant},
		{Name: "projects", Schema: "public", Columns: tenant},
		{Name: "tasks", Schema: "public", Columns: project},
	}}

	ps := policy.PolicySet{Policies: []policy.Policy{
		{
			Name:     "tenant_isolation",
			Type:     policy.Permissive,
			Commands: policy.NewCommandSet(policy.CmdSelect, policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete),
			Selector: policy.HasColumn("tenant_id", ""),
			Clauses: []policy.Clause{policy.NewClause(
				policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")),
			)},
		},
		{
			Name:     "tenant_isolation_via_project",
			Type:     policy.Permissive,
			Commands: policy.NewCommandSet(policy.CmdSelect, policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete),
			Selector: policy.Named("tasks"),
			Clauses: []policy.Clause{policy.NewClause(
				policy.TraversalAtom(
					policy.Relationship{SourceCol: "project_id", TargetTable: "projects", TargetCol: "id"},
					policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id"))),
				),
			)},
		},
	}}

	state, err := sqlgen.Compile(ps, meta)
	require.NoError(t, err)
	return state
}

// cleanObserved builds the observed state a faithful apply of expected
// would produce.
func cleanObserved(expected sqlgen.CompiledState) policy.ObservedState {
	var obs policy.ObservedState
	for _, table := range expected.Tables {
		ot := policy.ObservedTable{
			Schema:     table.Schema,
			Name:       table.Name,
			RLSEnabled: true,
			RLSForced:  true,
		}
		for _, p := range table.Policies {
			ot.Policies = append(ot.Policies, policy.ObservedPolicy{
				Name:      p.Name,
				Type:      p.Type,
				Command:   policy.CmdSelect,
				UsingExpr: p.UsingExpr,
				HasUsing:  true,
			})
		}
		obs.Tables = append(obs.Tables, ot)
	}
	return obs
}

func TestDetect_CleanStateHasNoDrift(t *testing.T) {
	expected := fixtureState(t)
	report := Detect(expected, cleanObserved(expected))
	assert.False(t, report.HasDrift())
}

// TestDetect_DisabledRlsAndUnmanagedPolicy covers the end-to-end drift
// scenario: RLS switched off on projects and a manual policy added on
// users.
func TestDetect_DisabledRlsAndUnmanagedPolicy(t *testing.T) {
	expected := fixtureState(t)
	observed := cleanObserved(expected)

	for i := range observed.Tables {
		switch observed.Tables[i].Name {
		case "projects":
			observed.Tables[i].RLSEnabled = false
		case "users":
			observed.Tables[i].Policies = append(observed.Tables[i].Policies, policy.ObservedPolicy{
				Name:      "manual_override",
				Type:      policy.Permissive,
				Command:   policy.CmdSelect,
				UsingExpr: "true",
				HasUsing:  true,
			})
		}
	}

	report := Detect(expected, observed)
	require.Len(t, report.Items, 2)

	// users precedes projects in compiled table order.
	extra := report.Items[0]
	assert.Equal(t, ExtraPolicy, extra.Kind)
	assert.Equal(t, Warning, extra.Severity)
	assert.Equal(t, "users", extra.Table)
	assert.Equal(t, "manual_override", extra.PolicyName)

	disabled := report.Items[1]
	assert.Equal(t, RlsDisabled, disabled.Kind)
	assert.Equal(t, Critical, disabled.Severity)
	assert.Equal(t, "projects", disabled.Table)
}

func TestDetect_MissingPolicyIsCritical(t *testing.T) {
	expected := fixtureState(t)
	observed := cleanObserved(expected)

	for i := range observed.Tables {
		if observed.Tables[i].Name == "tasks" {
			observed.Tables[i].Policies = nil
		}
	}

	report := Detect(expected, observed)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, MissingPolicy, item.Kind)
	assert.Equal(t, Critical, item.Severity)
	assert.Equal(t, "tenant_isolation_via_project_tasks", item.PolicyName)
}

func TestDetect_ModifiedPolicyComparesAfterWhitespaceCanonicalization(t *testing.T) {
	expected := fixtureState(t)
	observed := cleanObserved(expected)

	// Reformatting alone is not drift.
	for i := range observed.Tables {
		if observed.Tables[i].Name == "users" {
			observed.Tables[i].Policies[0].UsingExpr = "tenant_id   =\n  current_setting('app.tenant_id')"
		}
	}
	assert.False(t, Detect(expected, observed).HasDrift())

	// A semantic rewrite is.
	for i := range observed.Tables {
		if observed.Tables[i].Name == "users" {
			observed.Tables[i].Policies[0].UsingExpr = "tenant_id = current_setting('app.other_id')"
		}
	}
	report := Detect(expected, observed)
	require.Len(t, report.Items, 1)
	item := report.Items[0]
	assert.Equal(t, ModifiedPolicy, item.Kind)
	assert.Equal(t, Critical, item.Severity)
	assert.Equal(t, "tenant_id = current_setting('app.tenant_id')", item.ExpectedExpr)
	assert.Equal(t, "tenant_id = current_setting('app.other_id')", item.ActualExpr)
}

// TestCanonicalExpr_DecompilerNormalization: the server's decompiler
// wraps bodies in parentheses and inserts ::text casts; neither is
// drift.
func TestCanonicalExpr_DecompilerNormalization(t *testing.T) {
	assert.Equal(t,
		"tenant_id = current_setting('app.tenant_id')",
		canonicalExpr("(tenant_id = current_setting('app.tenant_id'::text))"))
	assert.Equal(t, "is_deleted = false", canonicalExpr("( is_deleted = false )"))
	// A top-level conjunction of groups is not one wrapped group.
	assert.Equal(t, "(a = b) AND (c = d)", canonicalExpr("(a = b) AND (c = d)"))
}

func TestDetect_TableAbsentFromObservationIsRlsDisabled(t *testing.T) {
	expected := fixtureState(t)
	report := Detect(expected, policy.ObservedState{})

	// Every governed table reports RlsDisabled plus its missing policies.
	var kinds []Kind
	for _, item := range report.Items {
		kinds = append(kinds, item.Kind)
	}
	assert.Contains(t, kinds, RlsDisabled)
	assert.Contains(t, kinds, MissingPolicy)
}

func TestDetect_RlsNotForcedIsHigh(t *testing.T) {
	expected := fixtureState(t)
	observed := cleanObserved(expected)
	for i := range observed.Tables {
		if observed.Tables[i].Name == "users" {
			observed.Tables[i].RLSForced = false
		}
	}
	report := Detect(expected, observed)
	require.Len(t, report.Items, 1)
	assert.Equal(t, RlsNotForced, report.Items[0].Kind)
	assert.Equal(t, High, report.Items[0].Severity)
}
