package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/drift"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/sqlgen"
)

func expectedState() sqlgen.CompiledState {
	return sqlgen.CompiledState{Tables: []sqlgen.TableArtifacts{
		{
			Schema:    "public",
			Name:      "projects",
			EnableRLS: "ALTER TABLE public.projects ENABLE ROW LEVEL SECURITY;",
			ForceRLS:  "ALTER TABLE public.projects FORCE ROW LEVEL SECURITY;",
			Policies: []sqlgen.CompiledPolicy{{
				Name:      "tenant_isolation_projects",
				Source:    "tenant_isolation",
				UsingExpr: "tenant_id = current_setting('app.tenant_id')",
				SQL:       "CREATE POLICY tenant_isolation_projects ON public.projects AS PERMISSIVE FOR ALL USING (tenant_id = current_setting('app.tenant_id'));",
			}},
		},
	}}
}

// TestStatements_DisabledRlsAndExtraPolicy: remediation re-enables RLS
// and leaves the unmanaged policy untouched.
func TestStatements_DisabledRlsAndExtraPolicy(t *testing.T) {
	report := drift.Report{Items: []drift.Item{
		{Kind: drift.ExtraPolicy, Severity: drift.Warning, Schema: "public", Table: "users", PolicyName: "manual_override"},
		{Kind: drift.RlsDisabled, Severity: drift.Critical, Schema: "public", Table: "projects"},
	}}

	stmts := Statements(report, expectedState())
	assert.Equal(t, []string{"ALTER TABLE public.projects ENABLE ROW LEVEL SECURITY;"}, stmts)
}

func TestStatements_MissingPolicyEmitsExpectedCreate(t *testing.T) {
	report := drift.Report{Items: []drift.Item{
		{Kind: drift.MissingPolicy, Severity: drift.Critical, Schema: "public", Table: "projects", PolicyName: "tenant_isolation_projects"},
	}}

	stmts := Statements(report, expectedState())
	require.Len(t, stmts, 1)
	assert.Equal(t, expectedState().Tables[0].Policies[0].SQL, stmts[0])
}

func TestStatements_ModifiedPolicyDropsThenRecreates(t *testing.T) {
	report := drift.Report{Items: []drift.Item{
		{Kind: drift.ModifiedPolicy, Severity: drift.Critical, Schema: "public", Table: "projects", PolicyName: "tenant_isolation_projects"},
	}}

	stmts := Statements(report, expectedState())
	require.Len(t, stmts, 2)
	assert.Equal(t, "DROP POLICY IF EXISTS tenant_isolation_projects ON public.projects;", stmts[0])
	assert.Equal(t, expectedState().Tables[0].Policies[0].SQL, stmts[1])
}

func TestStatements_RlsNotForced(t *testing.T) {
	report := drift.Report{Items: []drift.Item{
		{Kind: drift.RlsNotForced, Severity: drift.High, Schema: "public", Table: "projects"},
	}}

	stmts := Statements(report, expectedState())
	assert.Equal(t, []string{"ALTER TABLE public.projects FORCE ROW LEVEL SECURITY;"}, stmts)
}

func TestStatements_EmptyReportEmitsNothing(t *testing.T) {
	assert.Empty(t, Statements(drift.Report{}, expectedState()))
}
