package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

const tenantPolicySrc = `POLICY tenant_isolation PERMISSIVE
FOR SELECT, INSERT, UPDATE, DELETE
SELECTOR has_column('tenant_id')
CLAUSE col(tenant_id) = session('app.tenant_id')
`

const softDeletePolicySrc = `POLICY soft_delete RESTRICTIVE
FOR SELECT
SELECTOR has_column('is_deleted')
CLAUSE col(is_deleted) = lit(false)
`

func writePolicyDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

func TestLoad_AggregatesFilesInLexicographicOrder(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"20_soft_delete.policy": softDeletePolicySrc,
		"10_tenant.policy":      tenantPolicySrc,
	})

	ps, diags, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.Len(t, ps.Policies, 2)
	assert.Equal(t, "tenant_isolation", ps.Policies[0].Name)
	assert.Equal(t, "soft_delete", ps.Policies[1].Name)
}

func TestLoad_NameCollisionAcrossFilesIsValidationError(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"a.policy": tenantPolicySrc,
		"b.policy": tenantPolicySrc,
	})

	_, _, err := Load(dir)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tenant_isolation", verr.Policy)
	assert.Contains(t, verr.Message, "a.policy")
	assert.Contains(t, verr.Message, "b.policy")
}

func TestLoad_EmptyDirIsError(t *testing.T) {
	_, _, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestLoad_ParseProblemsCollectAsDiagnostics(t *testing.T) {
	dir := writePolicyDir(t, map[string]string{
		"bad.policy":  "POLICY broken PERMISSIVE\nFOR SELECT\n",
		"good.policy": tenantPolicySrc,
	})

	ps, diags, err := Load(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, diags)
	// The good file still contributes its policy.
	_, ok := ps.ByName("tenant_isolation")
	assert.True(t, ok)
}

func TestCompile_NormalizesBeforeRendering(t *testing.T) {
	// Duplicate clause where the second is subsumed by the first: only
	// one disjunct survives into the DDL.
	p := policy.Policy{
		Name:     "tenant_isolation",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect),
		Selector: policy.HasColumn("tenant_id", ""),
		Clauses: []policy.Clause{
			policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id"))),
			policy.NewClause(
				policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")),
				policy.BinaryAtom(policy.Col("active"), policy.OpEQ, policy.Lit(policy.Bool(true))),
			),
		},
	}
	meta := policy.SchemaMetadata{Tables: []policy.TableMetadata{
		{Name: "projects", Schema: "public", Columns: []policy.ColumnMetadata{{Name: "tenant_id", Type: "uuid"}}},
	}}

	state, err := Compile(policy.PolicySet{Policies: []policy.Policy{p}}, meta)
	require.NoError(t, err)

	projects, ok := state.Table("public", "projects")
	require.True(t, ok)
	require.Len(t, projects.Policies, 1)
	assert.Equal(t, "tenant_id = current_setting('app.tenant_id')", projects.Policies[0].UsingExpr)
}

func TestMonitor_DetectsDriftAndReconciles(t *testing.T) {
	p := policy.Policy{
		Name:     "tenant_isolation",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect, policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete),
		Selector: policy.HasColumn("tenant_id", ""),
		Clauses: []policy.Clause{policy.NewClause(
			policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")),
		)},
	}
	meta := policy.SchemaMetadata{Tables: []policy.TableMetadata{
		{Name: "projects", Schema: "public", Columns: []policy.ColumnMetadata{{Name: "tenant_id", Type: "uuid"}}},
	}}

	// Observed: RLS off, policy absent.
	observed := policy.ObservedState{Tables: []policy.ObservedTable{
		{Schema: "public", Name: "projects", RLSEnabled: false, RLSForced: false},
	}}

	report, state, err := Monitor(policy.PolicySet{Policies: []policy.Policy{p}}, meta, observed)
	require.NoError(t, err)
	require.True(t, report.HasDrift())

	stmts := Reconcile(report, state)
	assert.Contains(t, stmts, "ALTER TABLE public.projects ENABLE ROW LEVEL SECURITY;")
	assert.Contains(t, stmts, state.Tables[0].Policies[0].SQL)
}
