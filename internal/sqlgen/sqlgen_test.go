package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// fixtureSchema: users, projects, comments carry tenant_id; tasks and
// files carry project_id referencing projects.id.
func fixtureSchema() policy.SchemaMetadata {
	tenant := []policy.ColumnMetadata{
		{Name: "id", Type: "uuid"},
		{Name: "tenant_id", Type: "uuid"},
		{Name: "is_deleted", Type: "boolean"},
	}
	project := []policy.ColumnMetadata{
		{Name: "id", Type: "uuid"},
		{Name: "project_id", Type: "uuid"},
	}
	return policy.SchemaMetadata{Tables: []policy.TableMetadata{
		{Name: "users", Schema: "public", Columns: tenant},
		{Name: "projects", Schema: "public", Columns: tenant},
		{Name: "comments", Schema: "public", Columns: tenant},
		{Name: "tasks", Schema: "public", Columns: project},
		{Name: "files", Schema: "public", Columns: project},
	}}
}

// fixturePolicies is the canonical multi-tenant policy set.
func fixturePolicies() policy.PolicySet {
	tenantIsolation := policy.Policy{
		Name:     "tenant_isolation",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect, policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete),
		Selector: policy.HasColumn("tenant_id", ""),
		Clauses: []policy.Clause{policy.NewClause(
			policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")),
		)},
	}
	viaProject := policy.Policy{
		Name:     "tenant_isolation_via_project",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect, policy.CmdInsert, policy.CmdUpdate, policy.CmdDelete),
		Selector: policy.Or(policy.Named("tasks"), policy.Named("files")),
		Clauses: []policy.Clause{policy.NewClause(
			policy.TraversalAtom(
				policy.Relationship{SourceCol: "project_id", TargetTable: "projects", TargetCol: "id"},
				policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id"))),
			),
		)},
	}
	softDelete := policy.Policy{
		Name:     "soft_delete",
		Type:     policy.Restrictive,
		Commands: policy.NewCommandSet(policy.CmdSelect),
		Selector: policy.HasColumn("is_deleted", ""),
		Clauses: []policy.Clause{policy.NewClause(
			policy.BinaryAtom(policy.Col("is_deleted"), policy.OpEQ, policy.Lit(policy.Bool(false))),
		)},
	}
	return policy.PolicySet{Policies: []policy.Policy{tenantIsolation, viaProject, softDelete}}
}

// TestCompile_ProjectsArtifacts checks the projects table's output
// statement by statement.
func TestCompile_ProjectsArtifacts(t *testing.T) {
	state, err := Compile(fixturePolicies(), fixtureSchema())
	require.NoError(t, err)

	projects, ok := state.Table("public", "projects")
	require.True(t, ok)

	assert.Equal(t, "ALTER TABLE public.projects ENABLE ROW LEVEL SECURITY;", projects.EnableRLS)
	assert.Equal(t, "ALTER TABLE public.projects FORCE ROW LEVEL SECURITY;", projects.ForceRLS)
	require.Len(t, projects.Policies, 2)

	assert.Equal(t,
		"CREATE POLICY tenant_isolation_projects ON public.projects AS PERMISSIVE FOR ALL USING (tenant_id = current_setting('app.tenant_id'));",
		projects.Policies[0].SQL)
	assert.Equal(t,
		"CREATE POLICY soft_delete_projects ON public.projects AS RESTRICTIVE FOR SELECT USING (is_deleted = false);",
		projects.Policies[1].SQL)
}

// TestCompile_TasksTraversalBody checks the traversal body for the
// tasks table.
func TestCompile_TasksTraversalBody(t *testing.T) {
	state, err := Compile(fixturePolicies(), fixtureSchema())
	require.NoError(t, err)

	tasks, ok := state.Table("public", "tasks")
	require.True(t, ok)
	require.Len(t, tasks.Policies, 1)

	assert.Equal(t,
		"EXISTS (SELECT 1 FROM public.projects WHERE public.projects.id = public.tasks.project_id AND public.projects.tenant_id = current_setting('app.tenant_id'))",
		tasks.Policies[0].UsingExpr)
}

// TestCompile_Deterministic: identical inputs produce identical
// byte-for-byte output across invocations.
func TestCompile_Deterministic(t *testing.T) {
	first, err := Compile(fixturePolicies(), fixtureSchema())
	require.NoError(t, err)
	second, err := Compile(fixturePolicies(), fixtureSchema())
	require.NoError(t, err)
	assert.Equal(t, first.Statements(), second.Statements())
}

// TestCompile_TableOrderFollowsMetadata pins emission order to the
// metadata producer's table order.
func TestCompile_TableOrderFollowsMetadata(t *testing.T) {
	state, err := Compile(fixturePolicies(), fixtureSchema())
	require.NoError(t, err)

	var names []string
	for _, tbl := range state.Tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"users", "projects", "comments", "tasks", "files"}, names)
}

func TestCompile_UngovernedTableOmitted(t *testing.T) {
	meta := policy.SchemaMetadata{Tables: []policy.TableMetadata{
		{Name: "audit_log", Schema: "public", Columns: []policy.ColumnMetadata{{Name: "id", Type: "bigint"}}},
	}}
	state, err := Compile(fixturePolicies(), meta)
	require.NoError(t, err)
	assert.Empty(t, state.Tables)
}

func TestCompile_CommandSubsetEnumerated(t *testing.T) {
	ps := policy.PolicySet{Policies: []policy.Policy{{
		Name:     "writes_only",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdInsert, policy.CmdUpdate),
		Selector: policy.Named("users"),
		Clauses:  []policy.Clause{policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")))},
	}}}
	state, err := Compile(ps, fixtureSchema())
	require.NoError(t, err)

	users, ok := state.Table("public", "users")
	require.True(t, ok)
	require.Len(t, users.Policies, 1)
	assert.Contains(t, users.Policies[0].SQL, "FOR INSERT, UPDATE USING")
}

func TestCompile_MultiClausePolicyJoinsWithOr(t *testing.T) {
	ps := policy.PolicySet{Policies: []policy.Policy{{
		Name:     "owners_or_admins",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect),
		Selector: policy.Named("users"),
		Clauses: []policy.Clause{
			policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id"))),
			policy.NewClause(
				policy.BinaryAtom(policy.Col("role"), policy.OpEQ, policy.Lit(policy.Str("admin"))),
				policy.BinaryAtom(policy.Col("is_deleted"), policy.OpEQ, policy.Lit(policy.Bool(false))),
			),
		},
	}}}
	state, err := Compile(ps, fixtureSchema())
	require.NoError(t, err)

	users, _ := state.Table("public", "users")
	require.Len(t, users.Policies, 1)
	assert.Equal(t,
		"tenant_id = current_setting('app.tenant_id') OR (is_deleted = false AND role = 'admin')",
		users.Policies[0].UsingExpr)
}

func TestCompile_InListRendering(t *testing.T) {
	ps := policy.PolicySet{Policies: []policy.Policy{{
		Name:     "role_gate",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect),
		Selector: policy.Named("users"),
		Clauses: []policy.Clause{policy.NewClause(
			policy.BinaryAtom(policy.Col("role"), policy.OpIN, policy.Lit(policy.List(policy.Str("admin"), policy.Str("editor")))),
		)},
	}}}
	state, err := Compile(ps, fixtureSchema())
	require.NoError(t, err)

	users, _ := state.Table("public", "users")
	assert.Equal(t, "role IN ('admin', 'editor')", users.Policies[0].UsingExpr)
}

func TestCompile_MissingTraversalTargetIsError(t *testing.T) {
	ps := policy.PolicySet{Policies: []policy.Policy{{
		Name:     "dangling",
		Type:     policy.Permissive,
		Commands: policy.NewCommandSet(policy.CmdSelect),
		Selector: policy.Named("tasks"),
		Clauses: []policy.Clause{policy.NewClause(
			policy.TraversalAtom(
				policy.Relationship{SourceCol: "project_id", TargetTable: "missing", TargetCol: "id"},
				policy.NewClause(),
			),
		)},
	}}}
	_, err := Compile(ps, fixtureSchema())
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dangling", cerr.Policy)
	assert.Equal(t, "tasks", cerr.Table)
}

func TestRenderLiteral_StringEscaping(t *testing.T) {
	assert.Equal(t, "'it''s'", renderLiteral(policy.Str("it's")))
	assert.Equal(t, "NULL", renderLiteral(policy.Null()))
	assert.Equal(t, "42", renderLiteral(policy.Int(42)))
}
