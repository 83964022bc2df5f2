package smtenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

func TestEncodeClause_SimpleEquality(t *testing.T) {
	c := policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("app.tenant_id")))
	ctx := NewContext()
	got := New().EncodeClause(c, "orders", "orders", "s", ctx)
	assert.Equal(t, "(= orders_col_tenant_id s_session_app_tenant_id)", got)
}

func TestEncodeClause_EmptyIsTrue(t *testing.T) {
	got := New().EncodeClause(policy.NewClause(), "orders", "orders", "s", NewContext())
	assert.Equal(t, "true", got)
}

func TestEncodeClause_IN_EmptyList_IsFalse(t *testing.T) {
	c := policy.NewClause(policy.BinaryAtom(policy.Col("role"), policy.OpIN, policy.Lit(policy.List())))
	got := New().EncodeClause(c, "t", "t", "s", NewContext())
	assert.Equal(t, "false", got)
}

func TestEncodeClause_NotIN_EmptyList_IsTrue(t *testing.T) {
	c := policy.NewClause(policy.BinaryAtom(policy.Col("role"), policy.OpNotIN, policy.Lit(policy.List())))
	got := New().EncodeClause(c, "t", "t", "s", NewContext())
	assert.Equal(t, "true", got)
}

func TestEncodeClause_IN_ExpandsToDisjunction(t *testing.T) {
	c := policy.NewClause(policy.BinaryAtom(policy.Col("role"), policy.OpIN, policy.Lit(policy.List(policy.Str("admin"), policy.Str("owner")))))
	ctx := NewContext()
	got := New().EncodeClause(c, "t", "t", "s", ctx)
	assert.Equal(t, "(or (= t_col_role lit_0) (= t_col_role lit_1))", got)
}

func TestEncodeClause_OrderingIsOpaque(t *testing.T) {
	c := policy.NewClause(policy.BinaryAtom(policy.Col("created_at"), policy.OpLT, policy.Session("now")))
	ctx := NewContext()
	got := New().EncodeClause(c, "t", "t", "s", ctx)
	assert.True(t, strings.HasPrefix(got, "opaque_ord_"))
	assert.Contains(t, ctx.Declarations(), "(declare-const "+got+" Bool)")
}

func TestEncodeClause_IsNullFlag(t *testing.T) {
	c := policy.NewClause(policy.UnaryAtom(policy.Col("deleted_at"), policy.OpIsNull))
	ctx := NewContext()
	got := New().EncodeClause(c, "t", "t", "s", ctx)
	assert.Equal(t, "t_col_deleted_at_isnull", got)

	notC := policy.NewClause(policy.UnaryAtom(policy.Col("deleted_at"), policy.OpIsNotNull))
	gotNot := New().EncodeClause(notC, "t", "t", "s", ctx)
	assert.Equal(t, "(not t_col_deleted_at_isnull)", gotNot)
}

// TestEncodeTraversal_JoinEquality grounds the traversal encoding in
// a fresh target-table prefix, a join equality between the
// source and target columns, and the inner clause recursively encoded
// under the fresh prefix.
func TestEncodeTraversal_JoinEquality(t *testing.T) {
	inner := policy.NewClause(policy.BinaryAtom(policy.Col("owner_id"), policy.OpEQ, policy.Session("uid")))
	rel := policy.Relationship{SourceTable: "", SourceCol: "project_id", TargetTable: "projects", TargetCol: "id"}
	c := policy.NewClause(policy.TraversalAtom(rel, inner))
	ctx := NewContext()
	got := New().EncodeClause(c, "tasks", "tasks", "s", ctx)
	assert.Equal(t, "(and (= tasks_col_project_id projects_1_col_id) (= projects_1_col_owner_id s_session_uid))", got)
}

func TestEncodeTraversal_FreshPrefixPerOccurrence(t *testing.T) {
	rel := policy.Relationship{SourceCol: "project_id", TargetTable: "projects", TargetCol: "id"}
	inner := policy.NewClause()
	atom1 := policy.TraversalAtom(rel, inner)
	atom2 := policy.TraversalAtom(rel, inner)
	ctx := NewContext()
	enc := New()
	got1 := enc.EncodeClause(policy.NewClause(atom1), "tasks", "tasks", "s", ctx)
	got2 := enc.EncodeClause(policy.NewClause(atom2), "tasks", "tasks", "s", ctx)
	assert.NotEqual(t, got1, got2)
}

func TestEncodeEffective_NoPermissiveIsFalse(t *testing.T) {
	got := New().EncodeEffective(nil, nil, "t", "s", NewContext())
	assert.Equal(t, "false", got)
}

func TestEncodeEffective_RestrictiveConjoined(t *testing.T) {
	permissive := []policy.Policy{{
		Clauses: []policy.Clause{policy.NewClause(policy.BinaryAtom(policy.Col("tenant_id"), policy.OpEQ, policy.Session("tid")))},
	}}
	restrictive := []policy.Policy{{
		Clauses: []policy.Clause{policy.NewClause(policy.UnaryAtom(policy.Col("deleted_at"), policy.OpIsNull))},
	}}
	got := New().EncodeEffective(permissive, restrictive, "t", "s", NewContext())
	assert.Equal(t, "(and (= t_col_tenant_id s_session_tid) t_col_deleted_at_isnull)", got)
}

func TestContext_ColumnConstIsStableWithinContext(t *testing.T) {
	ctx := NewContext()
	a := ctx.columnConst("t", "x")
	b := ctx.columnConst("t", "x")
	assert.Equal(t, a, b)
	assert.Len(t, ctx.Declarations(), 1)
}

func TestContext_LiteralDistinctnessAsserted(t *testing.T) {
	ctx := NewContext()
	ctx.literalConst(policy.Str("a"))
	ctx.literalConst(policy.Str("b"))
	decls := ctx.Declarations()
	require.Contains(t, decls, "(assert (distinct lit_0 lit_1))")
}

func TestContext_SingleLiteralNoDistinctAssertion(t *testing.T) {
	ctx := NewContext()
	ctx.literalConst(policy.Str("a"))
	for _, d := range ctx.Declarations() {
		assert.NotContains(t, d, "distinct")
	}
}

func TestSanitize_DottedSessionKey(t *testing.T) {
	ctx := NewContext()
	got := ctx.sessionConst("s", "app.tenant_id")
	assert.Equal(t, "s_session_app_tenant_id", got)
}

func TestScript_IncludesSortAndCheckSat(t *testing.T) {
	ctx := NewContext()
	ctx.columnConst("t", "x")
	script := ctx.Script("(= t_col_x t_col_x)")
	assert.True(t, strings.HasPrefix(script, "(declare-sort Val 0)\n"))
	assert.Contains(t, script, "(declare-const t_col_x Val)")
	assert.Contains(t, script, "(assert (= t_col_x t_col_x))")
	assert.Contains(t, script, "(check-sat)")
}
