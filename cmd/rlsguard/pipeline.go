package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/introspect"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/render"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/engine"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/parser"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/policy"
)

// loadPolicies reads and aggregates the policy directory. Diagnostics
// are rendered to stderr and mapped to a tool error, matching the
// parse-failure exit code.
func loadPolicies(dir string, depth int) (policy.PolicySet, error) {
	if dir == "" {
		return policy.PolicySet{}, cli.ToolError("--policy-dir is required (flag or config)", nil)
	}
	opts := []parser.Option{}
	if depth > 0 {
		opts = append(opts, parser.WithMaxTraversalDepth(depth))
	}
	ps, diags, err := engine.Load(dir, opts...)
	if err != nil {
		return policy.PolicySet{}, cli.ToolError("loading policies", err)
	}
	if diags.HasErrors() {
		render.Diagnostics(os.Stderr, diags)
		return policy.PolicySet{}, cli.ToolError(fmt.Sprintf("%d parse diagnostics in %s", len(diags), dir), nil)
	}
	return ps, nil
}

// connectTarget dials the target database and introspects its schema
// metadata.
func connectTarget(ctx context.Context, target string) (*pgxpool.Pool, policy.SchemaMetadata, error) {
	if target == "" {
		return nil, policy.SchemaMetadata{}, cli.ToolError("--target is required (flag or config)", nil)
	}
	pool, err := introspect.Connect(ctx, target)
	if err != nil {
		return nil, policy.SchemaMetadata{}, cli.ToolError("connecting to target", err)
	}
	meta, err := introspect.Schema(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, policy.SchemaMetadata{}, cli.ToolError("introspecting schema", err)
	}
	return pool, meta, nil
}
