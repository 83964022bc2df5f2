package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/render"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/engine"
)

var (
	compilePolicyDir      string
	compileTarget         string
	compileFormat         string
	compileTraversalDepth int
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile policies to PostgreSQL DDL",
	Long: `Parse and normalize the policy directory, then compile deterministic
ENABLE/FORCE ROW LEVEL SECURITY and CREATE POLICY statements for every
governed table in the target database's schema.`,
	Example: `  # Print DDL for review
  rlsguard compile --policy-dir policies --target postgres://localhost/mydb

  # Machine-readable artifact listing
  rlsguard compile --policy-dir policies --target postgres://localhost/mydb --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(firstSet(compileFormat, cfg.Format))
		if err != nil {
			return cli.ToolError("parsing --format", err)
		}

		ps, err := loadPolicies(firstSet(compilePolicyDir, cfg.PolicyDir), firstSet(compileTraversalDepth, cfg.TraversalDepth))
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, meta, err := connectTarget(ctx, firstSet(compileTarget, cfg.Target))
		if err != nil {
			return err
		}
		defer pool.Close()

		state, err := engine.Compile(ps, meta)
		if err != nil {
			return cli.ToolError("compiling policies", err)
		}

		if err := render.Compile(cmd.OutOrStdout(), format, state); err != nil {
			return cli.ToolError("rendering DDL", err)
		}
		return nil
	},
}

func init() {
	f := compileCmd.Flags()
	f.StringVar(&compilePolicyDir, "policy-dir", "", "directory of *.policy files")
	f.StringVar(&compileTarget, "target", "", "PostgreSQL connection string")
	f.StringVar(&compileFormat, "format", "", "output format: text or json")
	f.IntVar(&compileTraversalDepth, "traversal-depth", 0, "maximum traversal nesting depth")
}
