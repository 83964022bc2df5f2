package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/applier"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/engine"
)

var (
	applyPolicyDir      string
	applyTarget         string
	applyDryRun         bool
	applyTraversalDepth int
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply compiled DDL to the target database",
	Long: `Compile the policy directory and execute the resulting DDL against the
target database in a single transaction. Applying the same compiled
output twice leaves the database unchanged.`,
	Example: `  # Apply policies
  rlsguard apply --policy-dir policies --target postgres://localhost/mydb

  # Preview the DDL without executing it
  rlsguard apply --policy-dir policies --target postgres://localhost/mydb --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ps, err := loadPolicies(firstSet(applyPolicyDir, cfg.PolicyDir), firstSet(applyTraversalDepth, cfg.TraversalDepth))
		if err != nil {
			return err
		}

		target := firstSet(applyTarget, cfg.Target)
		ctx := context.Background()
		pool, meta, err := connectTarget(ctx, target)
		if err != nil {
			return err
		}
		defer pool.Close()

		state, err := engine.Compile(ps, meta)
		if err != nil {
			return cli.ToolError("compiling policies", err)
		}
		statements := state.Statements()

		if firstSet(applyDryRun, cfg.Apply.DryRun) {
			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr(), "-- Dry-run mode: DDL will be output but not applied")
			}
			for _, stmt := range statements {
				fmt.Fprintln(cmd.OutOrStdout(), stmt)
			}
			return nil
		}

		if err := applier.Apply(ctx, pool, target, statements); err != nil {
			return cli.ToolError("applying DDL", err)
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d statements across %d tables.\n", len(statements), len(state.Tables))
		}
		return nil
	},
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyPolicyDir, "policy-dir", "", "directory of *.policy files")
	f.StringVar(&applyTarget, "target", "", "PostgreSQL connection string")
	f.BoolVar(&applyDryRun, "dry-run", false, "output DDL without applying")
	f.IntVar(&applyTraversalDepth, "traversal-depth", 0, "maximum traversal nesting depth")
}
