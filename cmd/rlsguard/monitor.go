package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/introspect"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/render"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/engine"
)

var (
	monitorPolicyDir      string
	monitorTarget         string
	monitorFormat         string
	monitorReconcile      bool
	monitorTraversalDepth int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Report drift between compiled and observed state",
	Long: `Compile the policy directory, introspect the target database's actual
RLS configuration, and report every difference: missing, modified, and
unmanaged policies, plus tables with RLS disabled or not forced.`,
	Example: `  # Report drift
  rlsguard monitor --policy-dir policies --target postgres://localhost/mydb

  # Also print remediation DDL
  rlsguard monitor --policy-dir policies --target postgres://localhost/mydb --reconcile`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(firstSet(monitorFormat, cfg.Format))
		if err != nil {
			return cli.ToolError("parsing --format", err)
		}

		ps, err := loadPolicies(firstSet(monitorPolicyDir, cfg.PolicyDir), firstSet(monitorTraversalDepth, cfg.TraversalDepth))
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, meta, err := connectTarget(ctx, firstSet(monitorTarget, cfg.Target))
		if err != nil {
			return err
		}
		defer pool.Close()

		observed, err := introspect.Observed(ctx, pool)
		if err != nil {
			return cli.ToolError("introspecting RLS state", err)
		}

		report, state, err := engine.Monitor(ps, meta, observed)
		if err != nil {
			return cli.ToolError("compiling policies", err)
		}

		var remediation []string
		if firstSet(monitorReconcile, cfg.Monitor.Reconcile) {
			remediation = engine.Reconcile(report, state)
		}

		if err := render.Monitor(cmd.OutOrStdout(), format, report, remediation); err != nil {
			return cli.ToolError("rendering drift report", err)
		}

		if report.HasDrift() {
			return cli.IssuesDetected(fmt.Sprintf("%d drift items detected", len(report.Items)))
		}
		return nil
	},
}

func init() {
	f := monitorCmd.Flags()
	f.StringVar(&monitorPolicyDir, "policy-dir", "", "directory of *.policy files")
	f.StringVar(&monitorTarget, "target", "", "PostgreSQL connection string")
	f.StringVar(&monitorFormat, "format", "", "output format: text or json")
	f.BoolVar(&monitorReconcile, "reconcile", false, "emit remediation DDL for detected drift")
	f.IntVar(&monitorTraversalDepth, "traversal-depth", 0, "maximum traversal nesting depth")
}
