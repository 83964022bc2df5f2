package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/proof"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/render"
	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/solver"
	"github.com/dventimisupabase/pg-policy-engine-sub000/pkg/engine"
)

var (
	analyzePolicyDir      string
	analyzeTarget         string
	analyzeFormat         string
	analyzeTraversalDepth int
	analyzeTimeoutMs      int
	analyzeEnabledProofs  []string
	analyzeDisabledProofs []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Discharge proof obligations against the policy set",
	Long: `Parse and normalize the policy directory, then discharge tenant
isolation, coverage, contradiction, soft-delete, subsumption, redundancy,
and write-restriction proofs through the external SMT solver.`,
	Example: `  # Analyze policies against a live database's schema
  rlsguard analyze --policy-dir policies --target postgres://localhost/mydb

  # JSON output for CI pipelines
  rlsguard analyze --policy-dir policies --target postgres://localhost/mydb --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := render.ParseFormat(firstSet(analyzeFormat, cfg.Format))
		if err != nil {
			return cli.ToolError("parsing --format", err)
		}

		ps, err := loadPolicies(firstSet(analyzePolicyDir, cfg.PolicyDir), firstSet(analyzeTraversalDepth, cfg.TraversalDepth))
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, meta, err := connectTarget(ctx, firstSet(analyzeTarget, cfg.Target))
		if err != nil {
			return err
		}
		defer pool.Close()

		proofCfg := proof.Config{
			Enabled:   append(analyzeEnabledProofs, cfg.Proof.Enabled...),
			Disabled:  append(analyzeDisabledProofs, cfg.Proof.Disabled...),
			TimeoutMs: firstSet(analyzeTimeoutMs, cfg.Proof.TimeoutMs),
		}
		s := solver.New(cfg.Proof.SolverPath)

		results, err := engine.Analyze(ctx, ps, meta, s, proofCfg)
		if err != nil {
			return cli.ToolError("running proofs", err)
		}

		if err := render.Analyze(cmd.OutOrStdout(), format, results); err != nil {
			return cli.ToolError("rendering results", err)
		}

		failed := 0
		for _, r := range results {
			if r.Status == proof.Failed {
				failed++
			}
		}
		if failed > 0 {
			return cli.IssuesDetected(fmt.Sprintf("%d proof obligations failed", failed))
		}
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzePolicyDir, "policy-dir", "", "directory of *.policy files")
	f.StringVar(&analyzeTarget, "target", "", "PostgreSQL connection string")
	f.StringVar(&analyzeFormat, "format", "", "output format: text or json")
	f.IntVar(&analyzeTraversalDepth, "traversal-depth", 0, "maximum traversal nesting depth")
	f.IntVar(&analyzeTimeoutMs, "timeout-ms", 0, "per-proof solver timeout in milliseconds")
	f.StringSliceVar(&analyzeEnabledProofs, "enable-proof", nil, "run only these proof IDs (repeatable)")
	f.StringSliceVar(&analyzeDisabledProofs, "disable-proof", nil, "skip these proof IDs (repeatable)")
}
