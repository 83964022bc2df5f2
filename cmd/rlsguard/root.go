// Command rlsguard is the CLI front-end for the RLS policy governance
// pipeline: it parses DSL policy files, normalizes them, discharges SMT
// proof obligations, compiles deterministic PostgreSQL DDL, introspects a
// live database, and reports drift between intended and observed state.
//
// The core pipeline (pkg/policy, pkg/parser, internal/normalize,
// internal/proof, internal/sqlgen, internal/drift, internal/reconcile) is a
// pure, side-effect-free library; this package and internal/cli are thin
// adapters around it (argument parsing, config loading, exit-code
// mapping, output rendering).
package main

import (
	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/cli"
)

var (
	// cfg and configPath are set during PersistentPreRunE and read by every
	// subcommand's RunE.
	cfg        *cli.Config
	configPath string

	// Persistent flags.
	cfgFile string
	verbose int
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "rlsguard",
	Short: "PostgreSQL Row-Level Security policy governance",
	Long: `rlsguard - PostgreSQL Row-Level Security policy governance

rlsguard parses Row-Level Security policies written in a restricted
decidable DSL, normalizes them to canonical form, discharges tenant
isolation and related proof obligations through an external SMT solver,
compiles deterministic PostgreSQL DDL, and reports drift against a live
database's observed policy state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ToolError("loading configuration", err)
		}

		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command group IDs.
const (
	groupPipeline = "pipeline"
	groupUtility  = "utility"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover rlsguard.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase verbosity (can be repeated)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupPipeline, Title: "Pipeline:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	analyzeCmd.GroupID = groupPipeline
	compileCmd.GroupID = groupPipeline
	applyCmd.GroupID = groupPipeline
	monitorCmd.GroupID = groupPipeline
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(monitorCmd)

	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}

func main() {
	Execute()
}

// firstSet picks the highest-precedence setting: callers pass the flag
// value first and the config value after it, and the first one that
// differs from the type's zero value wins.
func firstSet[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}
