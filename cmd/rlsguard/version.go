package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dventimisupabase/pg-policy-engine-sub000/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Info())
	},
}
