package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X github.com/opd-ai/dgram/cmd/dgramctl/cmd.dgramctlVersion=x.y.z"
var dgramctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the dgramctl version and selected stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "dgramctl version %s\n", dgramctlVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "stack: %s\n", cfg.Stack)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
