package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/jobctl/internal/version"
)

func init() {
	var asJSON, short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Long:  "Show the jobctl version, commit, build date, Go version and platform.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := version.String()
			switch {
			case asJSON:
				out = version.JSON()
			case short:
				out = version.Short()
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "print the version and short commit only")
	cmd.MarkFlagsMutuallyExclusive("json", "short")
	rootCmd.AddCommand(cmd)
}
