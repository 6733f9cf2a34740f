package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/solaudit/internal/analysis"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the pattern scanner's rules",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, r := range analysis.Rules() {
			fmt.Fprintf(out, "  %-26s %-8s %s\n", r.ID, r.Severity, r.Title)
		}
	},
}
