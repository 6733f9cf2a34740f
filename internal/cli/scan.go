package cli

import (
	"github.com/spf13/cobra"

	"github.com/sprite-ai/solaudit/internal/analysis"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/reconcile"
	"github.com/sprite-ai/solaudit/internal/report"
	"github.com/sprite-ai/solaudit/internal/source"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Run only the built-in pattern scanner (offline)",
	Long: `Run the built-in pattern scanner over a .sol file or directory and print
a pattern-only report. No analysis source is contacted.

Use - to read source from stdin. Exit codes match audit.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown, sarif")
	scanCmd.Flags().StringP("output", "o", "", "write the report to a file")
	scanCmd.Flags().Bool("no-color", false, "disable colored output")
}

func runScan(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	c, err := source.LoadFiles(args[0])
	if err != nil {
		return err
	}

	results := []model.AnalysisResult{analysis.Scan(c.Code)}
	rep := reconcile.New(reconcile.Options{}).Reconcile(cmd.Context(), results, c.Code, c.Metadata)

	if err := writeReport(cmd, rep, format, c.Metadata); err != nil {
		return err
	}
	if code := report.ExitCode(rep); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
