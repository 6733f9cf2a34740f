package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/solaudit/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Normalize raw analyzer output into structured findings",
	Long: `Parse the raw text an analysis source produced (JSON, fenced JSON or
prose) and print the normalized result as JSON. Reads stdin when no file
is given. Useful for checking how a recorded response will be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringP("source", "s", "manual", "source name to tag findings with")
}

func runExtract(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	name, _ := cmd.Flags().GetString("source")
	res, err := extract.Extract(string(raw), name)
	if err != nil {
		return fmt.Errorf("extracting: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
