package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sprite-ai/solaudit/internal/audit"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/orchestrator"
	"github.com/sprite-ai/solaudit/internal/report"
	"github.com/sprite-ai/solaudit/internal/source"
	"github.com/sprite-ai/solaudit/internal/tui"
)

var auditCmd = &cobra.Command{
	Use:   "audit [address]",
	Short: "Audit a deployed contract or local Solidity source",
	Long: `Audit the verified source of a deployed contract, local .sol files, or
the Solidity files touched by a patch, and print a consolidated report.

Examples:
  solaudit audit 0xdAC17F958D2ee523a2206206994597C13D831ec7
  solaudit audit 0x... --network polygon --format json
  solaudit audit --file contracts/
  git diff | solaudit audit --patch -
  solaudit audit --git-range main...HEAD --format sarif -o audit.sarif

Exit codes:
  0 - safe
  1 - low or medium risk
  2 - high risk
  3 - the audit could not be run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringP("network", "n", "mainnet", "network the address is deployed on")
	auditCmd.Flags().StringP("file", "F", "", "audit a .sol file or directory (- for stdin)")
	auditCmd.Flags().String("patch", "", "audit the .sol files in a unified diff (- for stdin)")
	auditCmd.Flags().String("git-range", "", "audit the .sol files changed in a commit range")
	auditCmd.Flags().String("replay", "", "use recorded analyzer responses from a directory")
	auditCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown, sarif")
	auditCmd.Flags().StringP("output", "o", "", "write the report to a file")
	auditCmd.Flags().Duration("deadline", 0, "analyzer deadline (default from AUDIT_DEADLINE)")
	auditCmd.Flags().Bool("fast", false, "skip cross-validation")
	auditCmd.Flags().Bool("progress", true, "show live progress on a terminal")
	auditCmd.Flags().Bool("no-color", false, "disable colored output")
}

// target is what an audit command runs against.
type target struct {
	address string
	network string
	// contract is set for local source.
	contract *source.Contract
}

func (t target) title() string {
	if t.contract == nil {
		return fmt.Sprintf("Auditing %s on %s", t.address, t.network)
	}
	name := t.contract.Metadata.Name
	if name == "" {
		name = t.contract.Metadata.SourcePath
	}
	return "Auditing " + name
}

func (t target) metadata() model.ContractMetadata {
	if t.contract != nil {
		return t.contract.Metadata
	}
	return model.ContractMetadata{Address: t.address, Network: t.network}
}

func resolveTarget(cmd *cobra.Command, args []string) (target, error) {
	network, _ := cmd.Flags().GetString("network")
	file, _ := cmd.Flags().GetString("file")
	patch, _ := cmd.Flags().GetString("patch")
	gitRange, _ := cmd.Flags().GetString("git-range")

	given := 0
	for _, v := range []string{file, patch, gitRange} {
		if v != "" {
			given++
		}
	}
	if len(args) == 1 {
		given++
	}
	if given != 1 {
		return target{}, fmt.Errorf("give exactly one of an address, --file, --patch or --git-range")
	}

	var (
		c   source.Contract
		err error
	)
	switch {
	case len(args) == 1:
		if !source.ValidAddress(args[0]) {
			return target{}, fmt.Errorf("invalid address %q", args[0])
		}
		return target{address: strings.TrimSpace(args[0]), network: source.NormalizeNetwork(network)}, nil
	case file != "":
		c, err = source.LoadFiles(file)
	case patch != "":
		c, err = loadPatch(cmd.InOrStdin(), patch)
	default:
		var repoDir, raw string
		repoDir, err = gitRepoRoot()
		if err != nil {
			return target{}, fmt.Errorf("not in a git repository (or git not installed): %w", err)
		}
		raw, err = source.GitDiffRange(repoDir, gitRange, 3)
		if err == nil {
			c, err = source.FromPatch(raw)
		}
	}
	if err != nil {
		return target{}, err
	}
	return target{contract: &c}, nil
}

func loadPatch(stdin io.Reader, path string) (source.Contract, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return source.Contract{}, fmt.Errorf("reading patch: %w", err)
	}
	return source.FromPatch(string(raw))
}

func runAudit(cmd *cobra.Command, args []string) error {
	formatName, _ := cmd.Flags().GetString("format")
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	t, err := resolveTarget(cmd, args)
	if err != nil {
		return err
	}

	replay, _ := cmd.Flags().GetString("replay")
	a, err := newApp(cmd, replay)
	if err != nil {
		return err
	}
	defer a.Close()

	deadline, _ := cmd.Flags().GetDuration("deadline")
	fast, _ := cmd.Flags().GetBool("fast")
	opts := audit.Options{UseValidator: !fast, Deadline: deadline}

	run := func(ctx context.Context, obs orchestrator.Observer) model.ConsolidatedReport {
		o := opts
		o.Observer = obs
		if t.contract == nil {
			return a.svc.AuditContract(ctx, t.address, t.network, o)
		}
		return a.svc.AuditSource(ctx, t.contract.Metadata, t.contract.Code, o)
	}

	var rep model.ConsolidatedReport
	progress, _ := cmd.Flags().GetBool("progress")
	if progress && isTerminal(os.Stderr) {
		rep, err = tui.Run(cmd.Context(), os.Stderr, t.title(), a.svc.Sources(), run)
		if err != nil {
			a.log.Warnw("progress view failed", "error", err)
		}
	} else {
		rep = run(cmd.Context(), nil)
	}

	if err := writeReport(cmd, rep, format, t.metadata()); err != nil {
		return err
	}
	if code := report.ExitCode(rep); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// writeReport renders rep to --output or stdout.
func writeReport(cmd *cobra.Command, rep model.ConsolidatedReport, format report.Format, meta model.ContractMetadata) error {
	noColor, _ := cmd.Flags().GetBool("no-color")
	opts := report.Options{
		ToolVersion: version,
		Metadata:    meta,
	}
	if file, _ := cmd.Flags().GetString("file"); file != "" && file != "-" {
		opts.ArtifactURI = file
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	} else if format == report.FormatText && !noColor {
		opts.Color = isTerminal(out)
	}

	return report.Render(out, rep, format, opts)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
