// Package cli implements the solaudit command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// exitCodeError is the process exit code for operational failures. Codes
// 0 to 2 are reserved for the audited risk level.
const exitCodeError = 3

var rootCmd = &cobra.Command{
	Use:   "solaudit",
	Short: "Multi-source smart contract security auditor",
	Long: `solaudit runs a Solidity contract past a built-in pattern scanner and
every configured analysis source (language models, slither, solhint),
then reconciles their findings into one report.

Configuration is read from .env.local, .env and the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.AddCommand(auditCmd, scanCmd, extractCmd, rulesCmd, serveCmd, versionCmd)
}

// exitError carries a non-zero exit code that is not a failure.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitCodeError
	}
}
