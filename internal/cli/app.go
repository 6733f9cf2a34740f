package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/analyzer"
	"github.com/sprite-ai/solaudit/internal/audit"
	"github.com/sprite-ai/solaudit/internal/config"
	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/reconcile"
	"github.com/sprite-ai/solaudit/internal/source"
	"github.com/sprite-ai/solaudit/internal/store"
)

// app is everything a command needs to run audits.
type app struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	stores *store.Backends
	svc    *audit.Service
}

// newApp loads configuration and wires the audit service. With replayDir
// set, recorded responses replace the configured analyzers.
func newApp(cmd *cobra.Command, replayDir string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}

	log, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var sources []analyzer.Analyzer
	var validator analyzer.Analyzer
	if replayDir != "" {
		sources, validator, err = analyzer.LoadReplay(replayDir)
		if err != nil {
			return nil, err
		}
	} else {
		sources, validator = analyzer.FromConfig(cfg, log)
	}
	if len(sources) == 0 {
		log.Warnw("no analysis sources configured; reports will come from the pattern scanner alone")
	}

	matcher := reconcile.DefaultMatcher()
	matcher.SimilarityThreshold = cfg.SimilarityThreshold

	stores := store.Open(cmd.Context(), cfg, log)
	svc := audit.New(audit.Config{
		Provider:         source.NewExplorer(cfg.ExplorerKey, cfg.ExplorerBaseURL, log),
		Sources:          sources,
		Validator:        validator,
		Cache:            stores.Cache,
		Sink:             stores.Sink,
		Matcher:          matcher,
		Deadline:         cfg.AuditDeadline,
		ValidatorTimeout: cfg.AnalyzerTimeout,
		Log:              log,
	})

	return &app{cfg: cfg, log: log, stores: stores, svc: svc}, nil
}

func (a *app) Close() {
	a.stores.Close()
	_ = a.log.Sync()
}

func gitRepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
