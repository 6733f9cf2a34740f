package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Static returns a fixed response, optionally after a delay. It serves
// offline replays and tests.
type Static struct {
	ID       string
	Response string
	Failure  *model.AnalyzerFailure
	Delay    time.Duration
}

func (s *Static) Name() string { return s.ID }

func (s *Static) Analyze(ctx context.Context, req Request) (string, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", AsFailure(s.ID, ctx.Err())
		case <-t.C:
		}
	}
	if s.Failure != nil {
		return "", s.Failure
	}
	return s.Response, nil
}

// ValidatorReplayName is the replay file name that becomes the validator.
const ValidatorReplayName = "validator"

// LoadReplay reads every *.txt / *.json / *.md file in dir as the recorded
// response of the analyzer named after the file. A file named "validator"
// is returned separately.
func LoadReplay(dir string) (sources []Analyzer, validator Analyzer, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading replay dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".txt" && ext != ".json" && ext != ".md" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		a := &Static{ID: strings.TrimSuffix(e.Name(), ext), Response: string(b)}
		if a.ID == ValidatorReplayName {
			validator = a
			continue
		}
		sources = append(sources, a)
	}
	return sources, validator, nil
}
