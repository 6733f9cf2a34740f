package source

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/sprite-ai/solaudit/internal/model"
)

// PatchFile is the post-image of one Solidity file touched by a patch.
type PatchFile struct {
	Name  string
	IsNew bool
	// Complete is true when Code is the whole file, false when it holds
	// only the hunks the patch shows.
	Complete     bool
	Code         string
	AddedLines   int
	DeletedLines int
}

// ParsePatch reads a unified diff and returns the post-image of every
// .sol file that survives it. Deleted and binary files are skipped.
func ParsePatch(raw string) ([]PatchFile, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	var out []PatchFile
	for _, f := range parsed {
		if f.IsDelete || f.IsBinary || !strings.HasSuffix(f.NewName, ".sol") {
			continue
		}
		pf := PatchFile{Name: f.NewName, IsNew: f.IsNew, Complete: f.IsNew}

		var b strings.Builder
		for i, frag := range f.TextFragments {
			if !pf.Complete {
				if i > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "// Lines %d-%d\n", frag.NewPosition, frag.NewPosition+frag.NewLines-1)
			}
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					pf.AddedLines++
					b.WriteString(line.Line)
				case gitdiff.OpDelete:
					pf.DeletedLines++
				case gitdiff.OpContext:
					b.WriteString(line.Line)
				}
			}
		}
		pf.Code = b.String()
		out = append(out, pf)
	}
	return out, nil
}

// FromPatch joins the post-images of a patch into one auditable source.
func FromPatch(raw string) (Contract, error) {
	files, err := ParsePatch(raw)
	if err != nil {
		return Contract{}, err
	}
	if len(files) == 0 {
		return Contract{}, fmt.Errorf("patch touches no Solidity files")
	}

	var b strings.Builder
	for i, f := range files {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// File: %s\n", f.Name)
		b.WriteString(strings.TrimRight(f.Code, "\n"))
		b.WriteString("\n")
	}
	name := files[0].Name
	if len(files) > 1 {
		name = fmt.Sprintf("%s (+%d files)", name, len(files)-1)
	}
	return Contract{Code: b.String(), Metadata: model.ContractMetadata{Name: name, SourcePath: "patch"}}, nil
}

// GitDiff runs `git diff` in repoDir with the given arguments.
func GitDiff(repoDir string, args ...string) (string, error) {
	cmdArgs := append([]string{"diff"}, args...)
	cmd := exec.Command("git", cmdArgs...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}

// GitDiffRange returns the diff for a commit range like "main...HEAD" with
// contextLines of surrounding code.
func GitDiffRange(repoDir, commitRange string, contextLines int) (string, error) {
	return GitDiff(repoDir, fmt.Sprintf("-U%d", contextLines), commitRange, "--", "*.sol")
}
