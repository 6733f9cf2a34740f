package source

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

// skipDirs are never walked when loading a directory.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"lib":          true,
	"out":          true,
	"cache":        true,
	"artifacts":    true,
}

// LoadFiles reads a Solidity file, or every .sol file under a directory
// joined under "// File:" headers. "-" reads standard input.
func LoadFiles(path string) (Contract, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return Contract{}, fmt.Errorf("reading stdin: %w", err)
		}
		return Contract{Code: string(b), Metadata: model.ContractMetadata{SourcePath: "stdin"}}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Contract{}, err
	}
	meta := model.ContractMetadata{SourcePath: path, Name: strings.TrimSuffix(filepath.Base(path), ".sol")}
	if !info.IsDir() {
		b, err := os.ReadFile(path)
		if err != nil {
			return Contract{}, err
		}
		return Contract{Code: string(b), Metadata: meta}, nil
	}

	var paths []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".sol") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	if len(paths) == 0 {
		return Contract{}, fmt.Errorf("no .sol files under %s", path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return Contract{}, err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			rel = p
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "// File: %s\n", filepath.ToSlash(rel))
		b.WriteString(strings.TrimRight(string(data), "\n"))
		b.WriteString("\n")
	}
	return Contract{Code: b.String(), Metadata: meta}, nil
}
