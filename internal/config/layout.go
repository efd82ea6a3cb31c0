package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout holds the absolute paths of a project folder.
type Layout struct {
	Root    string
	Input   string
	Output  string
	Scripts string
	Meta    string
}

// NewLayout resolves the project paths to absolute paths.
func NewLayout(p ProjectConfig) (Layout, error) {
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve project root: %w", err)
	}
	join := func(rel string) string {
		if filepath.IsAbs(rel) {
			return filepath.Clean(rel)
		}
		return filepath.Join(root, rel)
	}
	return Layout{
		Root:    root,
		Input:   join(p.InputDir),
		Output:  join(p.OutputDir),
		Scripts: join(p.ScriptsDir),
		Meta:    join(p.MetaDir),
	}, nil
}

// Ensure creates every folder of the layout that does not exist yet.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Input, l.Output, l.Scripts, l.Meta} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
