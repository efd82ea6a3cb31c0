package script

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// webAppImport matches the framework import declaration at the start of a line.
var webAppImport = regexp.MustCompile(`^\s*(?:import\s+streamlit\b|from\s+streamlit(?:\.\w+)*\s+import\b)`)

// skipDirs are directory names never descended into during discovery.
var skipDirs = map[string]bool{
	"__pycache__":  true,
	"node_modules": true,
	".git":         true,
	".svn":         true,
	".hg":          true,
	".venv":        true,
	"venv":         true,
}

// Classifier discovers and classifies scripts.
// It holds no cache; every call reflects the file system as it is.
type Classifier struct {
	log zerolog.Logger
}

// NewClassifier creates a classifier that logs read failures to log.
func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log}
}

// Discover returns every script under root in lexicographic path order.
// A missing root yields an empty list.
func (c *Classifier) Discover(root string) ([]Script, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(absRoot); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Script{}, nil
		}
		return nil, err
	}

	var scripts []Script
	walkErr := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			c.log.Warn().Err(err).Str("path", p).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if p != absRoot && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !Recognized(name) {
			return nil
		}

		scripts = append(scripts, c.Inspect(p))
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Path < scripts[j].Path
	})
	if scripts == nil {
		scripts = []Script{}
	}
	return scripts, nil
}

// Inspect classifies the script at path.
func (c *Classifier) Inspect(path string) Script {
	kind := c.Classify(path)
	s := Script{Path: path, Kind: kind}
	if kind == KindInterpreted {
		s.WebApp = c.IsWebApp(path)
	}
	return s
}

// Classify returns the kind of the script at path.
func (c *Classifier) Classify(path string) Kind {
	return KindOf(path)
}

// IsWebApp reports whether the interpreted script imports the web-app
// framework. Unreadable files are logged and reported as false.
func (c *Classifier) IsWebApp(path string) bool {
	if KindOf(path) != KindInterpreted {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("cannot read script for classification")
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if webAppImport.MatchString(scanner.Text()) {
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("classification scan stopped early")
	}
	return false
}
