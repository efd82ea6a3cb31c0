package watcher

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Filter decides which paths are noise. Patterns use filepath.Match
// syntax and are compared case-insensitively against every path
// component below the watched root, so an ignored directory hides
// everything inside it. Names starting with a dot are always ignored.
type Filter struct {
	mu       sync.RWMutex
	patterns []string
}

// DefaultIgnorePatterns cover OS artifacts, bytecode caches, version
// control folders, temp and swap files, and timing sentinels.
var DefaultIgnorePatterns = []string{
	// OS
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"*Zone.Identifier",

	// Bytecode
	"__pycache__",
	"*.pyc",
	"*.pyo",

	// Version control
	".git",
	".svn",
	".hg",

	// Temp and swap
	"*.tmp",
	"*.temp",
	"*~",
	"*.swp",
	"*.swo",

	// Sentinels
	"time_keeper",
	"time_keeper.txt",
}

// NewFilter creates a filter with the given patterns.
func NewFilter(patterns ...string) *Filter {
	f := &Filter{}
	f.AddPatterns(patterns)
	return f
}

// NewDefaultFilter creates a filter with DefaultIgnorePatterns.
func NewDefaultFilter() *Filter {
	return NewFilter(DefaultIgnorePatterns...)
}

// AddPattern adds one pattern. Blank lines and # comments are skipped.
func (f *Filter) AddPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}
	pattern = strings.ToLower(strings.Trim(pattern, "/"))

	f.mu.Lock()
	f.patterns = append(f.patterns, pattern)
	f.mu.Unlock()
}

// AddPatterns adds several patterns.
func (f *Filter) AddPatterns(patterns []string) {
	for _, p := range patterns {
		f.AddPattern(p)
	}
}

// AddFromFile loads one pattern per line from path.
func (f *Filter) AddFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		f.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// Patterns returns a copy of the patterns.
func (f *Filter) Patterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.patterns...)
}

// Ignored reports whether path should be ignored. Only the part of path
// below root is inspected; an empty root inspects the base name only.
func (f *Filter) Ignored(root, path string) bool {
	rel := filepath.Base(path)
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	if rel == "." {
		return false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if f.ignoredName(part) {
			return true
		}
	}
	return false
}

// IgnoredName reports whether a single file or directory name is ignored.
func (f *Filter) IgnoredName(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ignoredName(name)
}

func (f *Filter) ignoredName(name string) bool {
	if name == "" {
		return false
	}
	if name[0] == '.' {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range f.patterns {
		if ok, _ := filepath.Match(p, lower); ok {
			return true
		}
	}
	return false
}

// within reports whether path is dir or inside it.
func within(dir, path string) bool {
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
