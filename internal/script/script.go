// Package script discovers runnable scripts in a project folder, classifies
// them, and resolves the command line needed to launch each kind.
//
// Classification is extension based. Interpreted scripts are additionally
// scanned for an import of the web-app framework; the scan is a plain text
// match and misses aliased or indirect imports.
package script

import (
	"path/filepath"
	"strings"
)

// Kind identifies how a script is launched.
type Kind int

const (
	// KindUnknown is any file without a recognized extension.
	KindUnknown Kind = iota
	// KindInterpreted is a Python script.
	KindInterpreted
	// KindShell is a POSIX shell script.
	KindShell
	// KindBatch is a Windows batch script.
	KindBatch
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInterpreted:
		return "interpreted"
	case KindShell:
		return "shell"
	case KindBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// extensions maps lower-case file extensions to kinds.
var extensions = map[string]Kind{
	".py":   KindInterpreted,
	".sh":   KindShell,
	".bash": KindShell,
	".bat":  KindBatch,
	".cmd":  KindBatch,
}

// KindOf returns the kind implied by the path's extension.
func KindOf(path string) Kind {
	if k, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindUnknown
}

// Recognized reports whether the path has a script extension.
func Recognized(path string) bool {
	return KindOf(path) != KindUnknown
}

// Script is a discovered script.
type Script struct {
	// Path is the absolute path.
	Path string `json:"path"`
	// Kind is the launch kind.
	Kind Kind `json:"kind"`
	// WebApp marks an interpreted script that starts a local web server.
	WebApp bool `json:"web_app,omitempty"`
}

// Name returns the file name.
func (s Script) Name() string {
	return filepath.Base(s.Path)
}

// RelPath returns the path relative to root with forward slashes,
// or the absolute path if it is not under root.
func (s Script) RelPath(root string) string {
	rel, err := filepath.Rel(root, s.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(s.Path)
	}
	return filepath.ToSlash(rel)
}
