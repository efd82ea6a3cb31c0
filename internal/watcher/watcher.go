// Package watcher detects changes in the three watched folders of a
// project (input, output and scripts) and routes them to callbacks.
//
// Changes come from one of two backends. The push backend subscribes to
// OS notifications through fsnotify; the poll backend rescans the folders
// on an interval and diffs modification times. Both apply the same ignore
// filter, and the Detector debounces events per path before handing them
// to the consumer's event loop.
package watcher

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrNotAlive      = errors.New("backend did not come up")
	ErrPathNotExist  = errors.New("path does not exist")
)

// ChangeType is the kind of change observed for a file.
type ChangeType int

const (
	// Created means the file appeared.
	Created ChangeType = iota + 1
	// Modified means the file content or modification time changed.
	Modified
	// Deleted means the file disappeared or was renamed away.
	Deleted
)

// String returns the change name.
func (c ChangeType) String() string {
	switch c {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Root identifies one of the watched folders.
type Root int

const (
	// RootInput is the folder holding source data.
	RootInput Root = iota + 1
	// RootOutput is the folder scripts write results to.
	RootOutput
	// RootScripts is the folder holding the scripts.
	RootScripts
)

// String returns the root name.
func (r Root) String() string {
	switch r {
	case RootInput:
		return "input"
	case RootOutput:
		return "output"
	case RootScripts:
		return "scripts"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Root) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Event is a change to a single file.
type Event struct {
	// Path is the absolute path of the file.
	Path string `json:"path"`
	// Type is what happened to it.
	Type ChangeType `json:"type"`
	// Root is the watched folder it is in.
	Root Root `json:"root"`
	// Timestamp is when the change was observed.
	Timestamp time.Time `json:"timestamp"`
}

// Roots maps each watched folder to its absolute path.
type Roots map[Root]string

// Of returns the root containing path, preferring the most specific one
// when roots are nested.
func (r Roots) Of(path string) (Root, bool) {
	var (
		best    Root
		bestLen = -1
	)
	for root, dir := range r {
		if within(dir, path) && len(dir) > bestLen {
			best, bestLen = root, len(dir)
		}
	}
	return best, bestLen >= 0
}

// Sink receives events from a backend. It may be called from any
// goroutine and must not block for long.
type Sink func(Event)

// Backend produces change events for a set of roots.
type Backend interface {
	// Start begins delivering events to sink until ctx ends or Close.
	Start(ctx context.Context, sink Sink) error
	// Alive reports whether the backend is still delivering events.
	Alive() bool
	// Close stops the backend and releases its resources.
	Close() error
	// Name identifies the backend in logs.
	Name() string
}

// Callbacks receive routed changes on the consumer's event loop.
// Nil callbacks are skipped.
type Callbacks struct {
	// OnDataChange fires for any change in the input or output folders.
	OnDataChange func()
	// OnScriptChange fires when a script is created or modified.
	OnScriptChange func(path string)
	// OnOutputFileChange fires when an output file is created or modified.
	OnOutputFileChange func(path string, change ChangeType)
}

// Stats provides detector status information.
type Stats struct {
	// Mode is the name of the active backend.
	Mode string
	// Received counts events that reached the detector after filtering.
	Received int64
	// Debounced counts events dropped as duplicates.
	Debounced int64
	// Delivered counts events handed to the event loop.
	Delivered int64
	// Rejected counts events the event loop refused.
	Rejected int64
	// StartTime is when the detector was started.
	StartTime time.Time
}
