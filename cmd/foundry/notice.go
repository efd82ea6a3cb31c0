package main

import (
	"path/filepath"

	"github.com/dshills/foundry/internal/watcher"
	"github.com/tidwall/sjson"
)

// Watch notices are single-line JSON objects keyed by "type".

func dataChangeNotice() string {
	msg, _ := sjson.Set("", "type", "data_change")
	return msg
}

func scriptChangeNotice(path string) string {
	msg, _ := sjson.Set("", "type", "script_change")
	msg, _ = sjson.Set(msg, "path", watcher.NormalizePath(path))
	return msg
}

// outputFileNotice reports path relative to the project root when it is
// inside it.
func outputFileNotice(projectRoot, path string, change watcher.ChangeType) string {
	rel := path
	if r, err := filepath.Rel(projectRoot, path); err == nil && filepath.IsLocal(r) {
		rel = r
	}
	msg, _ := sjson.Set("", "type", "output_file_change")
	msg, _ = sjson.Set(msg, "path", watcher.NormalizePath(rel))
	msg, _ = sjson.Set(msg, "change_type", change.String())
	return msg
}
