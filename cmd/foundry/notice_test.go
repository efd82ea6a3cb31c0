package main

import (
	"path/filepath"
	"testing"

	"github.com/dshills/foundry/internal/watcher"
	"github.com/tidwall/gjson"
)

func TestNotices(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "proj")

	msg := dataChangeNotice()
	if !gjson.Valid(msg) || gjson.Get(msg, "type").String() != "data_change" {
		t.Errorf("data notice = %s", msg)
	}

	script := filepath.Join(root, "scripts", "report.py")
	msg = scriptChangeNotice(script)
	if gjson.Get(msg, "type").String() != "script_change" {
		t.Errorf("script notice type = %s", msg)
	}
	if got := gjson.Get(msg, "path").String(); got != filepath.ToSlash(script) {
		t.Errorf("script notice path = %q", got)
	}

	msg = outputFileNotice(root, filepath.Join(root, "output", "chart.png"), watcher.Created)
	if got := gjson.Get(msg, "path").String(); got != "output/chart.png" {
		t.Errorf("output notice path = %q, want output/chart.png", got)
	}
	if got := gjson.Get(msg, "change_type").String(); got != "created" {
		t.Errorf("output notice change = %q, want created", got)
	}

	outside := filepath.Join(string(filepath.Separator), "elsewhere", "x.csv")
	msg = outputFileNotice(root, outside, watcher.Modified)
	if got := gjson.Get(msg, "path").String(); got != filepath.ToSlash(outside) {
		t.Errorf("path outside project = %q, want it unchanged", got)
	}
}
