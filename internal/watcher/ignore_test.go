package watcher

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilter_Defaults(t *testing.T) {
	f := NewDefaultFilter()
	root := filepath.Join(string(filepath.Separator), "proj", "scripts")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"plain script", "report.py", false},
		{"nested script", filepath.Join("sub", "report.py"), false},
		{"dot file", ".hidden", true},
		{"ds store", ".DS_Store", true},
		{"thumbs any case", "THUMBS.DB", true},
		{"bytecode", "mod.pyc", true},
		{"pycache dir", filepath.Join("__pycache__", "mod.cpython-312.pyc"), true},
		{"git contents", filepath.Join(".git", "HEAD"), true},
		{"swap", "report.py.swp", true},
		{"backup", "report.py~", true},
		{"temp", "out.TMP", true},
		{"zone identifier", "data.csv:Zone.Identifier", true},
		{"sentinel", "time_keeper.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Ignored(root, filepath.Join(root, tt.path))
			if got != tt.want {
				t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFilter_RootNeverIgnored(t *testing.T) {
	f := NewDefaultFilter()
	root := filepath.Join(t.TempDir(), ".config")
	if f.Ignored(root, root) {
		t.Error("root itself should not be ignored")
	}
	if !f.Ignored(root, filepath.Join(root, ".cache")) {
		t.Error("dot child should be ignored")
	}
	if f.Ignored(root, filepath.Join(root, "a.py")) {
		t.Error("dot name above root should not hide its children")
	}
}

func TestFilter_AddFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore")
	content := "# build output\n\n*.log\n/dist/\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFilter()
	if err := f.AddFromFile(path); err != nil {
		t.Fatalf("AddFromFile error = %v", err)
	}
	if got := f.Patterns(); len(got) != 2 || got[0] != "*.log" || got[1] != "dist" {
		t.Errorf("Patterns = %v, want [*.log dist]", got)
	}
	if !f.IgnoredName("run.LOG") {
		t.Error("run.LOG should be ignored")
	}
	if !f.Ignored("/p", "/p/dist/app.js") {
		t.Error("files under dist should be ignored")
	}

	if err := f.AddFromFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("AddFromFile on missing file should fail")
	}
}

func TestRoots_Of(t *testing.T) {
	base := t.TempDir()
	roots := Roots{
		RootInput:   filepath.Join(base, "input"),
		RootOutput:  filepath.Join(base, "output"),
		RootScripts: filepath.Join(base, "scripts"),
	}

	if r, ok := roots.Of(filepath.Join(base, "scripts", "a", "b.py")); !ok || r != RootScripts {
		t.Errorf("Of(scripts) = %v, %v", r, ok)
	}
	if r, ok := roots.Of(filepath.Join(base, "output")); !ok || r != RootOutput {
		t.Errorf("Of(output) = %v, %v", r, ok)
	}
	if _, ok := roots.Of(filepath.Join(base, "inputs", "x.csv")); ok {
		t.Error("sibling with shared prefix should not match")
	}

	nested := Roots{
		RootInput:   base,
		RootScripts: filepath.Join(base, "scripts"),
	}
	if r, _ := nested.Of(filepath.Join(base, "scripts", "x.py")); r != RootScripts {
		t.Errorf("nested Of = %v, want scripts", r)
	}
}
