package script

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dshills/foundry/internal/platform"
	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func paths(scripts []Script) []string {
	out := make([]string, len(scripts))
	for i, s := range scripts {
		out[i] = s.Path
	}
	return out
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"a.py", KindInterpreted},
		{"A.PY", KindInterpreted},
		{"run.sh", KindShell},
		{"run.bash", KindShell},
		{"build.bat", KindBatch},
		{"build.CMD", KindBatch},
		{"notes.txt", KindUnknown},
		{"Makefile", KindUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.path); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDiscover_OrderAndFreshness(t *testing.T) {
	root := t.TempDir()
	c := NewClassifier(zerolog.Nop())

	writeFile(t, filepath.Join(root, "b.py"), "print('b')\n")
	writeFile(t, filepath.Join(root, "a.sh"), "echo a\n")
	writeFile(t, filepath.Join(root, "sub", "c.py"), "print('c')\n")
	writeFile(t, filepath.Join(root, "readme.md"), "# no\n")
	writeFile(t, filepath.Join(root, "__pycache__", "x.py"), "")
	writeFile(t, filepath.Join(root, ".hidden", "y.py"), "")
	writeFile(t, filepath.Join(root, ".z.py"), "")

	first, err := c.Discover(root)
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	want := []string{
		filepath.Join(root, "a.sh"),
		filepath.Join(root, "b.py"),
		filepath.Join(root, "sub", "c.py"),
	}
	if !reflect.DeepEqual(paths(first), want) {
		t.Fatalf("Discover = %v, want %v", paths(first), want)
	}

	second, _ := c.Discover(root)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Discover differs: %v vs %v", first, second)
	}

	// Changes show up on the very next call.
	writeFile(t, filepath.Join(root, "aa.py"), "")
	if err := os.Remove(filepath.Join(root, "b.py")); err != nil {
		t.Fatal(err)
	}
	third, _ := c.Discover(root)
	want = []string{
		filepath.Join(root, "a.sh"),
		filepath.Join(root, "aa.py"),
		filepath.Join(root, "sub", "c.py"),
	}
	if !reflect.DeepEqual(paths(third), want) {
		t.Errorf("Discover after change = %v, want %v", paths(third), want)
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	c := NewClassifier(zerolog.Nop())
	scripts, err := c.Discover(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Discover error = %v", err)
	}
	if len(scripts) != 0 {
		t.Errorf("expected no scripts, got %v", scripts)
	}
}

func TestIsWebApp(t *testing.T) {
	dir := t.TempDir()
	c := NewClassifier(zerolog.Nop())

	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"plain.py", "import pandas as pd\nprint(1)\n", false},
		{"direct.py", "import streamlit as st\nst.title('x')\n", true},
		{"from.py", "from streamlit import session_state\n", true},
		{"submodule.py", "from streamlit.components.v1 import html\n", true},
		{"indented.py", "if True:\n    import streamlit\n", true},
		{"comment.py", "# import streamlit\n", false},
		{"aliased.py", "st = __import__('streamlit')\n", false},
		{"similar.py", "import streamlit_extras\n", false},
	}
	for _, tt := range tests {
		p := filepath.Join(dir, tt.name)
		writeFile(t, p, tt.content)
		if got := c.IsWebApp(p); got != tt.want {
			t.Errorf("IsWebApp(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if c.IsWebApp(filepath.Join(dir, "missing.py")) {
		t.Error("missing file should not be a web app")
	}
	sh := filepath.Join(dir, "x.sh")
	writeFile(t, sh, "import streamlit\n")
	if c.IsWebApp(sh) {
		t.Error("shell scripts are never web apps")
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(zerolog.Nop())
	tests := []struct {
		path string
		want Kind
	}{
		{"/p/report.py", KindInterpreted},
		{"/p/RUN.SH", KindShell},
		{"/p/build.cmd", KindBatch},
		{"/p/notes.txt", KindUnknown},
		{"/p/no_extension", KindUnknown},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.py")
	writeFile(t, p, "import streamlit as st\n")

	s := NewClassifier(zerolog.Nop()).Inspect(p)
	if s.Kind != KindInterpreted || !s.WebApp {
		t.Errorf("Inspect = %+v", s)
	}
	if s.RelPath(dir) != "app.py" {
		t.Errorf("RelPath = %q", s.RelPath(dir))
	}

	// Recomputed when content changes.
	writeFile(t, p, "print('now plain')\n")
	if NewClassifier(zerolog.Nop()).Inspect(p).WebApp {
		t.Error("WebApp should be false after rewrite")
	}
}

func fakeLookPath(found map[string]string) platform.LookPathFunc {
	return func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		r       Resolver
		path    string
		want    []string
		wantErr error
	}{
		{
			name: "interpreted configured",
			r:    Resolver{Host: platform.Linux, Interpreter: "/opt/py/bin/python"},
			path: "/p/a.py",
			want: []string{"/opt/py/bin/python", "/p/a.py"},
		},
		{
			name: "interpreted from path",
			r:    Resolver{Host: platform.Linux, LookPath: fakeLookPath(map[string]string{"python3": "/usr/bin/python3"})},
			path: "/p/a.py",
			want: []string{"/usr/bin/python3", "/p/a.py"},
		},
		{
			name: "shell prefers bash",
			r:    Resolver{Host: platform.Linux, LookPath: fakeLookPath(map[string]string{"bash": "/bin/bash", "sh": "/bin/sh"})},
			path: "/p/run.sh",
			want: []string{"/bin/bash", "/p/run.sh"},
		},
		{
			name: "shell falls back to sh",
			r:    Resolver{Host: platform.Darwin, LookPath: fakeLookPath(map[string]string{"sh": "/usr/bin/sh"})},
			path: "/p/run.sh",
			want: []string{"/usr/bin/sh", "/p/run.sh"},
		},
		{
			name: "shell with empty path",
			r:    Resolver{Host: platform.Linux, LookPath: fakeLookPath(nil)},
			path: "/p/run.sh",
			want: []string{FallbackShell, "/p/run.sh"},
		},
		{
			name: "batch on windows",
			r:    Resolver{Host: platform.Windows, LookPath: fakeLookPath(nil)},
			path: `C:\p\b.bat`,
			want: []string{"cmd.exe", "/c", `C:\p\b.bat`},
		},
		{
			name:    "batch elsewhere",
			r:       Resolver{Host: platform.Linux, LookPath: fakeLookPath(nil)},
			path:    "/p/b.bat",
			wantErr: ErrPlatformUnsupported,
		},
		{
			name: "unknown runs directly",
			r:    Resolver{Host: platform.Linux, LookPath: fakeLookPath(nil)},
			path: "/p/tool",
			want: []string{"/p/tool"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := tt.r.Resolve(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve error = %v", err)
			}
			if !reflect.DeepEqual(cmd.Argv, tt.want) {
				t.Errorf("Argv = %v, want %v", cmd.Argv, tt.want)
			}
			if cmd.Kind != KindOf(tt.path) {
				t.Errorf("Kind = %v, want %v", cmd.Kind, KindOf(tt.path))
			}
		})
	}
}

func TestResults(t *testing.T) {
	ok := Completed("a.py", "hello\n", "", 0)
	if !ok.Success || ok.Failure != FailureNone || ok.Error != "" {
		t.Errorf("Completed(0) = %+v", ok)
	}

	bad := Completed("a.py", "", "boom", 3)
	if bad.Success || bad.Failure != FailureRuntime || bad.ExitCode != 3 {
		t.Errorf("Completed(3) = %+v", bad)
	}

	nf := NotFound("gone.py")
	if nf.Success || nf.Failure != FailureNotFound || nf.ExitCode != -1 {
		t.Errorf("NotFound = %+v", nf)
	}

	to := TimedOut("slow.py", "partial", "", "1s")
	if !to.TimedOut || to.Success || to.Failure != FailureTimeout || to.Stdout != "partial" {
		t.Errorf("TimedOut = %+v", to)
	}

	if FailureStart.String() != "start_failure" {
		t.Errorf("FailureStart.String() = %q", FailureStart.String())
	}
}
