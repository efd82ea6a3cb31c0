// Package config loads foundry settings from a TOML or YAML file and the
// environment, and describes the on-disk layout of a project folder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all foundry settings.
type Config struct {
	Project ProjectConfig `toml:"project" yaml:"project"`
	Runner  RunnerConfig  `toml:"runner" yaml:"runner"`
	WebApp  WebAppConfig  `toml:"webapp" yaml:"webapp"`
	Watcher WatcherConfig `toml:"watcher" yaml:"watcher"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// ProjectConfig locates the project folder and its conventional subfolders.
// Subfolder paths are relative to Root.
type ProjectConfig struct {
	Root       string `toml:"root" yaml:"root"`
	InputDir   string `toml:"input_dir" yaml:"input_dir"`
	OutputDir  string `toml:"output_dir" yaml:"output_dir"`
	ScriptsDir string `toml:"scripts_dir" yaml:"scripts_dir"`
	MetaDir    string `toml:"meta_dir" yaml:"meta_dir"`
}

// RunnerConfig configures script execution.
type RunnerConfig struct {
	// Interpreter runs interpreted scripts. Empty means python3 or python from PATH.
	Interpreter string `toml:"interpreter" yaml:"interpreter"`
	// Timeout bounds a foreground run.
	Timeout Duration `toml:"timeout" yaml:"timeout"`
	// StopGrace is how long a terminated process gets before it is killed.
	StopGrace Duration `toml:"stop_grace" yaml:"stop_grace"`
	// OpenBrowser opens local URLs found in terminal-launched scripts.
	OpenBrowser bool `toml:"open_browser" yaml:"open_browser"`
	// BrowserDelay is the wait before opening those URLs.
	BrowserDelay Duration `toml:"browser_delay" yaml:"browser_delay"`
}

// WebAppConfig configures web-app sessions.
type WebAppConfig struct {
	// URLTimeout bounds the wait for the server to announce its URL.
	URLTimeout Duration `toml:"url_timeout" yaml:"url_timeout"`
	// Port pins the server port. Zero lets the framework choose.
	Port int `toml:"port" yaml:"port"`
	// ExtraArgs are appended to the run command.
	ExtraArgs []string `toml:"extra_args" yaml:"extra_args"`
}

// WatcherConfig configures change detection.
type WatcherConfig struct {
	PollInterval   Duration `toml:"poll_interval" yaml:"poll_interval"`
	Debounce       Duration `toml:"debounce" yaml:"debounce"`
	DebounceExpiry Duration `toml:"debounce_expiry" yaml:"debounce_expiry"`
	// PushGrace is the liveness probe delay after subscribing to OS notifications.
	PushGrace Duration `toml:"push_grace" yaml:"push_grace"`
	// ForcePoll skips OS notifications entirely.
	ForcePoll bool `toml:"force_poll" yaml:"force_poll"`
	// ScriptGate is the secondary script-change debounce applied by the CLI.
	ScriptGate Duration `toml:"script_gate" yaml:"script_gate"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Root:       ".",
			InputDir:   "input_folder",
			OutputDir:  "output_folder",
			ScriptsDir: filepath.Join("app_folder", "scripts"),
			MetaDir:    filepath.Join("app_folder", "meta_data"),
		},
		Runner: RunnerConfig{
			Timeout:      Duration(5 * time.Minute),
			StopGrace:    Duration(2 * time.Second),
			OpenBrowser:  true,
			BrowserDelay: Duration(2 * time.Second),
		},
		WebApp: WebAppConfig{
			URLTimeout: Duration(30 * time.Second),
		},
		Watcher: WatcherConfig{
			PollInterval:   Duration(2 * time.Second),
			Debounce:       Duration(500 * time.Millisecond),
			DebounceExpiry: Duration(10 * time.Second),
			PushGrace:      Duration(100 * time.Millisecond),
			ScriptGate:     Duration(3 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file at path over the defaults and applies
// FOUNDRY_* environment overrides. An empty path or a missing file
// yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses data into cfg based on the file extension.
func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return nil
}

// Validate checks settings for values the rest of the system cannot use.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		d    Duration
	}{
		{"runner.timeout", c.Runner.Timeout},
		{"runner.stop_grace", c.Runner.StopGrace},
		{"webapp.url_timeout", c.WebApp.URLTimeout},
		{"watcher.poll_interval", c.Watcher.PollInterval},
		{"watcher.debounce_expiry", c.Watcher.DebounceExpiry},
	}
	for _, chk := range checks {
		if chk.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidValue, chk.name, chk.d)
		}
	}
	if c.Watcher.Debounce < 0 {
		return fmt.Errorf("%w: watcher.debounce must not be negative", ErrInvalidValue)
	}
	if c.WebApp.Port < 0 || c.WebApp.Port > 65535 {
		return fmt.Errorf("%w: webapp.port %d out of range", ErrInvalidValue, c.WebApp.Port)
	}
	return nil
}

// Layout resolves the project paths against the configured root.
func (c *Config) Layout() (Layout, error) {
	return NewLayout(c.Project)
}
