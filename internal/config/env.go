package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOUNDRY_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envSetter applies one environment value to the config.
type envSetter func(c *Config, value string) error

// envMapping maps environment variables to settings.
var envMapping = map[string]envSetter{
	"FOUNDRY_PROJECT_PATH": func(c *Config, v string) error {
		c.Project.Root = v
		return nil
	},
	"FOUNDRY_LOG_LEVEL": func(c *Config, v string) error {
		c.Logging.Level = v
		return nil
	},
	"FOUNDRY_LOG_FORMAT": func(c *Config, v string) error {
		c.Logging.Format = v
		return nil
	},
	"FOUNDRY_INTERPRETER": func(c *Config, v string) error {
		c.Runner.Interpreter = v
		return nil
	},
	"FOUNDRY_RUN_TIMEOUT": func(c *Config, v string) error {
		return c.Runner.Timeout.UnmarshalText([]byte(v))
	},
	"FOUNDRY_WEBAPP_PORT": func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.WebApp.Port = port
		return nil
	},
	"FOUNDRY_POLL_INTERVAL": func(c *Config, v string) error {
		return c.Watcher.PollInterval.UnmarshalText([]byte(v))
	},
	"FOUNDRY_FORCE_POLL": func(c *Config, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		c.Watcher.ForcePoll = b
		return nil
	},
}

// ApplyEnv applies FOUNDRY_* overrides found through lookup.
// Empty values are treated as set.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	for name, set := range envMapping {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
	}
	return nil
}

// parseBool accepts the usual spellings plus yes/no and on/off.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off", "":
		return false, nil
	}
	return strconv.ParseBool(s)
}
