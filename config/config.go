// Package config loads service configuration from defaults, a YAML file,
// FLOW_ environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable. Nested keys use a double
// underscore: FLOW_ADMIN__BASE_URL sets admin.base_url.
const EnvPrefix = "FLOW_"

// DefaultConfigFile is read when it exists and no file is given.
const DefaultConfigFile = "flow.yaml"

// Config holds all service settings.
type Config struct {
	Listen             string `koanf:"listen"`
	DatabaseURL        string `koanf:"database_url"`
	LogLevel           string `koanf:"log_level"`
	AllowIsolatedTasks bool   `koanf:"allow_isolated_tasks"`
	Admin              Admin  `koanf:"admin"`
}

// Admin holds the remote admin API settings.
type Admin struct {
	BaseURL     string        `koanf:"base_url"`
	OperatorUID string        `koanf:"operator_uid"`
	OwnerGroups string        `koanf:"owner_groups"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen":               ":3000",
		"database_url":         "",
		"log_level":            "info",
		"allow_isolated_tasks": false,
		"admin.base_url":       "http://localhost:8011/bb2admin/v2",
		"admin.operator_uid":   "",
		"admin.owner_groups":   "",
		"admin.timeout":        "30s",
	}
}

// Load builds a Config. cfgFile may be empty; flags may be nil. Only flags
// that were explicitly set override other sources; kebab-case flag names map
// to snake_case keys and "admin-" prefixed flags to the admin section.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// envKey maps FLOW_ADMIN__BASE_URL to admin.base_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// flagKey maps admin-base-url to admin.base_url and log-level to log_level.
func flagKey(name string) string {
	if rest, ok := strings.CutPrefix(name, "admin-"); ok {
		return "admin." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(name, "-", "_")
}
