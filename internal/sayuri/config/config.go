// Package config loads Sayuri's startup configuration from an optional YAML
// file with environment-variable overrides.  Environment always wins, so a
// deployment can ship a baseline sayuri.yaml and override the secrets
// (access token) from the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "4s" or "1m30s" parse
// with time.ParseDuration semantics.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MatrixConfig holds the Matrix transport settings.
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"`
}

// PacerConfig holds the batch pacing knobs. Zero values fall back to the
// pacer package defaults (4s / 2s / 60 per hour).
type PacerConfig struct {
	NormalDelay  Duration `yaml:"normal_delay"`
	FailureDelay Duration `yaml:"failure_delay"`
	MaxPerHour   int      `yaml:"max_per_hour"`
}

// Config is the full startup configuration.
type Config struct {
	DatabasePath string       `yaml:"database_path"`
	LogLevel     string       `yaml:"log_level"`
	LogFormat    string       `yaml:"log_format"`
	Matrix       MatrixConfig `yaml:"matrix"`
	Pacer        PacerConfig  `yaml:"pacer"`
}

// Load reads configuration in three layers: defaults, then the YAML file at
// path (skipped when path is empty or the file does not exist), then
// environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{
		DatabasePath: "./sayuri.db",
		LogLevel:     "info",
		LogFormat:    "text",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// A missing file is fine: env-only deployments are supported.
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SAYURI_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("MATRIX_HOMESERVER"); v != "" {
		cfg.Matrix.Homeserver = v
	}
	if v := os.Getenv("MATRIX_USER_ID"); v != "" {
		cfg.Matrix.UserID = v
	}
	if v := os.Getenv("MATRIX_ACCESS_TOKEN"); v != "" {
		cfg.Matrix.AccessToken = v
	}
	if v := os.Getenv("MATRIX_ROOMS"); v != "" {
		rooms := strings.Split(v, ",")
		for i := range rooms {
			rooms[i] = strings.TrimSpace(rooms[i])
		}
		cfg.Matrix.Rooms = rooms
	}
	if v := os.Getenv("SAYURI_NORMAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pacer.NormalDelay = Duration(d)
		}
	}
	if v := os.Getenv("SAYURI_FAILURE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pacer.FailureDelay = Duration(d)
		}
	}
	if v := os.Getenv("SAYURI_MAX_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pacer.MaxPerHour = n
		}
	}
}

// Validate checks that every required field is present and every optional
// field that is set is sane.
func (c *Config) Validate() error {
	var problems []string

	if c.Matrix.Homeserver == "" {
		problems = append(problems, "matrix.homeserver (MATRIX_HOMESERVER) is required")
	}
	if c.Matrix.UserID == "" {
		problems = append(problems, "matrix.user_id (MATRIX_USER_ID) is required")
	} else if !strings.HasPrefix(c.Matrix.UserID, "@") {
		problems = append(problems, "matrix.user_id must be a full Matrix ID like @sayuri:example.com")
	}
	if c.Matrix.AccessToken == "" {
		problems = append(problems, "matrix.access_token (MATRIX_ACCESS_TOKEN) is required")
	}
	if c.DatabasePath == "" {
		problems = append(problems, "database_path (SAYURI_DB_PATH) is required")
	}
	if c.Pacer.NormalDelay < 0 {
		problems = append(problems, "pacer.normal_delay must not be negative")
	}
	if c.Pacer.FailureDelay < 0 {
		problems = append(problems, "pacer.failure_delay must not be negative")
	}
	if c.Pacer.MaxPerHour < 0 {
		problems = append(problems, "pacer.max_per_hour must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not one of text, json", c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}
