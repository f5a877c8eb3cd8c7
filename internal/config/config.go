// Package config loads controller settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region config
// Config is the full controller configuration.
type Config struct {
	Addr                string              `yaml:"addr"`
	TickInterval        time.Duration       `yaml:"tick_interval"`
	Window              time.Duration       `yaml:"window"`
	Quiet               time.Duration       `yaml:"quiet"`
	Override            time.Duration       `yaml:"override"`
	ScoreTimeout        time.Duration       `yaml:"score_timeout"`
	EmitTimeout         time.Duration       `yaml:"emit_timeout"`
	RefreshDebounce     time.Duration       `yaml:"refresh_debounce"`
	RefreshTimeout      time.Duration       `yaml:"refresh_timeout"`
	RefreshRetryBackoff time.Duration       `yaml:"refresh_retry_backoff"`
	CodecAddr           string              `yaml:"codec_addr"`
	DBPath              string              `yaml:"db"`
	InitialStyle        style.Style         `yaml:"initial_style"`
	SessionID           string              `yaml:"session_id"`
	LogLevel            string              `yaml:"log_level"`
	LogPretty           bool                `yaml:"log_pretty"`
	HostToken           string              `yaml:"host_token"`
	AllowedOrigins      []string            `yaml:"allowed_origins"`
	Context             state.PromptContext `yaml:"context"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		TickInterval:        5 * time.Second,
		Window:              60 * time.Second,
		Quiet:               120 * time.Second,
		Override:            120 * time.Second,
		ScoreTimeout:        4 * time.Second,
		EmitTimeout:         5 * time.Second,
		RefreshDebounce:     250 * time.Millisecond,
		RefreshTimeout:      10 * time.Second,
		RefreshRetryBackoff: 500 * time.Millisecond,
		CodecAddr:           "localhost:50051",
		DBPath:              "facilitator.db",
		InitialStyle:        style.Default,
		LogLevel:            "INFO",
		AllowedOrigins:      []string{"*"},
	}
}

// #endregion config

// #region load
// Load reads envFile (skipped if missing), then the YAML file named by
// FACILITATOR_CONFIG if set, then the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("FACILITATOR_CONFIG"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// MergeFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current value.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment keys onto c. lookup is usually os.LookupEnv.
// CODEC_ADDR set to the empty string disables the backend.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	nonEmpty := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	seconds := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = time.Duration(n) * time.Second
		}
	}

	nonEmpty("FACILITATOR_ADDR", &c.Addr)
	dur("TICK_INTERVAL", &c.TickInterval)
	seconds("WINDOW_SECONDS", &c.Window)
	seconds("QUIET_SECONDS", &c.Quiet)
	seconds("OVERRIDE_SECONDS", &c.Override)
	dur("SCORE_TIMEOUT", &c.ScoreTimeout)
	dur("EMIT_TIMEOUT", &c.EmitTimeout)
	dur("REFRESH_DEBOUNCE", &c.RefreshDebounce)
	dur("REFRESH_TIMEOUT", &c.RefreshTimeout)
	dur("REFRESH_RETRY_BACKOFF", &c.RefreshRetryBackoff)
	str("CODEC_ADDR", &c.CodecAddr)
	nonEmpty("FACILITATOR_DB", &c.DBPath)
	nonEmpty("SESSION_ID", &c.SessionID)
	nonEmpty("LOG_LEVEL", &c.LogLevel)
	str("HOST_TOKEN", &c.HostToken)

	if v, ok := lookup("INITIAL_STYLE"); ok && v != "" {
		c.InitialStyle = style.Style(v)
	}
	if v, ok := lookup("LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_PRETTY: %w", err))
		} else {
			c.LogPretty = b
		}
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion load

// #region validate
// Validate rejects settings the controller cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("window must be positive, got %s", c.Window))
	}
	if c.Quiet < 0 {
		errs = append(errs, fmt.Errorf("quiet must not be negative, got %s", c.Quiet))
	}
	if c.Override < 0 {
		errs = append(errs, fmt.Errorf("override must not be negative, got %s", c.Override))
	}
	if c.RefreshDebounce < 0 {
		errs = append(errs, fmt.Errorf("refresh debounce must not be negative, got %s", c.RefreshDebounce))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, fmt.Errorf("refresh timeout must be positive, got %s", c.RefreshTimeout))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if _, err := style.Parse(string(c.InitialStyle)); err != nil {
		errs = append(errs, fmt.Errorf("initial style: %w", err))
	}
	return errors.Join(errs...)
}

// #endregion validate
