package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. It is a convenience wrapper
// around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOQUI_OPENAI_API_KEY"); v != "" {
		cfg.Realtime.APIKey = v
	}
	if v := os.Getenv("LOQUI_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	if cfg.Realtime.APIKey == "" {
		slog.Warn("realtime.api_key is empty; sessions against the live endpoint will fail to mint credentials")
	}
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; using the in-memory store, sessions will not survive a restart")
	}

	a := cfg.Analyzer
	if a.CaptureThreshold < 0 || a.CaptureThreshold > 1 {
		errs = append(errs, fmt.Errorf("analyzer.capture_threshold %.3f is out of range [0, 1]", a.CaptureThreshold))
	}
	if a.PlaybackThreshold < 0 || a.PlaybackThreshold > 1 {
		errs = append(errs, fmt.Errorf("analyzer.playback_threshold %.3f is out of range [0, 1]", a.PlaybackThreshold))
	}
	if a.Smoothing < 0 || a.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("analyzer.smoothing %.3f is out of range [0, 1)", a.Smoothing))
	}
	if a.WindowSize != 0 && (a.WindowSize < 256 || a.WindowSize > 8192 || a.WindowSize&(a.WindowSize-1) != 0) {
		errs = append(errs, fmt.Errorf("analyzer.window_size %d must be a power of two between 256 and 8192", a.WindowSize))
	}

	if cfg.Session.PersistTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("session.persist_timeout_ms %d must not be negative", cfg.Session.PersistTimeoutMS))
	}

	return errors.Join(errs...)
}
