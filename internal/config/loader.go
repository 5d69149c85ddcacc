package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/entunify/pkg/tags"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Database
	if cfg.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if cfg.Database.MapSize < 0 {
		errs = append(errs, fmt.Errorf("database.map_size %d must not be negative", cfg.Database.MapSize))
	}
	if cfg.Database.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("database.concurrency %d must not be negative", cfg.Database.Concurrency))
	}
	if cfg.Database.Extra != "" && filepath.Clean(cfg.Database.Extra) == filepath.Clean(cfg.Database.Path) {
		slog.Warn("database.extra is the same directory as database.path; every entity will collide",
			"path", cfg.Database.Path,
		)
	}

	// Export
	if cfg.Export.Format != "" && !cfg.Export.Format.IsValid() {
		errs = append(errs, fmt.Errorf("export.format %q is invalid; valid values: text, binary", cfg.Export.Format))
	}
	if len(cfg.Export.Tags) > 0 {
		if cfg.Export.Engine {
			slog.Warn("export.tags are ignored in engine mode", "tags", cfg.Export.Tags)
		} else if _, err := tags.Default().Validate(cfg.Export.Tags); err != nil {
			errs = append(errs, fmt.Errorf("export.tags: %w", err))
		}
	}

	return errors.Join(errs...)
}
