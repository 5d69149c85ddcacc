// Package config provides the configuration schema and loader for the
// entunify command line tool. Command line flags override every value.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Format selects the serialization written by export.
type Format string

const (
	// FormatText writes a YAML document.
	FormatText Format = "text"

	// FormatBinary writes the compressed record stream.
	FormatBinary Format = "binary"
)

// IsValid reports whether f is a recognised output format.
func (f Format) IsValid() bool {
	return f == FormatText || f == FormatBinary
}

// Config is the root configuration structure.
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig locates the fragment tree.
type DatabaseConfig struct {
	// Path is the root directory of the fragment database.
	Path string `yaml:"path"`

	// Extra is an optional second tree whose entities override Path.
	Extra string `yaml:"extra"`

	// MapSize sets the editor grid to [-MapSize, MapSize]. Zero keeps the
	// default.
	MapSize int `yaml:"map_size"`

	// Concurrency bounds parallel fragment parsing. Zero means one worker
	// per CPU.
	Concurrency int `yaml:"concurrency"`
}

// ExportConfig holds defaults for the export command.
type ExportConfig struct {
	Output string   `yaml:"output"`
	Format Format   `yaml:"format"`
	Engine bool     `yaml:"engine"`
	Tags   []string `yaml:"tags"`
}

// MetricsConfig controls the Prometheus textfile written on exit.
type MetricsConfig struct {
	// Textfile is the path of the textfile. Empty disables it.
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Database: DatabaseConfig{Path: "fgd"},
		Export:   ExportConfig{Output: "output.yaml", Format: FormatText},
	}
}
