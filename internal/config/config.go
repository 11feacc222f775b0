// Package config handles reading and writing .clipforge/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that cannot run. Callers fail fast on it
// before any remote call.
var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level structure for .clipforge/config.yaml.
type Config struct {
	Version   int             `yaml:"version"`
	StateDir  string          `yaml:"state_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	Execution ExecutionConfig `yaml:"execution"`
	Platforms PlatformsConfig `yaml:"platforms"`
	Phases    PhasesConfig    `yaml:"phases"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig selects the session backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "file" | "sqlite"
	Path   string `yaml:"path"`   // sqlite database file; relative to state_dir
}

// ExecutionConfig controls segment scheduling and remote polling.
type ExecutionConfig struct {
	MaxConcurrency          int `yaml:"max_concurrency"`
	MaxBatchSize            int `yaml:"max_batch_size"`
	MaxRetries              int `yaml:"max_retries"`
	PollIntervalMs          int `yaml:"poll_interval_ms"`
	PollTimeoutS            int `yaml:"poll_timeout_s"`
	AutosaveIntervalS       int `yaml:"autosave_interval_s"`
	SubmitRatePerMin        int `yaml:"submit_rate_per_min"` // 0 = unlimited
	RetentionDays           int `yaml:"retention_days"`
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"` // 0 = disabled
}

// PlatformsConfig names the gateways used for generation.
type PlatformsConfig struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
}

// PhasesConfig toggles the optional pipeline phases. Generation always runs.
type PhasesConfig struct {
	Previz    bool `yaml:"previz"`
	SetDesign bool `yaml:"set_design"`
	Lighting  bool `yaml:"lighting"`
	Upscale   bool `yaml:"upscale"`
}

// MetricsConfig controls OTLP metric export.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

const (
	// Dir is the state directory relative to the project root.
	Dir        = ".clipforge"
	configFile = "config.yaml"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// ReadConfig reads .clipforge/config.yaml from the given project directory.
// dir is the project root (not .clipforge/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, Dir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config, or returns defaults when none exists.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// WriteConfig writes cfg to .clipforge/config.yaml in the given project directory.
// Creates the .clipforge/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, Dir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		StateDir: filepath.Join(Dir, "sessions"),
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   "sessions.db",
		},
		Execution: ExecutionConfig{
			MaxConcurrency:          3,
			MaxBatchSize:            3,
			MaxRetries:              3,
			PollIntervalMs:          10000,
			PollTimeoutS:            600,
			AutosaveIntervalS:       10,
			SubmitRatePerMin:        0,
			RetentionDays:           7,
			CircuitBreakerThreshold: 5,
		},
		Platforms: PlatformsConfig{
			Primary: "jimeng",
		},
		Metrics: MetricsConfig{
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}

// Validate reports the first setting that makes cfg unusable, wrapped in
// ErrInvalid. Platform names are checked against the registry elsewhere.
func (c *Config) Validate() error {
	e := c.Execution
	switch {
	case e.MaxConcurrency < 1:
		return fmt.Errorf("%w: execution.max_concurrency must be at least 1, got %d", ErrInvalid, e.MaxConcurrency)
	case e.MaxBatchSize < 1:
		return fmt.Errorf("%w: execution.max_batch_size must be at least 1, got %d", ErrInvalid, e.MaxBatchSize)
	case e.MaxRetries < 0:
		return fmt.Errorf("%w: execution.max_retries must not be negative, got %d", ErrInvalid, e.MaxRetries)
	case e.PollIntervalMs < 1:
		return fmt.Errorf("%w: execution.poll_interval_ms must be positive, got %d", ErrInvalid, e.PollIntervalMs)
	case e.PollTimeoutS < 1:
		return fmt.Errorf("%w: execution.poll_timeout_s must be positive, got %d", ErrInvalid, e.PollTimeoutS)
	case e.AutosaveIntervalS < 0, e.SubmitRatePerMin < 0, e.RetentionDays < 0, e.CircuitBreakerThreshold < 0:
		return fmt.Errorf("%w: execution settings must not be negative", ErrInvalid)
	}
	if c.Platforms.Primary == "" {
		return fmt.Errorf("%w: platforms.primary is required", ErrInvalid)
	}
	if c.Platforms.Fallback != "" && c.Platforms.Fallback == c.Platforms.Primary {
		return fmt.Errorf("%w: platforms.fallback must differ from platforms.primary", ErrInvalid)
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("%w: storage.driver %q is not one of file, sqlite", ErrInvalid, c.Storage.Driver)
	}
	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		return fmt.Errorf("%w: metrics.endpoint is required when metrics are enabled", ErrInvalid)
	}
	return nil
}

// PollInterval is execution.poll_interval_ms as a duration.
func (e ExecutionConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// PollTimeout is execution.poll_timeout_s as a duration.
func (e ExecutionConfig) PollTimeout() time.Duration {
	return time.Duration(e.PollTimeoutS) * time.Second
}

// AutosaveInterval is execution.autosave_interval_s as a duration.
func (e ExecutionConfig) AutosaveInterval() time.Duration {
	return time.Duration(e.AutosaveIntervalS) * time.Second
}

// Retention is execution.retention_days as a duration.
func (e ExecutionConfig) Retention() time.Duration {
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}

// StatePath resolves state_dir against the project root.
func (c *Config) StatePath(root string) string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(root, c.StateDir)
}

// DatabasePath resolves storage.path against the state directory.
func (c *Config) DatabasePath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.StatePath(root), c.Storage.Path)
}
