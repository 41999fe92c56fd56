package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the sqlitez CLI configuration.
type Config struct {
	// Database to operate on
	Database DatabaseConfig `yaml:"database"`

	// Bundled database shipped as an asset
	Assets AssetsConfig `yaml:"assets"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig selects the database file and driver.
type DatabaseConfig struct {
	Path    string   `yaml:"path"`
	Driver  string   `yaml:"driver"`  // sqlite3 (cgo), sqlite (pure Go)
	Pragmas []string `yaml:"pragmas"` // nil = driver defaults for file databases
	Timeout string   `yaml:"timeout"` // per-command deadline
}

// AssetsConfig describes a bundled database and its upgrade scripts.
type AssetsConfig struct {
	// Dir is the local directory standing in for the asset file system.
	Dir string `yaml:"dir"`
	// AssetDir is the subdirectory of Dir holding the database and scripts.
	AssetDir string `yaml:"asset_dir"`
	Name     string `yaml:"name"`
	Version  int    `yaml:"version"`
	// ForcedUpgradeVersion replaces stored copies older than it.
	ForcedUpgradeVersion int `yaml:"forced_upgrade_version"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:    "data/sqlitez.db",
			Driver:  "sqlite3",
			Timeout: "30s",
		},
		Assets: AssetsConfig{
			Dir:      "assets",
			AssetDir: "databases",
			Version:  1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("SQLITEZ_DB"); path != "" {
		c.Database.Path = path
	}
	if driver := os.Getenv("SQLITEZ_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dir := os.Getenv("SQLITEZ_ASSETS"); dir != "" {
		c.Assets.Dir = dir
	}
}

// GetTimeout returns the per-command deadline as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Database.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ValidDrivers lists the registered SQLite driver names.
var ValidDrivers = []string{"sqlite3", "sqlite"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path not configured (set database.path or SQLITEZ_DB)")
	}

	validDriver := false
	for _, d := range ValidDrivers {
		if c.Database.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid driver: %s (valid: %v)", c.Database.Driver, ValidDrivers)
	}

	if c.Assets.Name != "" && c.Assets.Version < 1 {
		return fmt.Errorf("asset version must be >= 1, was %d", c.Assets.Version)
	}

	if err := c.Logging.validate(); err != nil {
		return err
	}
	return nil
}
