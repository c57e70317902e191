// Package config loads the pipeline configuration from an optional YAML
// file with IMAGINGEST_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file nor environment says otherwise.
const (
	DefaultMaxFileSizeMB    = 512
	DefaultLookupTimeoutSec = 10
	DefaultUploadTimeoutSec = 60
)

// ArchiveConfig holds archive connection settings.
type ArchiveConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RegistryConfig holds patient registry connection settings.
type RegistryConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Config is the complete pipeline configuration.
type Config struct {
	Archive  ArchiveConfig  `yaml:"archive"`
	Registry RegistryConfig `yaml:"registry"`

	MaxFileSizeMB    int64 `yaml:"max_file_size_mb"`
	LookupTimeoutSec int   `yaml:"lookup_timeout_sec"`
	UploadTimeoutSec int   `yaml:"upload_timeout_sec"`

	LogMode string `yaml:"log_mode"`
}

// Default returns a configuration with all defaults set and no endpoints.
func Default() Config {
	return Config{
		MaxFileSizeMB:    DefaultMaxFileSizeMB,
		LookupTimeoutSec: DefaultLookupTimeoutSec,
		UploadTimeoutSec: DefaultUploadTimeoutSec,
		LogMode:          "prod",
	}
}

// Load reads the YAML file at path (skipped when path is empty), then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Archive.URL, "IMAGINGEST_ARCHIVE_URL")
	setString(&c.Archive.Username, "IMAGINGEST_ARCHIVE_USERNAME")
	setString(&c.Archive.Password, "IMAGINGEST_ARCHIVE_PASSWORD")
	setString(&c.Registry.URL, "IMAGINGEST_REGISTRY_URL")
	setString(&c.Registry.Token, "IMAGINGEST_REGISTRY_TOKEN")
	setString(&c.LogMode, "IMAGINGEST_LOG_MODE")
	setInt64(&c.MaxFileSizeMB, "IMAGINGEST_MAX_FILE_SIZE_MB")
	setIntVal(&c.LookupTimeoutSec, "IMAGINGEST_LOOKUP_TIMEOUT_SEC")
	setIntVal(&c.UploadTimeoutSec, "IMAGINGEST_UPLOAD_TIMEOUT_SEC")
}

func (c Config) validate() error {
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive, got %d", c.MaxFileSizeMB)
	}
	if c.LookupTimeoutSec <= 0 || c.UploadTimeoutSec <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// MaxFileBytes converts the configured size limit to bytes.
func (c Config) MaxFileBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// LookupTimeout returns the registry lookup timeout as a duration.
func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutSec) * time.Second
}

// UploadTimeout returns the per-file upload timeout as a duration.
func (c Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSec) * time.Second
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setIntVal(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
