// Package config loads chunk cache configuration from environment
// variables, a YAML file, and defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dittofs/chunkcache/internal/bytesize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level chunk cache configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (CHUNKCACHE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Environment variables override only keys present in the loaded file.
// When no file is found, Load returns the defaults and reads no
// environment variables.
type Config struct {
	// Cache configures the chunk cache itself: capacity, chunk size,
	// hash table size, and memory backend.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls whether Prometheus metrics are collected.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CacheConfig mirrors chunkcache.Config with mapstructure/yaml tags and
// validation, decoupling the wire/file representation from the package
// that actually consumes it.
type CacheConfig struct {
	// Enabled turns the cache on. When false, Setup still succeeds but
	// every Get is a pass-through Miss.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Capacity bounds total bytes resident across all chunks. Supports
	// human-readable sizes: "1Gi", "512Mi", "100MB".
	Capacity bytesize.ByteSize `mapstructure:"capacity" validate:"required_if=Enabled true" yaml:"capacity"`

	// ChunkSize is the fixed granularity of cache admission. Supports
	// human-readable sizes: "64Ki", "1Mi".
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" validate:"required_if=Enabled true" yaml:"chunk_size"`

	// HashSize is the number of buckets in the hash index. Clamped to
	// [chunkcache.MinHashSize, chunkcache.MaxHashSize] if non-zero;
	// zero selects a fixed default of 65536 buckets.
	HashSize uint32 `mapstructure:"hash_size" yaml:"hash_size"`

	// Backend selects the memory allocator: "dram" (default) or "file"
	// for an mmap'd persistent-memory-backed region.
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=dram file" yaml:"backend"`

	// DevicePath is the backing file path for Backend == "file".
	DevicePath string `mapstructure:"device_path" validate:"required_if=Backend file" yaml:"device_path,omitempty"`

	// EvictInterval is how often the background evictor checks whether
	// residency exceeds Capacity.
	EvictInterval time.Duration `mapstructure:"evict_interval" yaml:"evict_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled controls whether the cache records Prometheus metrics. No
	// HTTP endpoint serves them.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is validated and defaulted, but no command listens on it.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if !found {
		return cfg, nil
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if the
// requested file doesn't exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns a Config populated with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with defaults. Zero values (0, "") of
// fields that have a default are replaced; explicit values are preserved.
// Boolean fields and HashSize are left as they are.
func ApplyDefaults(cfg *Config) {
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 1 * bytesize.GiB
	}
	if cfg.Cache.ChunkSize == 0 {
		cfg.Cache.ChunkSize = 1 * bytesize.MiB
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "dram"
	}
	if cfg.Cache.EvictInterval == 0 {
		cfg.Cache.EvictInterval = time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// Validate checks cfg against its struct tags using go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CHUNKCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize so
// config files can use human-readable sizes like "1Gi" or "64Ki".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files
// can use human-readable durations like "30s" or "1m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chunkcache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chunkcache")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
