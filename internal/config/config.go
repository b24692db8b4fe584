package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for the cache daemon.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"       toml:"server"`
	Auth        AuthConfig        `mapstructure:"auth"         toml:"auth"`
	Cache       CacheConfig       `mapstructure:"cache"        toml:"cache"`
	BudgetAlert BudgetAlertConfig `mapstructure:"budget_alert" toml:"budget_alert"`
	Tracing     TracingConfig     `mapstructure:"tracing"      toml:"tracing"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"    toml:"dashboard"`
	Metrics     MetricsConfig     `mapstructure:"metrics"      toml:"metrics"`
}

// ServerConfig holds the dashboard HTTP server settings.
type ServerConfig struct {
	BindAddress   string `mapstructure:"bind_address"    toml:"bind_address"`
	DashboardPort int    `mapstructure:"dashboard_port"  toml:"dashboard_port"`
	LogLevel      string `mapstructure:"log_level"       toml:"log_level"`
	DataDir       string `mapstructure:"data_dir"        toml:"data_dir"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"     toml:"tls_enabled"`
	CertFile      string `mapstructure:"cert_file"       toml:"cert_file"`
	KeyFile       string `mapstructure:"key_file"        toml:"key_file"`
	ReadTimeout   int    `mapstructure:"read_timeout"    toml:"read_timeout"`
	WriteTimeout  int    `mapstructure:"write_timeout"   toml:"write_timeout"`
	IdleTimeout   int    `mapstructure:"idle_timeout"    toml:"idle_timeout"`
	MaxBodySize   int64  `mapstructure:"max_body_size"   toml:"max_body_size"`
}

// AuthConfig holds the dashboard authentication settings.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Token   string `mapstructure:"token"   toml:"token"`
}

// CacheConfig controls the tiered buffer cache: how much memory and disk it
// may occupy, where the disk tier's files live, and whether persistent-key
// mappings survive a restart.
type CacheConfig struct {
	MemoryBudgetBytes int64  `mapstructure:"memory_budget_bytes"   toml:"memory_budget_bytes"`
	DiskBudgetBytes   int64  `mapstructure:"disk_budget_bytes"     toml:"disk_budget_bytes"`
	DiskCacheRoot     string `mapstructure:"disk_cache_root"       toml:"disk_cache_root"`
	PersistKeysToDisk bool   `mapstructure:"persist_keys_to_disk"  toml:"persist_keys_to_disk"`
}

// BudgetAlertConfig controls the percentage-of-budget thresholds that raise
// an alert for a tier (see internal/budgetalert).
type BudgetAlertConfig struct {
	Enabled         bool      `mapstructure:"enabled"          toml:"enabled"`
	AlertThresholds []float64 `mapstructure:"alert_thresholds" toml:"alert_thresholds"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`    // skip TLS for dev
}

// DashboardConfig controls the read-only stats dashboard.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"         toml:"enabled"`
	AutoOpen       bool     `mapstructure:"auto_open"       toml:"auto_open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// MetricsConfig controls retention of fingerprint/tier-usage analytics.
type MetricsConfig struct {
	RetentionDays   int `mapstructure:"retention_days"    toml:"retention_days"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (CACHECORE_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.cachecore/cachecore.toml
//  4. ./cachecore.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Set all defaults from the default config so viper knows every key.
	setViperDefaults(v)

	// Environment variable overlay: CACHECORE_SERVER_DASHBOARD_PORT etc.
	v.SetEnvPrefix("CACHECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Determine which file(s) to read.
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".cachecore"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("cachecore")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file exists we still proceed with defaults + env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Store the resolved config file path.
	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Expand ~ in data_dir and disk_cache_root.
	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	cfg.Cache.DiskCacheRoot = expandHome(cfg.Cache.DiskCacheRoot)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.cachecore/cachecore.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".cachecore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and merges it into the current config.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	// Persist to the active config file so changes survive restart.
	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.dashboard_port", d.Server.DashboardPort)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Auth
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)

	// Cache
	v.SetDefault("cache.memory_budget_bytes", d.Cache.MemoryBudgetBytes)
	v.SetDefault("cache.disk_budget_bytes", d.Cache.DiskBudgetBytes)
	v.SetDefault("cache.disk_cache_root", d.Cache.DiskCacheRoot)
	v.SetDefault("cache.persist_keys_to_disk", d.Cache.PersistKeysToDisk)

	// BudgetAlert
	v.SetDefault("budget_alert.enabled", d.BudgetAlert.Enabled)
	v.SetDefault("budget_alert.alert_thresholds", d.BudgetAlert.AlertThresholds)

	// Dashboard
	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.auto_open", d.Dashboard.AutoOpen)
	v.SetDefault("dashboard.allowed_origins", d.Dashboard.AllowedOrigins)

	// Metrics
	v.SetDefault("metrics.retention_days", d.Metrics.RetentionDays)
	v.SetDefault("metrics.cache_ttl_seconds", d.Metrics.CacheTTLSeconds)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
