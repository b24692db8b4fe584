package config

import (
	"fmt"
	"os"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.DashboardPort < 1 || cfg.Server.DashboardPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.dashboard_port must be between 1 and 65535, got %d", cfg.Server.DashboardPort))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Auth validation
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		errs = append(errs, "auth.token must be set when auth.enabled is true")
	}

	// Cache validation. Budgets are hard requirements; a disk_cache_root
	// that can't be written is only a warning, since the disk tier itself
	// degrades gracefully (it disables itself rather than failing startup).
	if cfg.Cache.MemoryBudgetBytes < 0 {
		errs = append(errs, fmt.Sprintf("cache.memory_budget_bytes must be non-negative, got %d", cfg.Cache.MemoryBudgetBytes))
	}
	if cfg.Cache.DiskBudgetBytes < 0 {
		errs = append(errs, fmt.Sprintf("cache.disk_budget_bytes must be non-negative, got %d", cfg.Cache.DiskBudgetBytes))
	}
	if cfg.Cache.DiskCacheRoot != "" {
		if err := checkWritableParent(cfg.Cache.DiskCacheRoot); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cache.disk_cache_root %q may not be usable: %v\n", cfg.Cache.DiskCacheRoot, err)
		}
	}

	// BudgetAlert validation
	for i, threshold := range cfg.BudgetAlert.AlertThresholds {
		if threshold < 0 || threshold > 100 {
			errs = append(errs, fmt.Sprintf("budget_alert.alert_thresholds[%d] must be between 0 and 100, got %.1f", i, threshold))
		}
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Metrics validation
	if cfg.Metrics.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("metrics.retention_days must be at least 1, got %d", cfg.Metrics.RetentionDays))
	}
	if cfg.Metrics.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("metrics.cache_ttl_seconds must be non-negative, got %d", cfg.Metrics.CacheTTLSeconds))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkWritableParent returns nil if dir already exists (its writability is
// not checked). Otherwise it creates and removes a probe file beside dir in
// dir's parent directory and returns any error from creating it; ancestors
// further up are not tried. It never returns an error that should block
// startup; callers treat the result as advisory only.
func checkWritableParent(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	probe := dir + ".cachecore-writetest"
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
