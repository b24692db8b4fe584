package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 9091
log_level = "debug"
data_dir = "` + dir + `"

[cache]
memory_budget_bytes = 1048576
disk_budget_bytes = 10485760
disk_cache_root = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 9091 {
		t.Errorf("DashboardPort: got %d, want 9091", cfg.Server.DashboardPort)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Cache.MemoryBudgetBytes != 1048576 {
		t.Errorf("MemoryBudgetBytes: got %d, want 1048576", cfg.Cache.MemoryBudgetBytes)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 8678
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("CACHECORE_SERVER_DASHBOARD_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 8888 {
		t.Errorf("DashboardPort with env override: got %d, want 8888", cfg.Server.DashboardPort)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
dashboard_port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.DashboardPort != DefaultDashboardPort {
		t.Errorf("DashboardPort: got %d, want %d", cfg.Server.DashboardPort, DefaultDashboardPort)
	}
	if cfg.Cache.MemoryBudgetBytes != DefaultMemoryBudgetBytes {
		t.Errorf("MemoryBudgetBytes: got %d, want %d", cfg.Cache.MemoryBudgetBytes, DefaultMemoryBudgetBytes)
	}
	if cfg.Cache.DiskBudgetBytes != DefaultDiskBudgetBytes {
		t.Errorf("DiskBudgetBytes: got %d, want %d", cfg.Cache.DiskBudgetBytes, DefaultDiskBudgetBytes)
	}
	if !cfg.Cache.PersistKeysToDisk {
		t.Error("PersistKeysToDisk: got false, want true")
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	// Reset to ensure clean state.
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
dashboard_port = 9998
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.DashboardPort != 9998 {
		t.Errorf("DashboardPort after import: got %d, want 9998", cfg.Server.DashboardPort)
	}

	// Reset to default to not affect other tests.
	set(DefaultConfig())
}
