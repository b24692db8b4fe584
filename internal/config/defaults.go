package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultDashboardPort is the default port for the dashboard server.
const DefaultDashboardPort = 8678

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.cachecore"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "cachecore.toml"

// DefaultMemoryBudgetBytes is the default memory tier budget (256 MiB).
const DefaultMemoryBudgetBytes int64 = 256 << 20

// DefaultDiskBudgetBytes is the default disk tier budget (4 GiB).
const DefaultDiskBudgetBytes int64 = 4 << 30

// DefaultDiskCacheRoot is the default disk cache directory (before tilde expansion).
const DefaultDiskCacheRoot = "~/.cachecore/diskcache"

// DefaultRetentionDays is the default analytics retention in days.
const DefaultRetentionDays = 30

// DefaultCacheTTL is the default dashboard stats cache TTL in seconds.
const DefaultCacheTTL = 5

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
const DefaultWriteTimeout = 30

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (1 MB).
const DefaultMaxBodySize = 1 << 20

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "cachecore"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// DefaultBudgetAlertThresholds are the default alert thresholds (percentages
// of a tier's budget in use).
var DefaultBudgetAlertThresholds = []float64{50, 75, 90}

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:   DefaultBindAddress,
			DashboardPort: DefaultDashboardPort,
			LogLevel:      DefaultLogLevel,
			DataDir:       DefaultDataDir,
			TLSEnabled:    false,
			CertFile:      "",
			KeyFile:       "",
			ReadTimeout:   DefaultReadTimeout,
			WriteTimeout:  DefaultWriteTimeout,
			IdleTimeout:   DefaultIdleTimeout,
			MaxBodySize:   DefaultMaxBodySize,
		},
		Auth: AuthConfig{
			Enabled: false,
			Token:   "",
		},
		Cache: CacheConfig{
			MemoryBudgetBytes: DefaultMemoryBudgetBytes,
			DiskBudgetBytes:   DefaultDiskBudgetBytes,
			DiskCacheRoot:     DefaultDiskCacheRoot,
			PersistKeysToDisk: true,
		},
		BudgetAlert: BudgetAlertConfig{
			Enabled:         true,
			AlertThresholds: DefaultBudgetAlertThresholds,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			AutoOpen:       false,
			AllowedOrigins: []string{"http://localhost:8678"},
		},
		Metrics: MetricsConfig{
			RetentionDays:   DefaultRetentionDays,
			CacheTTLSeconds: DefaultCacheTTL,
		},
	}
}
