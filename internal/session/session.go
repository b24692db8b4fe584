// Package session orchestrates one compositor session's cache lifecycle:
// opening the store and tiers, running an Optimize pass over a planned
// node sequence so the prefetch queues are primed, then an Exec pass that
// actually resolves and fills each node's buffer. It also hosts the
// long-running daemon loop (PID file, config hot-reload, background
// pruning, the dashboard server) that a CLI entry point drives.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compositor/cachecore/internal/budgetalert"
	"github.com/compositor/cachecore/internal/cache"
	"github.com/compositor/cachecore/internal/config"
	"github.com/compositor/cachecore/internal/dashboard"
	"github.com/compositor/cachecore/internal/store"
	"github.com/compositor/cachecore/internal/tracing"
	"github.com/compositor/cachecore/internal/version"
)

// Compute produces the buffer for an operation that missed both tiers —
// the stand-in for the node graph's own evaluation, which this module
// never performs itself.
type Compute func(op cache.Operation) []float32

// Session drives one CacheManager through a planned sequence of
// operations: NotePlannedRead for every operation (Optimize), then
// GetOrNewAndPrefetchNext/Put for each in turn (Exec).
type Session struct {
	mgr       *cache.CacheManager
	collector *dashboard.Collector
	st        *store.Store
}

// New builds a Session wired to cfg's tier budgets. pkStore may be nil to
// keep persistent-key mappings in memory only.
func New(cfg *config.Config, pkStore cache.PersistentStore, collector *dashboard.Collector, st *store.Store) *Session {
	mgr := cache.NewCacheManager()
	if pkStore != nil {
		mgr.SetPersistentStore(pkStore)
	}
	return &Session{mgr: mgr, collector: collector, st: st}
}

// Initialize opens both tiers against cfg's budgets and disk cache root.
func (s *Session) Initialize(cfg *config.Config, tree cache.GraphHandle) error {
	ctx := &cache.Context{
		MemoryBudgetBytes: cfg.Cache.MemoryBudgetBytes,
		DiskBudgetBytes:   cfg.Cache.DiskBudgetBytes,
		DiskCacheRoot:     cfg.Cache.DiskCacheRoot,
		Tree:              tree,
	}
	return s.mgr.Initialize(ctx, nil)
}

// Deinitialize tears down both tiers and the view registry. interrupted
// reports whether the run was broken off before completion.
func (s *Session) Deinitialize(interrupted bool) {
	s.mgr.Deinitialize(&cache.Context{InterruptFlag: interrupted})
}

// Manager exposes the underlying CacheManager for callers that need
// direct access (e.g. the dashboard's stats endpoints).
func (s *Session) Manager() *cache.CacheManager { return s.mgr }

// RunPass executes ops against the cache: an Optimize sweep that primes
// the prefetch queues, then an Exec sweep that resolves each operation,
// calling compute on a miss. It records hit/miss/persistent-key metrics
// on the collector and, if a store is attached, fingerprint analytics.
func (s *Session) RunPass(ctx context.Context, ops []cache.Operation, compute Compute) {
	sctx, span := tracing.StartSessionSpan(ctx, "optimize")
	s.mgr.SetMode(cache.ModeOptimize)
	for _, op := range ops {
		s.mgr.NotePlannedRead(op)
	}
	span.End()

	ectx, span := tracing.StartSessionSpan(sctx, "exec")
	defer span.End()
	s.mgr.SetMode(cache.ModeExec)

	for _, op := range ops {
		s.execOne(ectx, op, compute)
	}
}

func (s *Session) execOne(ctx context.Context, op cache.Operation, compute Compute) {
	fp := op.Fingerprint()

	if op.Persistent() {
		if hit, _ := s.mgr.CheckPersistentOpKey(op); s.collector != nil {
			s.collector.RecordPersistentKeyLookup(hit)
		}
	}

	tier := "miss"
	switch {
	case s.mgr.Memory().Has(fp):
		tier = "memory"
	case s.mgr.Disk().Has(fp):
		tier = "disk"
	}

	buf, hit := s.mgr.GetOrNewAndPrefetchNext(ctx, op)
	if s.collector != nil {
		s.collector.RecordGet(tier)
	}

	if !hit {
		buf = compute(op)
		if err := s.mgr.Put(ctx, op, buf); err != nil {
			log.Error().Err(err).Msg("session: put failed")
			if s.collector != nil {
				s.collector.RecordError(tier, "put")
			}
		} else if s.collector != nil {
			s.collector.RecordPut()
		}
	}

	if s.st != nil {
		if err := s.st.RecordFingerprintHit(fp); err != nil {
			log.Error().Err(err).Msg("session: recording fingerprint hit failed")
		}
	}

	if s.collector != nil {
		s.reportTierUsage()
	}
}

func (s *Session) reportTierUsage() {
	mem := s.mgr.Memory()
	disk := s.mgr.Disk()
	s.collector.SetTierUsage("memory", mem.CurrentBytes(), mem.Budget(), mem.Len())
	s.collector.SetTierUsage("disk", disk.CurrentBytes(), disk.Budget(), disk.Len())
}

// Run is the long-running service orchestrator: it sets up logging, opens
// the store, writes a PID file, starts the config watcher and periodic
// pruner, serves the dashboard (if enabled), and blocks until a shutdown
// signal or fatal error. This is the daemon loop a CLI's "start" command
// drives.
func Run(cfg *config.Config, foreground bool) error {
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "cachecore.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "cachecore").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("cachecore starting")

	if IsRunning(dataDir) {
		return fmt.Errorf("cachecore is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	dbPath := filepath.Join(dataDir, "cachecore.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	log.Info().Str("db_path", dbPath).Msg("store opened")

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(context.Background(), "cachecore", version.Version,
			cfg.Tracing.Exporter, cfg.Tracing.Endpoint, cfg.Tracing.SampleRate, cfg.Tracing.Insecure)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize tracing; continuing without it")
		} else {
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Error().Err(err).Msg("tracing shutdown error")
				}
			}()
		}
	}

	collector := dashboard.NewCollector()
	alerts := budgetalert.NewChecker(cfg.BudgetAlert.AlertThresholds, cfg.BudgetAlert.Enabled)

	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()
	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				zerolog.SetGlobalLevel(parseLogLevel(newCfg.Server.LogLevel))
				alerts = budgetalert.NewChecker(newCfg.BudgetAlert.AlertThresholds, newCfg.BudgetAlert.Enabled)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(pruneCtx, st, cfg.Metrics.RetentionDays)
	}()

	errCh := make(chan error, 1)
	var dashServer *dashboard.DashboardServer
	if cfg.Dashboard.Enabled {
		dashAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.DashboardPort)
		dashServer = dashboard.NewDashboardServer(collector, st, alerts, cfg, dashAddr)

		go func() {
			if err := dashServer.Start(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("dashboard server: %w", err)
			}
		}()

		log.Info().Int("dashboard_port", cfg.Server.DashboardPort).Msg("cachecore is ready")
		if foreground {
			fmt.Printf("\n  cachecore is running!\n  Dashboard: http://localhost:%d\n\n", cfg.Server.DashboardPort)
		}
	} else {
		log.Info().Msg("cachecore is ready (dashboard disabled)")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down...")
	if dashServer != nil {
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("dashboard server shutdown error")
		}
	}

	pruneCancel()
	<-prunerDone
	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("cachecore stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("cachecore does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("cachecore is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to cachecore (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return nil
}

// Status checks if the daemon is running and prints a summary fetched
// from the dashboard API.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("cachecore is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("cachecore is running (PID %d)\n", pid)

	dashURL := fmt.Sprintf("http://localhost:%d/api/stats", cfg.Server.DashboardPort)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(dashURL)
	if err != nil {
		fmt.Println("  (dashboard unreachable)")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	var stats dashboard.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil
	}

	fmt.Printf("\n  Uptime:          %s\n", stats.Uptime)
	fmt.Printf("  Total gets:      %d\n", stats.TotalGets)
	fmt.Printf("  Total puts:      %d\n", stats.TotalPuts)
	fmt.Printf("  Hit rate:        %.1f%% (%d memory / %d disk / %d miss)\n",
		stats.HitRate, stats.MemoryHits, stats.DiskHits, stats.Misses)
	fmt.Printf("  Rehomed to disk: %d\n", stats.RehomedToDisk)

	return nil
}

// runPruner periodically prunes old analytics rows from the store.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("data pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old data")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
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
