package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/compositor/cachecore/internal/budgetalert"
	"github.com/compositor/cachecore/internal/config"
	"github.com/compositor/cachecore/internal/store"
	"github.com/compositor/cachecore/web"
)

// DashboardServer serves the read-only web dashboard and JSON API for live
// tier metrics, fingerprint and persistent-key analytics, and budget
// alerts. It never mutates cache state: every route reads from the
// Collector or the Store.
type DashboardServer struct {
	router    chi.Router
	collector *Collector
	store     *store.Store
	alerts    *budgetalert.Checker
	cfg       *config.Config
	addr      string
	server    *http.Server
}

// NewDashboardServer creates a new DashboardServer wired to the given
// collector, store, budget alert checker, config, and listen address.
func NewDashboardServer(collector *Collector, st *store.Store, alerts *budgetalert.Checker, cfg *config.Config, addr string) *DashboardServer {
	d := &DashboardServer{
		collector: collector,
		store:     st,
		alerts:    alerts,
		cfg:       cfg,
		addr:      addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(d.corsMiddleware)

	r.Get("/api/stats", d.handleStats)
	r.Get("/api/stats/history", d.handleStatsHistory)
	r.Get("/api/fingerprints", d.handleFingerprints)
	r.Get("/api/budget-alerts", d.handleBudgetAlerts)
	r.Get("/api/config", d.handleGetConfig)
	r.Get("/api/health", d.handleHealth)

	// Prometheus metrics endpoint.
	r.Get("/metrics", PrometheusHandler(collector))

	// Static file serving from embedded filesystem.
	staticFS := http.FileServer(http.FS(web.StaticFS()))
	r.Handle("/static/*", http.StripPrefix("/static/", staticFS))

	// Dashboard HTML (catch-all).
	r.Get("/", d.handleDashboard)
	r.Get("/*", d.handleDashboard)

	d.router = r
	return d
}

// Start begins listening on the configured address. It blocks until the
// server is shut down or an error occurs.
func (d *DashboardServer) Start() error {
	d.server = &http.Server{
		Addr:         d.addr,
		Handler:      d.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", d.addr).Msg("dashboard server starting")
	if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the dashboard server.
func (d *DashboardServer) Shutdown(ctx context.Context) error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown(ctx)
}

// handleHealth returns a simple health check response.
func (d *DashboardServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns the current in-memory collector statistics.
func (d *DashboardServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.collector.Stats())
}

// handleStatsHistory returns the most recent tier usage snapshot recorded
// in the store for the requested tier (?tier=memory|disk, default
// "memory"), as a "history" list of at most one entry.
func (d *DashboardServer) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	tier := r.URL.Query().Get("tier")
	if tier == "" {
		tier = "memory"
	}

	stat, ok, err := d.store.LatestTierUsage(tier)
	if err != nil {
		log.Error().Err(err).Str("tier", tier).Msg("failed to query tier usage history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tier": tier, "history": []interface{}{}})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":    tier,
		"history": []store.TierStat{stat},
	})
}

// handleFingerprints returns the most frequently hit fingerprints recorded
// in the store (?limit=N, default 50).
func (d *DashboardServer) handleFingerprints(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 1000 {
		limit = 50
	}

	fingerprints, err := d.store.TopFingerprints(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to query top fingerprints")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if fingerprints == nil {
		fingerprints = []store.Fingerprint{}
	}

	writeJSON(w, http.StatusOK, fingerprints)
}

// handleBudgetAlerts reports, for each tier currently tracked by the
// collector, whether its usage has crossed a configured alert threshold.
func (d *DashboardServer) handleBudgetAlerts(w http.ResponseWriter, _ *http.Request) {
	if d.alerts == nil || !d.alerts.Enabled() {
		writeJSON(w, http.StatusOK, []budgetalert.Alert{})
		return
	}

	usages := make([]budgetalert.TierUsage, 0, 2)
	for _, tier := range []string{"memory", "disk"} {
		for _, g := range d.collector.TierBytes().snapshot() {
			if g.labels["tier"] != tier {
				continue
			}
			var budget, entries float64
			for _, b := range d.collector.TierBudget().snapshot() {
				if b.labels["tier"] == tier {
					budget = b.value
				}
			}
			for _, e := range d.collector.TierEntries().snapshot() {
				if e.labels["tier"] == tier {
					entries = e.value
				}
			}
			usages = append(usages, budgetalert.TierUsage{
				Tier:        tier,
				BytesUsed:   int64(g.value),
				BytesBudget: int64(budget),
				EntryCount:  int(entries),
			})
		}
	}

	alerts := d.alerts.CheckAll(usages...)
	if alerts == nil {
		alerts = []budgetalert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleGetConfig returns the current configuration with sensitive keys
// redacted (auth tokens and the like).
func (d *DashboardServer) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := config.Get()

	data, err := json.Marshal(cfg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "serialisation error"})
		return
	}

	var cfgMap map[string]interface{}
	if err := json.Unmarshal(data, &cfgMap); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "serialisation error"})
		return
	}

	redactKeys(cfgMap)
	writeJSON(w, http.StatusOK, cfgMap)
}

// handleDashboard serves the embedded HTML dashboard.
func (d *DashboardServer) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	data, err := web.Assets.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "dashboard not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// --- helpers ---

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// queryInt reads an integer query parameter with a default fallback.
func queryInt(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}

// redactKeys recursively walks a map and replaces any string value whose
// key contains "key", "secret", or "token" (case-insensitive) with "****".
func redactKeys(m map[string]interface{}) {
	for k, v := range m {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") || strings.Contains(lower, "token") {
			if _, ok := v.(string); ok {
				m[k] = "****"
				continue
			}
		}
		switch child := v.(type) {
		case map[string]interface{}:
			redactKeys(child)
		case []interface{}:
			for _, item := range child {
				if sub, ok := item.(map[string]interface{}); ok {
					redactKeys(sub)
				}
			}
		}
	}
}

// corsMiddleware adds CORS headers restricted to the configured allowed
// origins, falling back to "*" when none are configured.
func (d *DashboardServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if d.cfg != nil && len(d.cfg.Dashboard.AllowedOrigins) > 0 {
			origin = strings.Join(d.cfg.Dashboard.AllowedOrigins, ", ")
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
