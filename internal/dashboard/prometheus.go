package dashboard

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PrometheusHandler returns an http.HandlerFunc that writes metrics in
// Prometheus text exposition format (version 0.0.4). It does not require
// the Prometheus client library; metrics are formatted manually, matching
// how this dashboard has always exported metrics.
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := collector.Stats()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		uptimeSeconds := time.Since(collector.startTime).Seconds()

		writeMetric(w, "cachecore_gets_total",
			"Total number of CacheManager.Get calls.",
			"counter", stats.TotalGets)
		writeMetric(w, "cachecore_puts_total",
			"Total number of CacheManager.Put calls.",
			"counter", stats.TotalPuts)
		writeMetric(w, "cachecore_memory_hits_total",
			"Total number of gets served from the memory tier.",
			"counter", stats.MemoryHits)
		writeMetric(w, "cachecore_disk_hits_total",
			"Total number of gets served from the disk tier.",
			"counter", stats.DiskHits)
		writeMetric(w, "cachecore_misses_total",
			"Total number of gets that missed both tiers.",
			"counter", stats.Misses)
		writeMetricFloat(w, "cachecore_hit_rate",
			"Combined memory+disk hit rate percentage.",
			"gauge", stats.HitRate)
		writeMetric(w, "cachecore_memory_evictions_total",
			"Total number of entries evicted from the memory tier.",
			"counter", stats.MemoryEvictions)
		writeMetric(w, "cachecore_rehomed_to_disk_total",
			"Total number of memory evictions rehomed onto disk instead of destroyed.",
			"counter", stats.RehomedToDisk)
		writeMetric(w, "cachecore_disk_evictions_total",
			"Total number of entries evicted (destroyed) from the disk tier.",
			"counter", stats.DiskEvictions)
		writeMetric(w, "cachecore_persistent_key_hits_total",
			"Total number of persistent-key lookups that found a live fingerprint.",
			"counter", stats.PersistentHits)
		writeMetric(w, "cachecore_persistent_key_misses_total",
			"Total number of persistent-key lookups that found nothing live.",
			"counter", stats.PersistentMisses)
		writeMetricFloat(w, "cachecore_persistent_key_hit_rate",
			"Persistent-key lookup hit rate percentage.",
			"gauge", stats.PersistentHitRate)
		writeMetric(w, "cachecore_preview_hits_total",
			"Total number of preview lookups that returned a valid buffer.",
			"counter", stats.PreviewHits)
		writeMetric(w, "cachecore_preview_misses_total",
			"Total number of preview lookups that found no still-valid buffer.",
			"counter", stats.PreviewMisses)
		writeMetric(w, "cachecore_viewer_updates_total",
			"Total number of viewer-slot writes.",
			"counter", stats.ViewerUpdates)
		writeMetricFloat(w, "cachecore_uptime_seconds",
			"Number of seconds since the service started.",
			"gauge", uptimeSeconds)

		// --- Labeled metrics ---

		writeGaugeVec(w, "cachecore_tier_bytes_used",
			"Current bytes used, by tier.",
			collector.TierBytes())
		writeGaugeVec(w, "cachecore_tier_bytes_budget",
			"Configured byte budget, by tier.",
			collector.TierBudget())
		writeGaugeVec(w, "cachecore_tier_entries",
			"Current live entry count, by tier.",
			collector.TierEntries())
		writeGaugeVec(w, "cachecore_tier_prefetch_queue_depth",
			"Remaining planned reads in the prefetch queue, by tier.",
			collector.PrefetchDepth())
		writeCounterVec(w, "cachecore_errors_total",
			"Total number of tier operation errors, by tier and kind.",
			collector.Errors())
		writeHistogramVec(w, "cachecore_op_duration_seconds",
			"Cache operation duration in seconds, by tier and op.",
			collector.OpLatency())
	}
}

func writeMetric(w http.ResponseWriter, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

func writeMetricFloat(w http.ResponseWriter, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func writeCounterVec(w http.ResponseWriter, name, help string, cv *counterVec) {
	entries := cv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %d\n", name, formatLabels(e.labels), e.value)
	}
}

func writeHistogramVec(w http.ResponseWriter, name, help string, hv *histogramVec) {
	histograms := hv.snapshot()
	if len(histograms) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for _, h := range histograms {
		labels := formatLabels(h.labels)
		var cumulative int64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			le := fmt.Sprintf("%g", bound)
			if len(h.labels) == 0 {
				fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, cumulative)
			} else {
				lbl := formatLabelsWithLe(h.labels, le)
				fmt.Fprintf(w, "%s_bucket%s %d\n", name, lbl, cumulative)
			}
		}
		if len(h.labels) == 0 {
			fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", name, h.count)
		} else {
			lbl := formatLabelsWithLe(h.labels, "+Inf")
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, lbl, h.count)
		}
		fmt.Fprintf(w, "%s_sum%s %g\n", name, labels, h.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", name, labels, h.count)
	}
}

func formatLabelsWithLe(labels map[string]string, le string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	fmt.Fprintf(&b, ",le=%q", le)
	b.WriteByte('}')
	return b.String()
}

func writeGaugeVec(w http.ResponseWriter, name, help string, gv *gaugeVec) {
	entries := gv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %g\n", name, formatLabels(e.labels), e.value)
	}
}
