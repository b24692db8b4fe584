package dashboard

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// labeledCounter tracks a counter value for a specific label combination.
type labeledCounter struct {
	labels map[string]string
	value  int64
}

// histogram tracks a distribution of observed values using pre-defined buckets.
type histogram struct {
	mu      sync.Mutex
	labels  map[string]string
	buckets []float64 // upper bounds, sorted ascending
	counts  []int64   // count per bucket
	sum     float64
	count   int64
}

func newHistogram(labels map[string]string, buckets []float64) *histogram {
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)
	return &histogram{
		labels:  labels,
		buckets: sorted,
		counts:  make([]int64, len(sorted)),
	}
}

func (h *histogram) observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
}

// counterVec is a thread-safe collection of labeled counters.
type counterVec struct {
	mu       sync.RWMutex
	counters map[string]*labeledCounter
}

func newCounterVec() *counterVec {
	return &counterVec{counters: make(map[string]*labeledCounter)}
}

func (cv *counterVec) inc(labels map[string]string) {
	key := labelsKey(labels)
	cv.mu.Lock()
	c, ok := cv.counters[key]
	if !ok {
		c = &labeledCounter{labels: copyLabels(labels)}
		cv.counters[key] = c
	}
	cv.mu.Unlock()
	atomic.AddInt64(&c.value, 1)
}

func (cv *counterVec) snapshot() []labeledCounter {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	result := make([]labeledCounter, 0, len(cv.counters))
	for _, c := range cv.counters {
		result = append(result, labeledCounter{
			labels: copyLabels(c.labels),
			value:  atomic.LoadInt64(&c.value),
		})
	}
	return result
}

// histogramVec is a thread-safe collection of labeled histograms.
type histogramVec struct {
	mu         sync.RWMutex
	histograms map[string]*histogram
	buckets    []float64
}

func newHistogramVec(buckets []float64) *histogramVec {
	return &histogramVec{
		histograms: make(map[string]*histogram),
		buckets:    buckets,
	}
}

func (hv *histogramVec) observe(labels map[string]string, v float64) {
	key := labelsKey(labels)
	hv.mu.RLock()
	h, ok := hv.histograms[key]
	hv.mu.RUnlock()
	if !ok {
		hv.mu.Lock()
		h, ok = hv.histograms[key]
		if !ok {
			h = newHistogram(copyLabels(labels), hv.buckets)
			hv.histograms[key] = h
		}
		hv.mu.Unlock()
	}
	h.observe(v)
}

func (hv *histogramVec) snapshot() []*histogram {
	hv.mu.RLock()
	defer hv.mu.RUnlock()
	result := make([]*histogram, 0, len(hv.histograms))
	for _, h := range hv.histograms {
		h.mu.Lock()
		snap := &histogram{
			labels:  copyLabels(h.labels),
			buckets: h.buckets,
			counts:  make([]int64, len(h.counts)),
			sum:     h.sum,
			count:   h.count,
		}
		copy(snap.counts, h.counts)
		h.mu.Unlock()
		result = append(result, snap)
	}
	return result
}

// gaugeVec tracks a set of labeled gauges that can be set to any value.
type gaugeVec struct {
	mu     sync.RWMutex
	gauges map[string]*labeledGauge
}

type labeledGauge struct {
	labels map[string]string
	value  uint64 // float64 stored via math.Float64bits
}

func newGaugeVec() *gaugeVec {
	return &gaugeVec{gauges: make(map[string]*labeledGauge)}
}

func (gv *gaugeVec) set(labels map[string]string, v float64) {
	key := labelsKey(labels)
	gv.mu.Lock()
	g, ok := gv.gauges[key]
	if !ok {
		g = &labeledGauge{labels: copyLabels(labels)}
		gv.gauges[key] = g
	}
	gv.mu.Unlock()
	atomic.StoreUint64(&g.value, math.Float64bits(v))
}

func (gv *gaugeVec) snapshot() []struct {
	labels map[string]string
	value  float64
} {
	gv.mu.RLock()
	defer gv.mu.RUnlock()
	result := make([]struct {
		labels map[string]string
		value  float64
	}, 0, len(gv.gauges))
	for _, g := range gv.gauges {
		result = append(result, struct {
			labels map[string]string
			value  float64
		}{
			labels: copyLabels(g.labels),
			value:  math.Float64frombits(atomic.LoadUint64(&g.value)),
		})
	}
	return result
}

func labelsKey(labels map[string]string) string {
	// Build a deterministic key from sorted label pairs.
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := ""
	for _, k := range keys {
		key += k + "=" + labels[k] + ","
	}
	return key
}

func copyLabels(labels map[string]string) map[string]string {
	cp := make(map[string]string, len(labels))
	for k, v := range labels {
		cp[k] = v
	}
	return cp
}

// Collector tracks live cache-subsystem metrics using atomic counters for
// lock-free, concurrent-safe updates: get/put throughput, per-tier hit
// rates, eviction and rehoming counts, and persistent-key / view-registry
// hit rates, for the dashboard and the Prometheus endpoint.
type Collector struct {
	totalGets int64
	totalPuts int64

	memoryHits int64
	diskHits   int64
	misses     int64

	memoryEvictions int64
	rehomedToDisk   int64
	diskEvictions   int64

	persistentHits   int64
	persistentMisses int64

	previewHits    int64
	previewMisses  int64
	viewerUpdates  int64

	startTime time.Time

	// Labeled Prometheus-style metrics.
	errors       *counterVec   // labels: tier, kind
	opLatency    *histogramVec // labels: tier, op
	tierBytes    *gaugeVec     // labels: tier; value: bytes used
	tierBudget   *gaugeVec     // labels: tier; value: byte budget
	tierEntries  *gaugeVec     // labels: tier; value: entry count
	prefetchDepth *gaugeVec    // labels: tier; value: queued planned reads
}

// Stats is a point-in-time snapshot of the collector's counters, suitable
// for JSON serialisation and display on the dashboard.
type Stats struct {
	Uptime             string  `json:"uptime"`
	TotalGets          int64   `json:"total_gets"`
	TotalPuts          int64   `json:"total_puts"`
	MemoryHits         int64   `json:"memory_hits"`
	DiskHits           int64   `json:"disk_hits"`
	Misses             int64   `json:"misses"`
	HitRate            float64 `json:"hit_rate"`
	MemoryEvictions    int64   `json:"memory_evictions"`
	RehomedToDisk      int64   `json:"rehomed_to_disk"`
	DiskEvictions      int64   `json:"disk_evictions"`
	PersistentHits     int64   `json:"persistent_hits"`
	PersistentMisses   int64   `json:"persistent_misses"`
	PersistentHitRate  float64 `json:"persistent_hit_rate"`
	PreviewHits        int64   `json:"preview_hits"`
	PreviewMisses      int64   `json:"preview_misses"`
	ViewerUpdates      int64   `json:"viewer_updates"`
}

// opLatencyBuckets are tuned for in-process cache operations (sub-millisecond
// memory hits through multi-millisecond disk reads), in seconds.
var opLatencyBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5}

// NewCollector creates a new Collector with all counters initialised to
// zero and the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		startTime:     time.Now(),
		errors:        newCounterVec(),
		opLatency:     newHistogramVec(opLatencyBuckets),
		tierBytes:     newGaugeVec(),
		tierBudget:    newGaugeVec(),
		tierEntries:   newGaugeVec(),
		prefetchDepth: newGaugeVec(),
	}
}

// RecordGet records the outcome of a CacheManager.Get call: which tier (if
// any) served it, or "miss" if neither tier had it.
func (c *Collector) RecordGet(tier string) {
	atomic.AddInt64(&c.totalGets, 1)
	switch tier {
	case "memory":
		atomic.AddInt64(&c.memoryHits, 1)
	case "disk":
		atomic.AddInt64(&c.diskHits, 1)
	default:
		atomic.AddInt64(&c.misses, 1)
	}
}

// RecordPut records a CacheManager.Put call.
func (c *Collector) RecordPut() {
	atomic.AddInt64(&c.totalPuts, 1)
}

// RecordEviction records one evicted entry from tier. rehomed is true when
// a memory eviction was handed off to disk rather than destroyed.
func (c *Collector) RecordEviction(tier string, rehomed bool) {
	switch tier {
	case "memory":
		atomic.AddInt64(&c.memoryEvictions, 1)
		if rehomed {
			atomic.AddInt64(&c.rehomedToDisk, 1)
		}
	case "disk":
		atomic.AddInt64(&c.diskEvictions, 1)
	}
}

// RecordPersistentKeyLookup records whether CheckPersistentOpKey found a
// still-live fingerprint for a persistent node.
func (c *Collector) RecordPersistentKeyLookup(hit bool) {
	if hit {
		atomic.AddInt64(&c.persistentHits, 1)
	} else {
		atomic.AddInt64(&c.persistentMisses, 1)
	}
}

// RecordPreviewLookup records whether ViewRegistry.GetPreview found a
// still-valid preview buffer.
func (c *Collector) RecordPreviewLookup(hit bool) {
	if hit {
		atomic.AddInt64(&c.previewHits, 1)
	} else {
		atomic.AddInt64(&c.previewMisses, 1)
	}
}

// RecordViewerUpdate records a ViewRegistry.ReportViewerWrite call.
func (c *Collector) RecordViewerUpdate() {
	atomic.AddInt64(&c.viewerUpdates, 1)
}

// RecordError increments the error counter for kind ("save", "delete",
// "prefetch", "scan"...) on tier.
func (c *Collector) RecordError(tier, kind string) {
	c.errors.inc(map[string]string{"tier": tier, "kind": kind})
}

// ObserveLatency records an operation's duration in seconds.
func (c *Collector) ObserveLatency(tier, op string, seconds float64) {
	c.opLatency.observe(map[string]string{"tier": tier, "op": op}, seconds)
}

// SetTierUsage records tier's current byte usage, budget, and entry count
// as gauges for the dashboard and Prometheus export.
func (c *Collector) SetTierUsage(tier string, bytesUsed, bytesBudget int64, entries int) {
	labels := map[string]string{"tier": tier}
	c.tierBytes.set(labels, float64(bytesUsed))
	c.tierBudget.set(labels, float64(bytesBudget))
	c.tierEntries.set(labels, float64(entries))
}

// SetPrefetchQueueDepth records how many planned reads remain queued on
// tier.
func (c *Collector) SetPrefetchQueueDepth(tier string, depth int) {
	c.prefetchDepth.set(map[string]string{"tier": tier}, float64(depth))
}

// Stats returns a point-in-time snapshot of all metrics.
func (c *Collector) Stats() *Stats {
	memHits := atomic.LoadInt64(&c.memoryHits)
	diskHits := atomic.LoadInt64(&c.diskHits)
	misses := atomic.LoadInt64(&c.misses)

	var hitRate float64
	total := memHits + diskHits + misses
	if total > 0 {
		hitRate = float64(memHits+diskHits) / float64(total) * 100
	}

	pHits := atomic.LoadInt64(&c.persistentHits)
	pMisses := atomic.LoadInt64(&c.persistentMisses)
	var pHitRate float64
	if pHits+pMisses > 0 {
		pHitRate = float64(pHits) / float64(pHits+pMisses) * 100
	}

	return &Stats{
		Uptime:            formatDuration(time.Since(c.startTime)),
		TotalGets:         atomic.LoadInt64(&c.totalGets),
		TotalPuts:         atomic.LoadInt64(&c.totalPuts),
		MemoryHits:        memHits,
		DiskHits:          diskHits,
		Misses:            misses,
		HitRate:           hitRate,
		MemoryEvictions:   atomic.LoadInt64(&c.memoryEvictions),
		RehomedToDisk:     atomic.LoadInt64(&c.rehomedToDisk),
		DiskEvictions:     atomic.LoadInt64(&c.diskEvictions),
		PersistentHits:    pHits,
		PersistentMisses:  pMisses,
		PersistentHitRate: pHitRate,
		PreviewHits:       atomic.LoadInt64(&c.previewHits),
		PreviewMisses:     atomic.LoadInt64(&c.previewMisses),
		ViewerUpdates:     atomic.LoadInt64(&c.viewerUpdates),
	}
}

// Errors returns the error counter vec for Prometheus export.
func (c *Collector) Errors() *counterVec { return c.errors }

// OpLatency returns the operation latency histogram vec for Prometheus export.
func (c *Collector) OpLatency() *histogramVec { return c.opLatency }

// TierBytes returns the per-tier bytes-used gauge vec.
func (c *Collector) TierBytes() *gaugeVec { return c.tierBytes }

// TierBudget returns the per-tier byte-budget gauge vec.
func (c *Collector) TierBudget() *gaugeVec { return c.tierBudget }

// TierEntries returns the per-tier entry-count gauge vec.
func (c *Collector) TierEntries() *gaugeVec { return c.tierEntries }

// PrefetchDepth returns the per-tier prefetch-queue-depth gauge vec.
func (c *Collector) PrefetchDepth() *gaugeVec { return c.prefetchDepth }

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return formatWithUnits(days, "d", hours, "h", minutes, "m")
	}
	if hours > 0 {
		return formatWithUnits(hours, "h", minutes, "m", 0, "")
	}
	return formatWithUnits(minutes, "m", 0, "", 0, "")
}

// formatWithUnits builds a compact duration string from up to three components.
func formatWithUnits(v1 int, u1 string, v2 int, u2 string, v3 int, u3 string) string {
	s := ""
	if v1 > 0 {
		s += intStr(v1) + u1
	}
	if v2 > 0 {
		if s != "" {
			s += " "
		}
		s += intStr(v2) + u2
	}
	if v3 > 0 && u3 != "" {
		if s != "" {
			s += " "
		}
		s += intStr(v3) + u3
	}
	if s == "" {
		return "0m"
	}
	return s
}

// intStr converts an int to its string representation without importing strconv.
func intStr(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + intStr(-n)
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
