// Package budgetalert watches the cache subsystem's per-tier byte budgets
// and raises an alert whenever a tier's usage crosses a configured
// percentage threshold. It never blocks or rejects anything: tiers enforce
// their own budgets by evicting, not by refusing a save, so this package
// is pure observability layered on top.
package budgetalert

import (
	"encoding/json"
	"sort"
)

// TierUsage is a point-in-time snapshot of one tier's byte usage, enough
// to check it against a set of alert thresholds.
type TierUsage struct {
	Tier        string
	BytesUsed   int64
	BytesBudget int64
	EntryCount  int
}

// Percent returns bytes used as a percentage of budget. A non-positive
// budget (the disabled disk tier, for instance) always reports 0.
func (u TierUsage) Percent() float64 {
	if u.BytesBudget <= 0 {
		return 0
	}
	return float64(u.BytesUsed) / float64(u.BytesBudget) * 100
}

// Alert reports that a tier's usage has crossed one of the configured
// percentage thresholds.
type Alert struct {
	Tier        string  `json:"tier"`
	Threshold   float64 `json:"threshold"`
	Percent     float64 `json:"percent"`
	BytesUsed   int64   `json:"bytes_used"`
	BytesBudget int64   `json:"bytes_budget"`
	EntryCount  int     `json:"entry_count"`
}

// ToJSON serialises the alert for the dashboard API.
func (a Alert) ToJSON() []byte {
	b, _ := json.Marshal(a)
	return b
}

// Checker evaluates tier usage snapshots against a set of ascending
// percentage thresholds (0-100). Checking is stateless: callers that want
// "only alert once per threshold crossing" behaviour track that
// themselves by comparing against the previous Alert.
type Checker struct {
	thresholds []float64
	enabled    bool
}

// NewChecker builds a Checker over thresholds (percentages, 0-100).
// thresholds is copied and sorted ascending; an empty or nil slice means
// the checker never raises an alert even when enabled.
func NewChecker(thresholds []float64, enabled bool) *Checker {
	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)
	return &Checker{thresholds: sorted, enabled: enabled}
}

// Enabled reports whether this checker is active.
func (c *Checker) Enabled() bool {
	return c.enabled
}

// Check returns the highest configured threshold usage has crossed, or
// ok=false if the checker is disabled, the tier has no positive budget (a
// disabled tier), or usage is under every threshold.
func (c *Checker) Check(usage TierUsage) (alert Alert, ok bool) {
	if !c.enabled || len(c.thresholds) == 0 || usage.BytesBudget <= 0 {
		return Alert{}, false
	}
	pct := usage.Percent()
	var crossed float64
	found := false
	for _, t := range c.thresholds {
		if pct >= t {
			crossed = t
			found = true
		}
	}
	if !found {
		return Alert{}, false
	}
	return Alert{
		Tier:        usage.Tier,
		Threshold:   crossed,
		Percent:     pct,
		BytesUsed:   usage.BytesUsed,
		BytesBudget: usage.BytesBudget,
		EntryCount:  usage.EntryCount,
	}, true
}

// CheckAll runs Check over every usage snapshot and returns the alerts
// that fired, in the same order as usages.
func (c *Checker) CheckAll(usages ...TierUsage) []Alert {
	var alerts []Alert
	for _, u := range usages {
		if a, ok := c.Check(u); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}
