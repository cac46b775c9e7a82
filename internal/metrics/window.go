package metrics

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at     time.Time
	ms     int64
	selser bool
}

// Snapshot aggregates the latencies of one kind of conversion.
type Snapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// WindowSnapshot is what /api/stats reports.
type WindowSnapshot struct {
	Window string   `json:"window"`
	All    Snapshot `json:"all"`
	Selser Snapshot `json:"selser"`
	Full   Snapshot `json:"full"`
}

// LatencyWindow keeps conversion latencies younger than maxAge.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
	now     func() time.Time
}

func NewLatencyWindow(maxAge time.Duration) *LatencyWindow {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyWindow{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Record adds one conversion. Negative durations count as zero.
func (w *LatencyWindow) Record(d time.Duration, selser bool) {
	ms := max(d.Milliseconds(), 0)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	w.samples = append(w.samples, sample{at: now, ms: ms, selser: selser})
}

func (w *LatencyWindow) Snapshot() WindowSnapshot {
	now := w.now()

	w.mu.Lock()
	var all, sel, full []int64
	w.pruneLocked(now)
	for _, s := range w.samples {
		all = append(all, s.ms)
		if s.selser {
			sel = append(sel, s.ms)
		} else {
			full = append(full, s.ms)
		}
	}
	w.mu.Unlock()

	return WindowSnapshot{
		Window: w.maxAge.String(),
		All:    summarize(all),
		Selser: summarize(sel),
		Full:   summarize(full),
	}
}

func (w *LatencyWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	w.samples = slices.Delete(w.samples, 0, i)
}

func summarize(values []int64) Snapshot {
	if len(values) == 0 {
		return Snapshot{}
	}
	slices.Sort(values)
	var sum int64
	for _, v := range values {
		sum += v
	}
	return Snapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	idx := float64(len(sorted)-1) * pct / 100
	lo := int(idx)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := idx - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
