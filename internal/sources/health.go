package sources

import (
	"sync"
	"time"
)

// ResultType classifies one adapter attempt for health accounting.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultNoData  ResultType = "no_data"
	ResultError   ResultType = "error"
)

// SourceState is the rolled-up health of one source.
type SourceState string

const (
	StateHealthy     SourceState = "healthy"
	StateDegraded    SourceState = "degraded"
	StateUnavailable SourceState = "unavailable"
)

// Health-state thresholds on the success rate.
const (
	healthyRateFloor  = 0.95
	degradedRateFloor = 0.80
)

// HealthSample is one recorded adapter attempt.
type HealthSample struct {
	Source    string
	Result    ResultType
	LatencyMS float64
	At        time.Time
}

// SourceHealth is a snapshot of one source's rolling stats.
type SourceHealth struct {
	Source       string      `json:"source"`
	Successful   int64       `json:"successful"`
	Failed       int64       `json:"failed"`
	NoData       int64       `json:"no_data"`
	SuccessRate  float64     `json:"success_rate"`
	AvgLatencyMS float64     `json:"avg_latency_ms"`
	State        SourceState `json:"state"`
	LastSample   time.Time   `json:"last_sample"`
}

type healthCounters struct {
	successful   int64
	failed       int64
	noData       int64
	totalLatency float64
	samples      int64
	lastSample   time.Time
}

// HealthTracker folds per-attempt samples into a rolling rate per source.
// no_data attempts are recorded but excluded from the success-rate
// denominator: an empty vendor table is not a vendor failure.
type HealthTracker struct {
	mu      sync.Mutex
	sources map[string]*healthCounters
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{sources: make(map[string]*healthCounters)}
}

// Record folds one sample into the source's counters.
func (h *HealthTracker) Record(sample HealthSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.sources[sample.Source]
	if !ok {
		c = &healthCounters{}
		h.sources[sample.Source] = c
	}

	switch sample.Result {
	case ResultSuccess:
		c.successful++
	case ResultNoData:
		c.noData++
	case ResultError:
		c.failed++
	}
	c.totalLatency += sample.LatencyMS
	c.samples++
	c.lastSample = sample.At
}

// Snapshot returns the rolled-up health for one source.
func (h *HealthTracker) Snapshot(source string) SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(source)
}

// SnapshotAll returns the health of every known source.
func (h *HealthTracker) SnapshotAll() []SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SourceHealth, 0, len(h.sources))
	for name := range h.sources {
		out = append(out, h.snapshotLocked(name))
	}
	return out
}

// SuccessRate returns the rate for ordering sources; unknown sources get 1.0
// so an untried source is preferred over a failing one.
func (h *HealthTracker) SuccessRate(source string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.sources[source]
	if !ok {
		return 1.0
	}
	denom := c.successful + c.failed
	if denom == 0 {
		return 1.0
	}
	return float64(c.successful) / float64(denom)
}

func (h *HealthTracker) snapshotLocked(source string) SourceHealth {
	c, ok := h.sources[source]
	if !ok {
		return SourceHealth{Source: source, SuccessRate: 1.0, State: StateHealthy}
	}

	sh := SourceHealth{
		Source:     source,
		Successful: c.successful,
		Failed:     c.failed,
		NoData:     c.noData,
		LastSample: c.lastSample,
	}
	if c.samples > 0 {
		sh.AvgLatencyMS = c.totalLatency / float64(c.samples)
	}

	denom := c.successful + c.failed
	if denom == 0 {
		sh.SuccessRate = 1.0
		sh.State = StateHealthy
		return sh
	}
	sh.SuccessRate = float64(c.successful) / float64(denom)
	switch {
	case sh.SuccessRate >= healthyRateFloor:
		sh.State = StateHealthy
	case sh.SuccessRate >= degradedRateFloor:
		sh.State = StateDegraded
	default:
		sh.State = StateUnavailable
	}
	return sh
}
