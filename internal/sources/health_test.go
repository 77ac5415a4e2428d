package sources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func record(h *HealthTracker, source string, result ResultType, n int) {
	for i := 0; i < n; i++ {
		h.Record(HealthSample{Source: source, Result: result, LatencyMS: 10, At: time.Now()})
	}
}

func TestHealthTrackerStates(t *testing.T) {
	h := NewHealthTracker()

	record(h, "tushare", ResultSuccess, 96)
	record(h, "tushare", ResultError, 4)
	assert.Equal(t, StateHealthy, h.Snapshot("tushare").State)

	record(h, "eastmoney", ResultSuccess, 85)
	record(h, "eastmoney", ResultError, 15)
	assert.Equal(t, StateDegraded, h.Snapshot("eastmoney").State)

	record(h, "broken", ResultSuccess, 1)
	record(h, "broken", ResultError, 9)
	assert.Equal(t, StateUnavailable, h.Snapshot("broken").State)
}

func TestHealthTrackerNoDataExcludedFromRate(t *testing.T) {
	h := NewHealthTracker()

	record(h, "tushare", ResultSuccess, 10)
	record(h, "tushare", ResultNoData, 90)

	sh := h.Snapshot("tushare")
	assert.InDelta(t, 1.0, sh.SuccessRate, 1e-9)
	assert.Equal(t, StateHealthy, sh.State)
	assert.Equal(t, int64(90), sh.NoData)
}

func TestHealthTrackerUnknownSource(t *testing.T) {
	h := NewHealthTracker()
	assert.InDelta(t, 1.0, h.SuccessRate("never_seen"), 1e-9)

	sh := h.Snapshot("never_seen")
	assert.Equal(t, StateHealthy, sh.State)
	assert.Equal(t, int64(0), sh.Successful)
}

func TestHealthTrackerAvgLatency(t *testing.T) {
	h := NewHealthTracker()
	h.Record(HealthSample{Source: "s", Result: ResultSuccess, LatencyMS: 10, At: time.Now()})
	h.Record(HealthSample{Source: "s", Result: ResultSuccess, LatencyMS: 30, At: time.Now()})

	assert.InDelta(t, 20.0, h.Snapshot("s").AvgLatencyMS, 1e-9)
}
