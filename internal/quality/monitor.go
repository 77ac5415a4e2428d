// Package quality computes the data-quality metric families over a recent
// window: coverage, completeness, consistency, timeliness and accuracy, with
// direction-aware health checks and a weighted overall score.
package quality

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/market"
)

// Metric families.
const (
	TypeCoverage     = "coverage"
	TypeCompleteness = "completeness"
	TypeConsistency  = "consistency"
	TypeTimeliness   = "timeliness"
	TypeAccuracy     = "accuracy"
)

// Alert levels by relative deviation from the threshold.
const (
	AlertWarning  = "warning"
	AlertError    = "error"
	AlertCritical = "critical"
)

// Overall score weights per family.
var familyWeights = map[string]float64{
	TypeCoverage:     0.25,
	TypeCompleteness: 0.20,
	TypeConsistency:  0.20,
	TypeTimeliness:   0.15,
	TypeAccuracy:     0.20,
}

// hotStocks is the curated watch list expected to have both candles and fund
// flow every trading day.
var (
	hotMu     sync.RWMutex
	hotStocks = []string{"600519", "000858", "300750", "002594", "601318", "600036"}
)

// SetHotStocks swaps the curated watch list.
func SetHotStocks(codes []string) {
	hotMu.Lock()
	defer hotMu.Unlock()
	hotStocks = append([]string(nil), codes...)
}

func hotStockList() []string {
	hotMu.RLock()
	defer hotMu.RUnlock()
	return append([]string(nil), hotStocks...)
}

// Report is one monitor pass: every metric, the blended score and its band.
type Report struct {
	Date         string                 `json:"date"`
	Metrics      []domain.QualityRecord `json:"metrics"`
	OverallScore float64                `json:"overall_score"`
	Band         string                 `json:"band"`
	AlertCount   int                    `json:"alert_count"`
}

// Monitor reads the market repositories and writes quality records.
type Monitor struct {
	windowDays int

	stocks      *market.StockRepository
	klines      *market.KlineRepository
	flows       *market.FundFlowRepository
	collections *market.CollectionRepository
	records     *market.QualityRepository

	now func() time.Time
	log zerolog.Logger
}

// NewMonitor wires the monitor. windowDays ≤ 0 defaults to 7.
func NewMonitor(
	windowDays int,
	stocks *market.StockRepository,
	klines *market.KlineRepository,
	flows *market.FundFlowRepository,
	collections *market.CollectionRepository,
	records *market.QualityRepository,
	log zerolog.Logger,
) *Monitor {
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Monitor{
		windowDays:  windowDays,
		stocks:      stocks,
		klines:      klines,
		flows:       flows,
		collections: collections,
		records:     records,
		now:         time.Now,
		log:         log.With().Str("component", "quality").Logger(),
	}
}

// Run computes every metric family, persists the records and returns the
// report.
func (m *Monitor) Run() (*Report, error) {
	date := m.now().Format("2006-01-02")
	since := m.now().AddDate(0, 0, -m.windowDays).Format("2006-01-02")

	var metrics []domain.QualityRecord
	metrics = append(metrics, m.coverageMetrics(since)...)
	metrics = append(metrics, m.completenessMetrics(since)...)
	metrics = append(metrics, m.consistencyMetrics(since)...)
	metrics = append(metrics, m.timelinessMetrics()...)
	metrics = append(metrics, m.accuracyMetrics(since)...)

	alerts := 0
	for i := range metrics {
		metrics[i].Date = date
		if metrics[i].AlertLevel != "" {
			alerts++
		}
	}

	overall := overallScore(metrics)
	report := &Report{
		Date:         date,
		Metrics:      metrics,
		OverallScore: overall,
		Band:         band(overall),
		AlertCount:   alerts,
	}

	if err := m.records.InsertBatch(metrics); err != nil {
		return nil, fmt.Errorf("failed to persist quality records: %w", err)
	}
	m.log.Info().Float64("overall", overall).Str("band", report.Band).
		Int("alerts", alerts).Msg("Quality monitor run completed")
	return report, nil
}

// metric builds one record with direction-aware health and alert level.
// lowerIsBetter flips the comparison (timeliness).
func metric(metricType, name string, value, threshold float64, lowerIsBetter bool, desc string) domain.QualityRecord {
	healthy := value >= threshold
	if lowerIsBetter {
		healthy = value <= threshold
	}

	level := ""
	if !healthy && threshold != 0 {
		dev := math.Abs(value-threshold) / math.Abs(threshold)
		switch {
		case dev > 0.30:
			level = AlertCritical
		case dev > 0.20:
			level = AlertError
		case dev > 0.10:
			level = AlertWarning
		}
	}

	return domain.QualityRecord{
		MetricType:  metricType,
		MetricName:  name,
		Value:       value,
		Threshold:   threshold,
		IsHealthy:   healthy,
		AlertLevel:  level,
		Description: desc,
	}
}

func pct(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

func (m *Monitor) coverageMetrics(since string) []domain.QualityRecord {
	universe, _ := m.stocks.Count()
	klineCodes, _ := m.klines.DistinctCodesSince(since)
	flowCodes, _ := m.flows.DistinctCodesSince(since)

	hot := hotStockList()
	hotCovered := 0
	for _, code := range hot {
		candles, err := m.klines.RecentByCode(code, 1)
		if err != nil || len(candles) == 0 || candles[0].Date < since {
			continue
		}
		flow, err := m.flows.Latest(code)
		if err != nil || flow == nil || flow.Date < since {
			continue
		}
		hotCovered++
	}

	return []domain.QualityRecord{
		metric(TypeCoverage, "stock_coverage", pct(klineCodes, universe), 95, false,
			"stocks with candle rows in window / universe"),
		metric(TypeCoverage, "kline_coverage", pct(klineCodes, universe), 95, false,
			"candle code coverage in window"),
		metric(TypeCoverage, "flow_coverage", pct(flowCodes, universe), 90, false,
			"fund-flow code coverage in window"),
		metric(TypeCoverage, "hot_stock_coverage", pct(hotCovered, len(hot)), 100, false,
			"watch-list stocks with both candles and fund flow"),
	}
}

func (m *Monitor) completenessMetrics(since string) []domain.QualityRecord {
	universe, _ := m.stocks.Count()
	klineCodes, _ := m.klines.DistinctCodesSince(since)
	totalK, invalidK, err := m.klines.CountSince(since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Kline completeness query failed")
	}
	totalF, invalidF, err := m.flows.CountSince(since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Fund-flow completeness query failed")
	}

	missing := 0.0
	if universe > 0 {
		missing = 100 - pct(klineCodes, universe)
	}
	errorRate := 0.0
	if totalK+totalF > 0 {
		errorRate = float64(invalidK+invalidF) / float64(totalK+totalF) * 100
	}

	return []domain.QualityRecord{
		metric(TypeCompleteness, "missing_rate", missing, 5, true,
			"universe share without candle rows in window"),
		metric(TypeCompleteness, "error_rate", errorRate, 1, true,
			"invalid candle and fund-flow rows in window"),
	}
}

func (m *Monitor) consistencyMetrics(since string) []domain.QualityRecord {
	klineCodes, _ := m.klines.DistinctCodesSince(since)
	both, _ := m.flows.CodesWithBothSince(since)

	kMin, kMax, _ := m.klines.DateRangeSince(since)
	fMin, fMax, _ := m.flows.DateRangeSince(since)

	rangeConsistency := 0.0
	if kMin != "" && kMax != "" && fMin != "" && fMax != "" {
		rangeConsistency = dateRangeOverlap(kMin, kMax, fMin, fMax)
	}

	return []domain.QualityRecord{
		metric(TypeConsistency, "data_consistency", pct(both, klineCodes), 90, false,
			"stocks with both candles and fund flow in window"),
		metric(TypeConsistency, "time_range_consistency", rangeConsistency, 90, false,
			"overlap of fund-flow and candle date ranges"),
	}
}

// dateRangeOverlap returns the overlap of [fMin, fMax] with [kMin, kMax] as
// a percentage of the candle range.
func dateRangeOverlap(kMin, kMax, fMin, fMax string) float64 {
	parse := func(s string) (time.Time, bool) {
		t, err := time.Parse("2006-01-02", s)
		return t, err == nil
	}
	ks, ok1 := parse(kMin)
	ke, ok2 := parse(kMax)
	fs, ok3 := parse(fMin)
	fe, ok4 := parse(fMax)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0
	}

	lo, hi := ks, ke
	if fs.After(lo) {
		lo = fs
	}
	if fe.Before(hi) {
		hi = fe
	}
	if hi.Before(lo) {
		return 0
	}

	total := ke.Sub(ks).Hours()/24 + 1
	overlap := hi.Sub(lo).Hours()/24 + 1
	if total <= 0 {
		return 0
	}
	v := overlap / total * 100
	if v > 100 {
		v = 100
	}
	return v
}

func (m *Monitor) timelinessMetrics() []domain.QualityRecord {
	delayHours := float64(m.windowDays * 24)
	latest, err := m.collections.LatestCompleted()
	if err == nil && latest != nil && latest.CreatedAt != "" {
		if t, perr := time.Parse("2006-01-02 15:04:05", latest.CreatedAt); perr == nil {
			delayHours = m.now().Sub(t).Hours()
			if delayHours < 0 {
				delayHours = 0
			}
		}
	}

	since := m.now().AddDate(0, 0, -7).Format("2006-01-02 15:04:05")
	completed, _ := m.collections.CountCompletedSince(since)
	frequencyDays := 7.0
	if completed > 0 {
		frequencyDays = 7.0 / float64(completed)
	}

	return []domain.QualityRecord{
		metric(TypeTimeliness, "collection_delay_hours", delayHours, 24, true,
			"hours since the last completed collection run"),
		metric(TypeTimeliness, "update_frequency_days", frequencyDays, 7, true,
			"average days between completed runs over the last week"),
	}
}

func (m *Monitor) accuracyMetrics(since string) []domain.QualityRecord {
	totalK, _, err := m.klines.CountSince(since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Kline accuracy query failed")
	}
	accurate, err := m.klines.CountAccurateSince(since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Kline accuracy check failed")
	}
	checked, consistent, err := m.flows.CountMagnitudeConsistentSince(since)
	if err != nil {
		m.log.Warn().Err(err).Msg("Flow magnitude check failed")
	}

	klineAccuracy := 100.0
	if totalK > 0 {
		klineAccuracy = pct(accurate, totalK)
	}
	flowMagnitude := 100.0
	if checked > 0 {
		flowMagnitude = pct(consistent, checked)
	}

	return []domain.QualityRecord{
		metric(TypeAccuracy, "kline_accuracy", klineAccuracy, 99, false,
			"candle rows passing positivity and high-containment checks"),
		metric(TypeAccuracy, "flow_magnitude_consistency", flowMagnitude, 80, false,
			"fund-flow magnitude within [0.2x, 2x] of same-day amount"),
	}
}

// overallScore blends the per-family averages with fixed weights, where each
// family is first normalized to 0-100.
func overallScore(metrics []domain.QualityRecord) float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, rec := range metrics {
		sums[rec.MetricType] += familyScore(rec)
		counts[rec.MetricType]++
	}

	score, weightTotal := 0.0, 0.0
	for family, weight := range familyWeights {
		if counts[family] == 0 {
			continue
		}
		score += weight * sums[family] / float64(counts[family])
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0
	}
	return score / weightTotal
}

// familyScore normalizes one metric to 0-100. Percent metrics map directly;
// lower-is-better metrics map via their threshold.
func familyScore(rec domain.QualityRecord) float64 {
	switch rec.MetricName {
	case "missing_rate", "error_rate":
		v := 100 - rec.Value*2
		if v < 0 {
			v = 0
		}
		return v
	case "collection_delay_hours", "update_frequency_days":
		if rec.Value <= rec.Threshold {
			return 100
		}
		over := (rec.Value - rec.Threshold) / rec.Threshold
		v := 100 - over*50
		if v < 0 {
			v = 0
		}
		return v
	default:
		v := rec.Value
		if v > 100 {
			v = 100
		}
		if v < 0 {
			v = 0
		}
		return v
	}
}

// band maps the overall score onto its quality band.
func band(score float64) string {
	switch {
	case score >= 95:
		return "excellent"
	case score >= 85:
		return "good"
	case score >= 70:
		return "fair"
	case score >= 60:
		return "passing"
	default:
		return "failing"
	}
}
