// Package factors computes the per-stock FactorSet: momentum, oscillators,
// trend, risk, volume, fundamentals and sector heat, from the last ≤60
// candles plus the latest fundamentals and flow rows.
package factors

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/market"
)

const (
	tradingDaysPerYear = 252
	trendWindow        = 20
)

// FactorSet holds every computed factor for one stock. Fields stay nil when
// the inputs are too short or the datum is genuinely unknown.
type FactorSet struct {
	Code     string
	Name     string
	Industry string

	// Momentum, percent
	Ret20D *float64
	Ret60D *float64

	// Oscillators
	RSI     *float64
	RSIPrev *float64

	// MACD (12, 26, 9)
	MACD         *float64
	MACDSignal   *float64
	MACDHist     *float64
	MACDHistPrev *float64

	// Volatility / risk
	VolAnnualized *float64
	Sharpe        *float64
	MaxDrawdown   *float64 // percent, ≤ 0

	// Volume
	VolumeRatio *float64
	VolBreakout bool

	// Trend regression over the last min(20, n) closes
	Slope    *float64
	R2       *float64
	SlopePct *float64

	// Price location
	PricePosition *float64 // [0, 1] within the window's range
	PriceBreakout bool     // last close ≥ 95% of window high

	// Moving averages
	MA5  *float64
	MA10 *float64
	MA20 *float64

	// Fundamentals
	PE            *float64
	PETTM         *float64
	PB            *float64
	ROE           *float64
	MarketCap     *float64
	RevenueGrowth *float64
	ProfitGrowth  *float64
	PEPercentile  *float64 // [0, 1], lower = cheaper

	// Stock-level money flow
	MainFundFlow *float64

	// Sector
	SectorChange5D *float64
	SectorMainFlow *float64
	SectorHeat     float64 // [20, 100]; 50 when industry unknown

	CurrentPrice float64
}

// Inputs bundles everything Compute reads for one stock.
type Inputs struct {
	Stock   domain.Stock
	Candles []domain.Candle // ascending by date, ≤ 60
	Basic   *domain.DailyBasic
	Flow    *domain.FundFlow
	Sector  *market.SectorStats
	Theme   *market.ThemeStats
}

// Engine computes FactorSets. Stateless apart from the industry tables.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a factor engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "factors").Logger()}
}

func ptr(v float64) *float64 { return &v }

// finite returns a pointer to v, or nil when v is NaN/Inf.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Compute derives the full FactorSet. Fewer than 3 candles yields an empty
// set carrying only identity and neutral sector heat.
func (e *Engine) Compute(in Inputs) FactorSet {
	fs := FactorSet{
		Code:       in.Stock.Code,
		Name:       in.Stock.Name,
		Industry:   in.Stock.Industry,
		SectorHeat: neutralSectorHeat,
	}

	e.applySector(&fs, in)
	e.applyFundamentals(&fs, in)
	if in.Flow != nil {
		fs.MainFundFlow = ptr(in.Flow.MainFundFlow)
	}

	n := len(in.Candles)
	if n <= 2 {
		return fs
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range in.Candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	last := closes[n-1]
	fs.CurrentPrice = last

	// Momentum
	if n >= 21 && closes[n-21] > 0 {
		fs.Ret20D = ptr((last/closes[n-21] - 1) * 100)
	}
	if n >= 60 && closes[n-60] > 0 {
		fs.Ret60D = ptr((last/closes[n-60] - 1) * 100)
	}

	e.applyRSI(&fs, closes)
	e.applyMACD(&fs, closes)
	e.applyMAs(&fs, closes)
	e.applyVolume(&fs, volumes)
	e.applyTrend(&fs, closes)
	e.applyRisk(&fs, closes)
	e.applyPriceLocation(&fs, in.Candles)

	return fs
}

// applyRSI computes the 14-period Wilder RSI and its previous value.
// NaN (insufficient history) defaults to the neutral 50.
func (e *Engine) applyRSI(fs *FactorSet, closes []float64) {
	const period = 14
	if len(closes) <= period {
		fs.RSI = ptr(50)
		fs.RSIPrev = ptr(50)
		return
	}
	rsi := talib.Rsi(closes, period)
	cur := rsi[len(rsi)-1]
	prev := rsi[len(rsi)-2]
	if math.IsNaN(cur) {
		cur = 50
	}
	if math.IsNaN(prev) {
		prev = 50
	}
	fs.RSI = ptr(cur)
	fs.RSIPrev = ptr(prev)
}

func (e *Engine) applyMACD(fs *FactorSet, closes []float64) {
	if len(closes) < 26 {
		return
	}
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	n := len(closes)
	fs.MACD = finite(macd[n-1])
	fs.MACDSignal = finite(signal[n-1])
	fs.MACDHist = finite(hist[n-1])
	if n >= 2 {
		fs.MACDHistPrev = finite(hist[n-2])
	}
}

func (e *Engine) applyMAs(fs *FactorSet, closes []float64) {
	n := len(closes)
	if n >= 5 {
		fs.MA5 = finite(talib.Sma(closes, 5)[n-1])
	}
	if n >= 10 {
		fs.MA10 = finite(talib.Sma(closes, 10)[n-1])
	}
	if n >= 20 {
		fs.MA20 = finite(talib.Sma(closes, 20)[n-1])
	}
}

// applyVolume computes volume_ratio vs the 20-day average and the
// volume-breakout flag vs 1.2× the 5-day average excluding today.
func (e *Engine) applyVolume(fs *FactorSet, volumes []float64) {
	n := len(volumes)
	today := volumes[n-1]

	window := volumes[:n-1]
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if len(window) > 0 {
		avg20 := stat.Mean(window, nil)
		if avg20 > 0 {
			fs.VolumeRatio = ptr(today / avg20)
		} else {
			fs.VolumeRatio = ptr(1)
		}
	} else {
		fs.VolumeRatio = ptr(1)
	}

	prior := volumes[:n-1]
	if len(prior) > 5 {
		prior = prior[len(prior)-5:]
	}
	if len(prior) > 0 {
		avg5 := stat.Mean(prior, nil)
		fs.VolBreakout = avg5 > 0 && today > avg5*1.2
	}
}

// applyTrend regresses the last min(20, n) closes against their index.
func (e *Engine) applyTrend(fs *FactorSet, closes []float64) {
	window := closes
	if len(window) > trendWindow {
		window = window[len(window)-trendWindow:]
	}
	if len(window) < 3 {
		return
	}

	xs := make([]float64, len(window))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, window, nil, false)
	r2 := stat.RSquared(xs, window, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	fs.Slope = ptr(beta)
	fs.R2 = ptr(r2)
	if anchor := window[0]; anchor > 0 {
		fs.SlopePct = ptr(beta / anchor * 100)
	}
}

// applyRisk computes annualized volatility, Sharpe and max drawdown from the
// daily close-to-close returns.
func (e *Engine) applyRisk(fs *FactorSet, closes []float64) {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			returns = append(returns, closes[i]/closes[i-1]-1)
		}
	}
	if len(returns) < 2 {
		return
	}

	std := stat.PopStdDev(returns, nil)
	fs.VolAnnualized = ptr(std * math.Sqrt(tradingDaysPerYear) * 100)
	if std > 0 {
		fs.Sharpe = ptr(stat.Mean(returns, nil) / std * math.Sqrt(tradingDaysPerYear))
	}

	// Max drawdown over the cumulative return path
	cum, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		if dd := cum/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}
	fs.MaxDrawdown = ptr(maxDD * 100)
}

// applyPriceLocation locates the last close within the window's range and
// flags a price breakout at ≥ 95% of the window high.
func (e *Engine) applyPriceLocation(fs *FactorSet, candles []domain.Candle) {
	hi, lo := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo && c.Low > 0 {
			lo = c.Low
		}
	}
	last := candles[len(candles)-1].Close
	if hi > lo {
		fs.PricePosition = ptr((last - lo) / (hi - lo))
	}
	fs.PriceBreakout = hi > 0 && last >= hi*0.95
}
