package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/factors"
)

// Strategy identifiers.
const (
	StrategyMomentumBreakout = 1
	StrategyTrendFollowing   = 2
	StrategyValueGrowth      = 3
	StrategySuperLeader      = 4
	StrategyBottomFishing    = 5
)

// Name returns the display name of a strategy id.
func Name(id int) string {
	switch id {
	case StrategyMomentumBreakout:
		return "momentum_breakout"
	case StrategyTrendFollowing:
		return "trend_following"
	case StrategyValueGrowth:
		return "value_growth"
	case StrategySuperLeader:
		return "super_leader"
	case StrategyBottomFishing:
		return "bottom_fishing"
	default:
		return "unknown"
	}
}

// weights is a strategy's weight vector over the auxiliary components.
// Sector contribution is added separately (already pre-weighted).
type weights struct {
	momentum    float64
	trend       float64
	fundamental float64
	valuation   float64
	quality     float64
	growth      float64
	volume      float64
	sentiment   float64
	risk        float64
}

var strategyWeights = map[int]weights{
	StrategyMomentumBreakout: {momentum: 0.40, volume: 0.25, sentiment: 0.20, trend: 0.10, quality: 0.05},
	StrategyTrendFollowing:   {trend: 0.35, momentum: 0.25, quality: 0.20, valuation: 0.15, volume: 0.05},
	StrategyValueGrowth:      {fundamental: 0.80, valuation: 0.20},
	StrategySuperLeader:      {momentum: 0.5, volume: 0.3, sentiment: 0.1, trend: 0.1},
	StrategyBottomFishing:    {valuation: 0.32, risk: 0.22, volume: 0.18, quality: 0.13, momentum: 0.10, sentiment: 0.05},
}

// Result is one evaluation outcome. Filtered is normal control flow, not an
// error: callers skip the candidate.
type Result struct {
	Stock        domain.ScoredStock
	Filtered     bool
	FilterReason string
}

// Evaluator scores FactorSets under a strategy. Deterministic: the same
// FactorSet and strategy id always yield the same result.
type Evaluator struct {
	log zerolog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(log zerolog.Logger) *Evaluator {
	return &Evaluator{log: log.With().Str("component", "strategy").Logger()}
}

// Evaluate computes the component scores, applies the strategy's hard
// filters and weight vector, and fills the presentation fields.
func (ev *Evaluator) Evaluate(fs *factors.FactorSet, strategyID int) (Result, error) {
	w, ok := strategyWeights[strategyID]
	if !ok {
		return Result{}, fmt.Errorf("unknown strategy id %d: %w", strategyID, domain.ErrNotFound)
	}

	scores := computeScores(fs)

	if reason := hardFilter(fs, scores, strategyID); reason != "" {
		return Result{Filtered: true, FilterReason: reason}, nil
	}

	composite := w.momentum*scores.momentum +
		w.trend*scores.trendQuality +
		w.fundamental*scores.fundamental +
		w.valuation*scores.valuation +
		w.quality*scores.quality +
		w.growth*scores.growth +
		w.volume*scores.volume +
		w.sentiment*scores.sentiment +
		w.risk*scores.risk +
		scores.sector

	if strategyID == StrategyBottomFishing {
		composite += bottomFishingBonus(fs)
	}
	composite = clamp(composite)

	stock := domain.ScoredStock{
		Code:              fs.Code,
		Name:              fs.Name,
		Industry:          fs.Industry,
		StrategyID:        strategyID,
		CompositeScore:    composite,
		MomentumScore:     scores.momentum,
		TrendQualityScore: scores.trendQuality,
		SectorScore:       scores.sector,
		FundamentalScore:  scores.fundamental,
		ValuationScore:    scores.valuation,
		QualityScore:      scores.quality,
		GrowthScore:       scores.growth,
		VolumeScore:       scores.volume,
		SentimentScore:    scores.sentiment,
		RiskScore:         scores.risk,
		SelectionReason:   buildReason(fs, strategyID),
	}
	fillPresentation(&stock, fs, scores)

	return Result{Stock: stock}, nil
}

// hardFilter returns a non-empty rejection reason when the strategy's hard
// filters exclude the candidate.
func hardFilter(fs *factors.FactorSet, scores componentScores, strategyID int) string {
	switch strategyID {
	case StrategyMomentumBreakout:
		if scores.momentum < 30 {
			return "momentum below 30"
		}
		if fv(fs.RSI, 50) > 85 {
			return "rsi overbought"
		}
		if fv(fs.VolAnnualized, 0) > 80 {
			return "volatility above 80"
		}
		if !fs.PriceBreakout {
			return "no price breakout"
		}

	case StrategyTrendFollowing:
		if fv(fs.SlopePct, 0) < 0.25 {
			return "slope below 0.25"
		}
		if fv(fs.R2, 0) < 0.45 {
			return "r2 below 0.45"
		}
		if fv(fs.MaxDrawdown, 0) < -15 {
			return "drawdown beyond -15%"
		}

	case StrategyValueGrowth:
		// Filters apply only when financials are present
		if fs.ROE != nil && *fs.ROE < 10 {
			return "roe below 10"
		}
		if fs.PE != nil && *fs.PE > 50 {
			return "pe above 50"
		}
		if fs.RevenueGrowth != nil && *fs.RevenueGrowth < 5 {
			return "revenue growth below 5"
		}

	case StrategySuperLeader:
		if scores.momentum < 35 {
			return "momentum below 35"
		}
		if fv(fs.Ret20D, 0) < 20 && fv(fs.Ret60D, 0) < 50 {
			return "returns below leader bands"
		}
		if fv(fs.VolumeRatio, 1) < 1.5 {
			return "volume ratio below 1.5"
		}
		if fv(fs.RSI, 50) < 50 {
			return "rsi below 50"
		}
		if fv(fs.VolAnnualized, 0) > 80 {
			return "volatility above 80"
		}

	case StrategyBottomFishing:
		rsi := fv(fs.RSI, 50)
		if rsi < 18 || rsi > 45 {
			return "rsi outside [18, 45]"
		}
		if rsi <= fv(fs.RSIPrev, 50) {
			return "rsi not rising"
		}
		if fv(fs.PricePosition, 1) > 0.45 {
			return "price position above 0.45"
		}
		ret20 := fv(fs.Ret20D, 0)
		if ret20 < -30 || ret20 > 10 {
			return "ret_20d outside [-30, 10]"
		}
		hist, histPrev := fv(fs.MACDHist, 0), fv(fs.MACDHistPrev, 0)
		if hist <= histPrev && hist <= 0 {
			return "macd not turning up"
		}
		if fv(fs.VolumeRatio, 1) < 1.05 {
			return "volume ratio below 1.05"
		}
		if fs.PE != nil && *fs.PE > 35 {
			return "pe above 35"
		}
		if fv(fs.VolAnnualized, 0) > 85 {
			return "volatility above 85"
		}
	}
	return ""
}

// bottomFishingBonus is the strategy-5 extra schedule: deep price location,
// an oversold-but-rising RSI, a turning MACD, mild volume uplift and low PE.
func bottomFishingBonus(fs *factors.FactorSet) float64 {
	bonus := 0.0

	switch pos := fv(fs.PricePosition, 1); {
	case pos <= 0.2:
		bonus += 8
	case pos <= 0.35:
		bonus += 5
	}

	rsi, rsiPrev := fv(fs.RSI, 50), fv(fs.RSIPrev, 50)
	if rsi > rsiPrev {
		switch {
		case rsi <= 30:
			bonus += 8
		case rsi <= 40:
			bonus += 5
		}
	}

	hist, histPrev := fv(fs.MACDHist, 0), fv(fs.MACDHistPrev, 0)
	if hist > histPrev {
		bonus += 5
	}
	if hist > 0 {
		bonus += 3
	}

	if vr := fv(fs.VolumeRatio, 1); vr >= 1.05 && vr <= 1.8 {
		bonus += 5
	}

	if fs.PE != nil && *fs.PE > 0 {
		switch {
		case *fs.PE <= 20:
			bonus += 6
		case *fs.PE <= 35:
			bonus += 3
		}
	}
	return bonus
}

// fillPresentation derives risk level, holding period, target/stop prices
// and buy/sell points from the scores and the current price.
func fillPresentation(stock *domain.ScoredStock, fs *factors.FactorSet, scores componentScores) {
	score := stock.CompositeScore
	vol := fv(fs.VolAnnualized, 0)

	switch {
	case score >= 80 && vol <= 40:
		stock.RiskLevel = domain.RiskLow
	case score >= 60:
		stock.RiskLevel = domain.RiskMed
	default:
		stock.RiskLevel = domain.RiskHigh
	}

	technical := (scores.momentum + scores.trendQuality) / 2
	fundamental := (scores.fundamental + scores.quality) / 2
	switch {
	case technical-fundamental > 20:
		stock.HoldingPeriod = domain.HoldingShort
	case fundamental-technical > 20:
		stock.HoldingPeriod = domain.HoldingLong
	default:
		stock.HoldingPeriod = domain.HoldingMid
	}

	current := fs.CurrentPrice
	if current <= 0 {
		return
	}

	var targetBand float64
	switch {
	case score >= 90:
		targetBand = 0.25
	case score >= 80:
		targetBand = 0.15
	case score >= 70:
		targetBand = 0.10
	case score >= 60:
		targetBand = 0.05
	}
	stock.TargetPrice = current * (1 + targetBand)
	stock.SellPoint = stock.TargetPrice

	var stopBand float64
	switch stock.RiskLevel {
	case domain.RiskLow:
		stopBand = 0.08
	case domain.RiskMed:
		stopBand = 0.10
	default:
		stopBand = 0.15
	}
	stock.StopLossPrice = current * (1 - stopBand)

	var buy float64
	switch {
	case score >= 80:
		buy = fv(fs.MA5, current)
	case score >= 60:
		buy = fv(fs.MA10, current)
	default:
		buy = fv(fs.MA20, current)
	}
	if buy <= 0 || buy > current {
		buy = current
	}
	stock.BuyPoint = buy
}
