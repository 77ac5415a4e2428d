// Package strategy turns a FactorSet into a ScoredStock under one of the
// five selection strategies, or rejects the candidate via hard filters.
package strategy

import (
	"github.com/goldeneye0077/stock-picker/internal/factors"
)

// componentScores are the base scores, each clamped to [0, 100].
type componentScores struct {
	momentum     float64
	trendQuality float64
	sector       float64 // sector_heat × 0.25, pre-weighted
	fundamental  float64
	valuation    float64
	quality      float64
	growth       float64
	volume       float64
	sentiment    float64
	risk         float64
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// fv dereferences a nullable factor with a default.
func fv(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func computeScores(fs *factors.FactorSet) componentScores {
	return componentScores{
		momentum:     momentumScore(fs),
		trendQuality: trendQualityScore(fs),
		sector:       fs.SectorHeat * 0.25,
		fundamental:  fundamentalScore(fs),
		valuation:    valuationScore(fs),
		quality:      qualityScore(fs),
		growth:       growthScore(fs),
		volume:       volumeScore(fs),
		sentiment:    sentimentScore(fs),
		risk:         riskScore(fs),
	}
}

// momentumScore: ret_20d bands, ret_60d bands, a healthy-RSI bonus, the MACD
// histogram sign and the two breakout bonuses.
func momentumScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch ret20 := fv(fs.Ret20D, 0); {
	case ret20 >= 20:
		score += 20
	case ret20 >= 10:
		score += 10
	case ret20 >= 5:
		score += 7
	case ret20 >= 0:
		score += 3
	}

	switch ret60 := fv(fs.Ret60D, 0); {
	case ret60 >= 50:
		score += 10
	case ret60 >= 30:
		score += 5
	}

	if rsi := fv(fs.RSI, 50); rsi >= 50 && rsi <= 70 {
		score += 10
	}
	if fv(fs.MACDHist, 0) > 0 {
		score += 5
	}
	if fs.PriceBreakout {
		score += 10
	}
	if fs.VolBreakout {
		score += 10
	}
	return clamp(score)
}

// trendQualityScore: slope bands, r² bands and a Sharpe bonus.
func trendQualityScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch slope := fv(fs.SlopePct, 0); {
	case slope >= 1.0:
		score += 40
	case slope >= 0.5:
		score += 30
	case slope >= 0.25:
		score += 20
	case slope >= 0.1:
		score += 10
	case slope >= 0:
		score += 5
	}

	switch r2 := fv(fs.R2, 0); {
	case r2 >= 0.8:
		score += 40
	case r2 >= 0.6:
		score += 30
	case r2 >= 0.45:
		score += 20
	case r2 >= 0.25:
		score += 10
	}

	switch sharpe := fv(fs.Sharpe, 0); {
	case sharpe >= 2:
		score += 20
	case sharpe >= 1:
		score += 10
	case sharpe >= 0.5:
		score += 5
	}
	return clamp(score)
}

// fundamentalScore: ROE band + PE band + revenue-growth band with penalties
// for loss-makers and shrinking revenue.
func fundamentalScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch roe := fv(fs.ROE, 0); {
	case roe >= 20:
		score += 40
	case roe >= 15:
		score += 30
	case roe >= 10:
		score += 20
	case roe >= 5:
		score += 10
	}

	pe := fv(fs.PE, 0)
	switch {
	case pe > 0 && pe <= 15:
		score += 30
	case pe > 0 && pe <= 25:
		score += 20
	case pe > 0 && pe <= 40:
		score += 10
	case pe > 0 && pe <= 60:
		score += 5
	case fs.PE != nil && pe <= 0:
		score -= 10
	}

	switch rg := fv(fs.RevenueGrowth, 0); {
	case rg >= 30:
		score += 30
	case rg >= 15:
		score += 20
	case rg >= 5:
		score += 10
	case rg >= 0:
		score += 5
	default:
		score -= 5
	}
	return clamp(score)
}

// valuationScore rewards a low PE percentile and a modest PB. Negative PE
// maps to percentile 0 but earns only a small base, so loss-makers are
// dampened rather than eliminated.
func valuationScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch {
	case fs.PE != nil && *fs.PE <= 0:
		score += 30
	case fs.PEPercentile != nil:
		score += (1 - *fs.PEPercentile) * 80
	default:
		score += 30
	}

	if pb := fv(fs.PB, 0); pb > 0 {
		switch {
		case pb <= 1.5:
			score += 20
		case pb <= 3:
			score += 10
		}
	}
	return clamp(score)
}

// qualityScore blends profitability with risk discipline.
func qualityScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch roe := fv(fs.ROE, 0); {
	case roe >= 15:
		score += 40
	case roe >= 10:
		score += 30
	case roe >= 5:
		score += 15
	}

	switch dd := fv(fs.MaxDrawdown, 0); {
	case dd >= -10:
		score += 30
	case dd >= -20:
		score += 20
	case dd >= -30:
		score += 10
	}

	switch sharpe := fv(fs.Sharpe, 0); {
	case sharpe >= 1:
		score += 30
	case sharpe >= 0.5:
		score += 20
	case sharpe >= 0:
		score += 10
	}
	return clamp(score)
}

func growthScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch rg := fv(fs.RevenueGrowth, 0); {
	case rg >= 30:
		score += 50
	case rg >= 20:
		score += 40
	case rg >= 10:
		score += 30
	case rg >= 5:
		score += 20
	case rg >= 0:
		score += 10
	}

	switch pg := fv(fs.ProfitGrowth, 0); {
	case pg >= 25:
		score += 30
	case pg >= 10:
		score += 20
	case pg >= 0:
		score += 10
	}
	return clamp(score)
}

func volumeScore(fs *factors.FactorSet) float64 {
	score := 0.0

	switch vr := fv(fs.VolumeRatio, 1); {
	case vr >= 2:
		score += 50
	case vr >= 1.5:
		score += 40
	case vr >= 1.2:
		score += 30
	case vr >= 1:
		score += 20
	case vr >= 0.8:
		score += 10
	}

	if fs.VolBreakout {
		score += 30
	}
	return clamp(score)
}

// sentimentScore: sector main-flow bands plus a nudge from the stock's own
// main fund flow.
func sentimentScore(fs *factors.FactorSet) float64 {
	const yi = 1e8
	score := 0.0

	switch mf := fv(fs.SectorMainFlow, 0); {
	case mf >= 10*yi:
		score += 80
	case mf >= 5*yi:
		score += 65
	case mf >= 1*yi:
		score += 50
	case mf >= 0:
		score += 40
	case mf >= -1*yi:
		score += 25
	default:
		score += 10
	}

	if stock := fv(fs.MainFundFlow, 0); stock > 0 {
		score += 5
	} else if stock < 0 {
		score -= 5
	}
	return clamp(score)
}

// riskScore: lower volatility and milder drawdown score higher. Unknown
// risk inputs are neutral.
func riskScore(fs *factors.FactorSet) float64 {
	if fs.VolAnnualized == nil && fs.MaxDrawdown == nil {
		return 50
	}
	score := 100.0

	switch vol := fv(fs.VolAnnualized, 0); {
	case vol <= 20:
	case vol <= 40:
		score -= 10
	case vol <= 60:
		score -= 25
	case vol <= 80:
		score -= 40
	default:
		score -= 60
	}

	switch dd := fv(fs.MaxDrawdown, 0); {
	case dd >= -5:
	case dd >= -10:
		score -= 5
	case dd >= -20:
		score -= 15
	case dd >= -30:
		score -= 30
	default:
		score -= 45
	}
	return clamp(score)
}
