package strategy

import (
	"strings"

	"github.com/goldeneye0077/stock-picker/internal/factors"
)

// buildReason assembles the human-readable selection reason: an ordered,
// de-duplicated list of at most four short phrases derived from factor
// thresholds. Deterministic for a given FactorSet.
func buildReason(fs *factors.FactorSet, strategyID int) string {
	var phrases []string
	add := func(p string) {
		for _, have := range phrases {
			if have == p {
				return
			}
		}
		phrases = append(phrases, p)
	}

	if fs.PriceBreakout {
		add("价格突破")
	}
	if fs.VolBreakout {
		add("放量突破")
	}
	rsi := fv(fs.RSI, 50)
	if rsi >= 60 {
		add("RSI强势")
	}
	if strategyID == StrategyBottomFishing && rsi <= 45 && rsi > fv(fs.RSIPrev, 50) {
		add("超跌反弹")
	}
	if fv(fs.Ret20D, 0) >= 10 {
		add("强势动量")
	}
	if fv(fs.SlopePct, 0) >= 0.5 {
		add("趋势向上")
	}
	if fs.SectorHeat >= 60 {
		add("热门板块")
	}
	if fv(fs.ROE, 0) >= 15 && fs.PEPercentile != nil && *fs.PEPercentile <= 0.5 {
		add("绩优低估")
	}
	if fv(fs.SectorMainFlow, 0) >= 1e8 {
		add("主力流入")
	}

	if len(phrases) == 0 {
		return "综合评分入选"
	}
	if len(phrases) > 4 {
		phrases = phrases[:4]
	}
	return strings.Join(phrases, ",")
}
