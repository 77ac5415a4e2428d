package factors

import (
	"sync"

	"github.com/goldeneye0077/stock-picker/internal/market"
)

// Sector heat is an additive rubric: the sector's 5-day change contributes up
// to 50 points and its main-flow level up to 50, floored at 20. A stock
// without a known industry gets the neutral 50.
const (
	neutralSectorHeat = 50.0
	minSectorHeat     = 20.0
	maxSectorHeat     = 100.0
)

// Industry reference tables. These are configuration data: typical PE per
// industry for the percentile bands, and typical revenue growth used when no
// reported figure is available. Reloadable via SetIndustryTables.
var (
	tableMu sync.RWMutex

	industryTypicalPE = map[string]float64{
		"银行":   6,
		"房地产":  10,
		"煤炭":   9,
		"钢铁":   10,
		"建筑":   10,
		"石油石化": 12,
		"公用事业": 16,
		"交通运输": 15,
		"汽车":   20,
		"家用电器": 18,
		"食品饮料": 28,
		"医药生物": 32,
		"电子":   35,
		"计算机":  40,
		"通信":   30,
		"传媒":   30,
		"电力设备": 28,
		"国防军工": 45,
		"有色金属": 20,
		"机械设备": 25,
	}

	industryRevenueGrowth = map[string]float64{
		"银行":   5,
		"房地产":  -5,
		"煤炭":   3,
		"钢铁":   2,
		"公用事业": 6,
		"食品饮料": 12,
		"医药生物": 15,
		"电子":   18,
		"计算机":  20,
		"通信":   12,
		"电力设备": 25,
		"国防军工": 15,
		"汽车":   10,
		"机械设备": 8,
	}
)

const (
	defaultTypicalPE     = 30.0
	defaultRevenueGrowth = 8.0
)

// SetIndustryTables swaps the industry reference tables. Nil maps keep the
// current table.
func SetIndustryTables(typicalPE, revenueGrowth map[string]float64) {
	tableMu.Lock()
	defer tableMu.Unlock()
	if typicalPE != nil {
		industryTypicalPE = typicalPE
	}
	if revenueGrowth != nil {
		industryRevenueGrowth = revenueGrowth
	}
}

func typicalPEFor(industry string) float64 {
	tableMu.RLock()
	defer tableMu.RUnlock()
	if v, ok := industryTypicalPE[industry]; ok {
		return v
	}
	return defaultTypicalPE
}

func revenueGrowthFor(industry string) float64 {
	tableMu.RLock()
	defer tableMu.RUnlock()
	if v, ok := industryRevenueGrowth[industry]; ok {
		return v
	}
	return defaultRevenueGrowth
}

// pePercentile maps a PE onto [0, 1] relative to the industry's typical PE.
// Negative or zero PE maps to 0; the valuation component adds its own base
// for loss-makers.
func pePercentile(pe, typical float64) float64 {
	if pe <= 0 {
		return 0
	}
	ratio := pe / typical
	switch {
	case ratio <= 0.5:
		return 0.1
	case ratio <= 0.8:
		return 0.3
	case ratio <= 1.0:
		return 0.5
	case ratio <= 1.5:
		return 0.7
	case ratio <= 2.0:
		return 0.85
	default:
		return 0.95
	}
}

// applyFundamentals fills PE/PB/ROE, market cap, the industry-table growth
// figures and the PE percentile.
func (e *Engine) applyFundamentals(fs *FactorSet, in Inputs) {
	rg := revenueGrowthFor(in.Stock.Industry)
	fs.RevenueGrowth = ptr(rg)
	fs.ProfitGrowth = ptr(rg * 0.8)

	if in.Basic == nil {
		return
	}
	fs.PE = in.Basic.PE
	fs.PETTM = in.Basic.PETTM
	fs.PB = in.Basic.PB
	fs.MarketCap = in.Basic.TotalMV

	// ROE ≈ PB / PE × 100 when reported financials are absent
	if in.Basic.PB != nil && in.Basic.PE != nil && *in.Basic.PE > 0 {
		fs.ROE = ptr(*in.Basic.PB / *in.Basic.PE * 100)
	} else {
		fs.ROE = ptr(0)
	}

	if in.Basic.PE != nil {
		fs.PEPercentile = ptr(pePercentile(*in.Basic.PE, typicalPEFor(in.Stock.Industry)))
	}
}

// applySector derives sector heat from the industry's 5-day change and main
// flow, with a limit-up theme bonus when concept data is present.
func (e *Engine) applySector(fs *FactorSet, in Inputs) {
	if in.Stock.Industry == "" || in.Sector == nil {
		fs.SectorHeat = neutralSectorHeat
		return
	}

	fs.SectorChange5D = ptr(in.Sector.Change5d)
	fs.SectorMainFlow = ptr(in.Sector.MainFlow)

	heat := changeHeat(in.Sector.Change5d) + flowHeat(in.Sector.MainFlow)
	if in.Theme != nil {
		heat += themeBonus(in.Theme)
	}
	if heat < minSectorHeat {
		heat = minSectorHeat
	}
	if heat > maxSectorHeat {
		heat = maxSectorHeat
	}
	fs.SectorHeat = heat
}

func changeHeat(change5d float64) float64 {
	switch {
	case change5d >= 10:
		return 50
	case change5d >= 5:
		return 40
	case change5d >= 2:
		return 30
	case change5d >= 0:
		return 20
	case change5d >= -2:
		return 10
	default:
		return 0
	}
}

func flowHeat(mainFlow float64) float64 {
	const yi = 1e8
	switch {
	case mainFlow >= 10*yi:
		return 50
	case mainFlow >= 5*yi:
		return 40
	case mainFlow >= 1*yi:
		return 30
	case mainFlow >= 0:
		return 20
	case mainFlow >= -1*yi:
		return 10
	default:
		return 0
	}
}

// themeBonus rewards membership in an active limit-up concept, capped at 15.
func themeBonus(theme *market.ThemeStats) float64 {
	bonus := float64(theme.MaxZTNum)*2 + float64(theme.MaxHotNum)/10
	if bonus > 15 {
		bonus = 15
	}
	return bonus
}
