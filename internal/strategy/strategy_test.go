package strategy

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/factors"
	testhelpers "github.com/goldeneye0077/stock-picker/internal/testing"
)

func TestMomentumScoreBands(t *testing.T) {
	fs := &factors.FactorSet{
		Ret20D:        testhelpers.Float(12),
		RSI:           testhelpers.Float(55),
		MACDHist:      testhelpers.Float(0.1),
		PriceBreakout: true,
		VolBreakout:   true,
	}
	// 10 (ret20 >= 10) + 10 (rsi in [50, 70]) + 5 (hist > 0) + 10 + 10
	assert.InDelta(t, 45.0, momentumScore(fs), 1e-9)

	fs = &factors.FactorSet{Ret20D: testhelpers.Float(25), Ret60D: testhelpers.Float(60)}
	// 20 + 10; default RSI 50 earns the band bonus
	assert.InDelta(t, 40.0, momentumScore(fs), 1e-9)

	fs = &factors.FactorSet{Ret20D: testhelpers.Float(-5), RSI: testhelpers.Float(80)}
	assert.InDelta(t, 0.0, momentumScore(fs), 1e-9)
}

func TestValueGrowthHardFilter(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())

	fs := &factors.FactorSet{
		Code: "000001", Name: "平安银行",
		ROE:           testhelpers.Float(8),
		PE:            testhelpers.Float(20),
		RevenueGrowth: testhelpers.Float(10),
	}

	res, err := ev.Evaluate(fs, StrategyValueGrowth)
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, "roe below 10", res.FilterReason)
}

func TestValueGrowthPasses(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())

	fs := &factors.FactorSet{
		Code: "600519", Name: "贵州茅台", Industry: "食品饮料",
		ROE:           testhelpers.Float(25),
		PE:            testhelpers.Float(28),
		PEPercentile:  testhelpers.Float(0.5),
		PB:            testhelpers.Float(8),
		RevenueGrowth: testhelpers.Float(15),
		ProfitGrowth:  testhelpers.Float(12),
		SectorHeat:    50,
		CurrentPrice:  1700,
	}

	res, err := ev.Evaluate(fs, StrategyValueGrowth)
	require.NoError(t, err)
	require.False(t, res.Filtered)
	assert.Equal(t, StrategyValueGrowth, res.Stock.StrategyID)
	assert.Greater(t, res.Stock.CompositeScore, 50.0)
	assert.LessOrEqual(t, res.Stock.CompositeScore, 100.0)
	assert.NotEmpty(t, res.Stock.SelectionReason)
}

func TestUnknownStrategyID(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())
	_, err := ev.Evaluate(&factors.FactorSet{}, 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDefaultFactorSetNeverScoresAboveNeutral(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())
	fs := &factors.FactorSet{Code: "000000", SectorHeat: 50}

	for id := StrategyMomentumBreakout; id <= StrategyBottomFishing; id++ {
		res, err := ev.Evaluate(fs, id)
		require.NoError(t, err)
		if res.Filtered {
			continue
		}
		assert.LessOrEqual(t, res.Stock.CompositeScore, 50.0, "strategy %d", id)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())
	fs := &factors.FactorSet{
		Code: "300750", Name: "宁德时代", Industry: "电力设备",
		Ret20D:        testhelpers.Float(22),
		Ret60D:        testhelpers.Float(55),
		RSI:           testhelpers.Float(62),
		RSIPrev:       testhelpers.Float(58),
		MACDHist:      testhelpers.Float(0.5),
		SlopePct:      testhelpers.Float(0.8),
		R2:            testhelpers.Float(0.85),
		Sharpe:        testhelpers.Float(1.5),
		VolAnnualized: testhelpers.Float(35),
		MaxDrawdown:   testhelpers.Float(-8),
		VolumeRatio:   testhelpers.Float(1.9),
		VolBreakout:   true,
		PriceBreakout: true,
		SectorHeat:    80,
		CurrentPrice:  200,
		MA5:           testhelpers.Float(195),
	}

	first, err := ev.Evaluate(fs, StrategyMomentumBreakout)
	require.NoError(t, err)
	require.False(t, first.Filtered)

	second, err := ev.Evaluate(fs, StrategyMomentumBreakout)
	require.NoError(t, err)
	assert.Equal(t, first.Stock, second.Stock)
}

func TestMomentumBreakoutRequiresBreakout(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())
	fs := &factors.FactorSet{
		Ret20D:      testhelpers.Float(25),
		RSI:         testhelpers.Float(60),
		MACDHist:    testhelpers.Float(0.2),
		VolBreakout: true,
		SectorHeat:  50,
	}

	res, err := ev.Evaluate(fs, StrategyMomentumBreakout)
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, "no price breakout", res.FilterReason)
}

func TestBottomFishingFilters(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())

	base := func() *factors.FactorSet {
		return &factors.FactorSet{
			Code:          "002594",
			RSI:           testhelpers.Float(35),
			RSIPrev:       testhelpers.Float(30),
			PricePosition: testhelpers.Float(0.2),
			Ret20D:        testhelpers.Float(-12),
			MACDHist:      testhelpers.Float(-0.1),
			MACDHistPrev:  testhelpers.Float(-0.3),
			VolumeRatio:   testhelpers.Float(1.2),
			VolAnnualized: testhelpers.Float(40),
			MaxDrawdown:   testhelpers.Float(-18),
			SectorHeat:    50,
			CurrentPrice:  25,
		}
	}

	res, err := ev.Evaluate(base(), StrategyBottomFishing)
	require.NoError(t, err)
	assert.False(t, res.Filtered)

	overheated := base()
	overheated.RSI = testhelpers.Float(55)
	res, err = ev.Evaluate(overheated, StrategyBottomFishing)
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, "rsi outside [18, 45]", res.FilterReason)

	falling := base()
	falling.RSIPrev = testhelpers.Float(40)
	res, err = ev.Evaluate(falling, StrategyBottomFishing)
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, "rsi not rising", res.FilterReason)

	high := base()
	high.PricePosition = testhelpers.Float(0.7)
	res, err = ev.Evaluate(high, StrategyBottomFishing)
	require.NoError(t, err)
	assert.True(t, res.Filtered)
	assert.Equal(t, "price position above 0.45", res.FilterReason)
}

func TestPresentationFields(t *testing.T) {
	ev := NewEvaluator(zerolog.Nop())
	fs := &factors.FactorSet{
		Code: "300750", Name: "宁德时代",
		Ret20D:         testhelpers.Float(22),
		Ret60D:         testhelpers.Float(55),
		RSI:            testhelpers.Float(62),
		MACDHist:       testhelpers.Float(0.5),
		SlopePct:       testhelpers.Float(1.2),
		R2:             testhelpers.Float(0.9),
		Sharpe:         testhelpers.Float(2.1),
		VolAnnualized:  testhelpers.Float(30),
		MaxDrawdown:    testhelpers.Float(-4),
		VolumeRatio:    testhelpers.Float(2.2),
		VolBreakout:    true,
		PriceBreakout:  true,
		SectorHeat:     90,
		SectorMainFlow: testhelpers.Float(12e8),
		CurrentPrice:   200,
		MA5:            testhelpers.Float(196),
		MA10:           testhelpers.Float(190),
	}

	res, err := ev.Evaluate(fs, StrategyMomentumBreakout)
	require.NoError(t, err)
	require.False(t, res.Filtered)

	s := res.Stock
	assert.Greater(t, s.CompositeScore, 60.0)
	assert.Greater(t, s.TargetPrice, 200.0)
	assert.Less(t, s.StopLossPrice, 200.0)
	assert.InDelta(t, s.TargetPrice, s.SellPoint, 1e-9)
	assert.LessOrEqual(t, s.BuyPoint, 200.0)
	assert.Greater(t, s.BuyPoint, 0.0)
	assert.Contains(t, []domain.RiskLevel{domain.RiskLow, domain.RiskMed}, s.RiskLevel)
}

func TestBuildReason(t *testing.T) {
	fs := &factors.FactorSet{
		PriceBreakout:  true,
		VolBreakout:    true,
		RSI:            testhelpers.Float(65),
		Ret20D:         testhelpers.Float(15),
		SlopePct:       testhelpers.Float(0.8),
		SectorHeat:     70,
		SectorMainFlow: testhelpers.Float(2e8),
	}
	reason := buildReason(fs, StrategyMomentumBreakout)
	// Capped at four phrases, ordered by rule position.
	assert.Equal(t, "价格突破,放量突破,RSI强势,强势动量", reason)

	assert.Equal(t, "综合评分入选", buildReason(&factors.FactorSet{RSI: testhelpers.Float(50)}, StrategyTrendFollowing))
}

func TestStrategyName(t *testing.T) {
	assert.Equal(t, "momentum_breakout", Name(StrategyMomentumBreakout))
	assert.Equal(t, "bottom_fishing", Name(StrategyBottomFishing))
	assert.Equal(t, "unknown", Name(42))
}
