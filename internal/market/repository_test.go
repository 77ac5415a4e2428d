package market_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/market"
	testhelpers "github.com/goldeneye0077/stock-picker/internal/testing"
)

func TestStockRepositoryUpsertIdempotent(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewStockRepository(db.Conn(), zerolog.Nop())

	stocks := testhelpers.Stocks()
	require.NoError(t, repo.UpsertBatch(stocks))
	require.NoError(t, repo.UpsertBatch(stocks))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, len(stocks), count)

	got, err := repo.Get("600519")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "贵州茅台", got.Name)
	assert.Equal(t, domain.ExchangeSH, got.Exchange)
	assert.Equal(t, "600519.SH", got.RawCode)
}

func TestStockRepositoryKeepsIndustryOnEmptyUpdate(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewStockRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.UpsertBatch([]domain.Stock{
		{Code: "600519", Name: "贵州茅台", Exchange: domain.ExchangeSH, Industry: "食品饮料", RawCode: "600519.SH"},
	}))
	// Secondary sources carry no industry field; the refresh must not wipe it.
	require.NoError(t, repo.UpsertBatch([]domain.Stock{
		{Code: "600519", Name: "贵州茅台", Exchange: domain.ExchangeSH, Industry: "", RawCode: "600519.SH"},
	}))

	got, err := repo.Get("600519")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "食品饮料", got.Industry)
}

func TestStockRepositoryGetMissing(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewStockRepository(db.Conn(), zerolog.Nop())

	got, err := repo.Get("999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKlineRepositoryQueries(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewKlineRepository(db.Conn(), zerolog.Nop())

	candles := testhelpers.Candles("600519", "2024-06-14", 30)
	require.NoError(t, repo.UpsertBatch(candles))
	require.NoError(t, repo.UpsertBatch(candles)) // idempotent

	recent, err := repo.RecentByCode("600519", 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "2024-06-14", recent[9].Date)
	for i := 1; i < len(recent); i++ {
		assert.Less(t, recent[i-1].Date, recent[i].Date, "ascending order")
	}

	count, err := repo.CountByDate("2024-06-14")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	maxDate, err := repo.MaxDate()
	require.NoError(t, err)
	assert.Equal(t, "2024-06-14", maxDate)

	codes, err := repo.CodesWithHistory("2024-06-01", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"600519"}, codes)

	codes, err = repo.CodesWithHistory("2024-06-01", 100)
	require.NoError(t, err)
	assert.Empty(t, codes)

	has, err := repo.HasRow("600519", "2024-06-14")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = repo.HasRow("600519", "2024-07-01")
	require.NoError(t, err)
	assert.False(t, has)

	amount, err := repo.AmountByCodeDate("600519", "2024-06-14")
	require.NoError(t, err)
	assert.InDelta(t, candles[29].Amount, amount, 1e-6)
	amount, err = repo.AmountByCodeDate("600519", "2024-07-01")
	require.NoError(t, err)
	assert.Zero(t, amount)
}

func TestKlineRepositoryEmptyTable(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewKlineRepository(db.Conn(), zerolog.Nop())

	maxDate, err := repo.MaxDate()
	require.NoError(t, err)
	assert.Equal(t, "", maxDate)

	recent, err := repo.RecentByCode("600519", 60)
	require.NoError(t, err)
	assert.Empty(t, recent)

	// SUM over zero rows must fold to 0, not a NULL scan failure.
	total, invalid, err := repo.CountSince("2024-06-01")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, invalid)
}

func TestFundFlowRepositoryEmptyTable(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewFundFlowRepository(db.Conn(), zerolog.Nop())

	total, invalid, err := repo.CountSince("2024-06-01")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, invalid)

	checked, consistent, err := repo.CountMagnitudeConsistentSince("2024-06-01")
	require.NoError(t, err)
	assert.Zero(t, checked)
	assert.Zero(t, consistent)
}

func TestDailyBasicMergeAuctionFields(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewDailyBasicRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.UpsertBatch([]domain.DailyBasic{{
		Code: "600519", Date: "2024-06-14",
		PE:           testhelpers.Float(28.5),
		TurnoverRate: testhelpers.Float(1.2),
	}}))

	// turnover_rate is already set and must not be clobbered; volume_ratio
	// and float_share are empty and get filled.
	require.NoError(t, repo.MergeAuctionFields("600519", "2024-06-14", 9.9, 1.8, 125000))

	got, err := repo.Get("600519", "2024-06-14")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.TurnoverRate)
	assert.InDelta(t, 1.2, *got.TurnoverRate, 1e-9)
	require.NotNil(t, got.VolumeRatio)
	assert.InDelta(t, 1.8, *got.VolumeRatio, 1e-9)
	require.NotNil(t, got.FloatShare)
	assert.InDelta(t, 125000, *got.FloatShare, 1e-9)
	require.NotNil(t, got.PE)
	assert.InDelta(t, 28.5, *got.PE, 1e-9)
}

func TestDailyBasicMergeAuctionFieldsInsertsPartialRow(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewDailyBasicRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.MergeAuctionFields("000001", "2024-06-14", 0.8, 1.1, 0))

	got, err := repo.Get("000001", "2024-06-14")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.TurnoverRate)
	assert.InDelta(t, 0.8, *got.TurnoverRate, 1e-9)
	assert.Nil(t, got.FloatShare) // zero input stays null
	assert.Nil(t, got.PE)
}

func TestCollectionRunLifecycle(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewCollectionRepository(db.Conn(), zerolog.Nop())

	run := domain.CollectionRun{ID: "run-1", Type: "incremental", StartDate: "2024-06-10", EndDate: "2024-06-14"}
	require.NoError(t, repo.Create(run))

	got, err := repo.Get("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPending, got.Status)

	// pending -> completed is illegal
	err = repo.Complete("run-1", 3, 9, 3, 0, time.Second)
	assert.Error(t, err)

	require.NoError(t, repo.MarkRunning("run-1"))
	require.NoError(t, repo.UpdateCounts("run-1", 3, 6, 2, 0))
	require.NoError(t, repo.Complete("run-1", 3, 9, 3, 0, 2*time.Second))

	got, err = repo.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 9, got.KlineCount)
	assert.Equal(t, 3, got.FlowCount)
	assert.InDelta(t, 2.0, got.ElapsedSec, 1e-9)

	// Terminal states never move again.
	assert.Error(t, repo.MarkRunning("run-1"))
	assert.Error(t, repo.Fail("run-1", "late failure", time.Second))

	latest, err := repo.LatestCompleted()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-1", latest.ID)
}

func TestCollectionRunFail(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewCollectionRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Create(domain.CollectionRun{ID: "run-2", Type: "incremental"}))
	require.NoError(t, repo.MarkRunning("run-2"))
	require.NoError(t, repo.Fail("run-2", "cancelled", time.Second))

	got, err := repo.Get("run-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "cancelled", got.Error)

	latest, err := repo.LatestCompleted()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSelectionRepositoryRoundTrip(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewSelectionRepository(db.Conn(), zerolog.Nop())

	stocks := []domain.ScoredStock{
		{Code: "600519", Name: "贵州茅台", Industry: "食品饮料", StrategyID: 1,
			CompositeScore: 82.5, RiskLevel: domain.RiskLow, HoldingPeriod: domain.HoldingMid,
			SelectionReason: "价格突破,趋势向上"},
		{Code: "000001", Name: "平安银行", Industry: "银行", StrategyID: 1,
			CompositeScore: 71.0, RiskLevel: domain.RiskMed, HoldingPeriod: domain.HoldingShort},
	}
	require.NoError(t, repo.InsertBatch("run-a", "2024-06-14", stocks))

	got, err := repo.ListByRun("run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "600519", got[0].Code) // score descending
	assert.Equal(t, "000001", got[1].Code)

	count, err := repo.CountByRun("run-a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byStrategy, err := repo.ListByStrategy(1, 10)
	require.NoError(t, err)
	require.Len(t, byStrategy, 2)
	assert.Equal(t, "600519", byStrategy[0].Code)
	assert.Equal(t, domain.RiskLow, byStrategy[0].RiskLevel)
	assert.Equal(t, "价格突破,趋势向上", byStrategy[0].SelectionReason)

	byStrategy, err = repo.ListByStrategy(2, 10)
	require.NoError(t, err)
	assert.Empty(t, byStrategy)

	deleted, err := repo.DeleteRun("run-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	got, err = repo.ListByRun("run-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAuctionRepositoryWindowAndQuotes(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewAuctionRepository(db.Conn(), zerolog.Nop())

	snaps := []domain.AuctionSnapshot{
		{Code: "600519", SnapshotTS: "2024-06-14T09:26:00", PreClose: 1700, Price: 1712,
			Vol: 120000, Amount: 2.05e8, TurnoverRate: 0.01, VolumeRatio: 1.1, FloatShare: 1.25e9},
		{Code: "600519", SnapshotTS: "2024-06-14T09:25:00", PreClose: 1700, Price: 1710},
		{Code: "000001", SnapshotTS: "2024-06-14T09:26:00", PreClose: 10.5, Price: 10.6},
	}
	require.NoError(t, repo.UpsertBatch(snaps))

	got, err := repo.ByCodeDate("600519", "2024-06-14")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-14T09:25:00", got[0].SnapshotTS) // ascending
	assert.InDelta(t, 1712, got[1].Price, 1e-9)

	// Clearing the window for one code leaves the other code's rows.
	deleted, err := repo.DeleteWindow("2024-06-14T09:20:00", "2024-06-14T09:30:00", []string{"600519"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	got, err = repo.ByCodeDate("000001", "2024-06-14")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	quotes := []domain.Quote{
		{Code: "600519", TS: "2024-06-14T10:30:00", Price: 1715, PreClose: 1700,
			Open: 1705, High: 1718, Low: 1702, Volume: 2.4e6, Amount: 4.1e9},
	}
	require.NoError(t, repo.AppendQuotes(quotes))
	require.NoError(t, repo.AppendQuotes(quotes)) // same (code, ts) replaces
}

func TestMoneyFlowRepositoryRoundTrip(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewMoneyFlowRepository(db.Conn(), zerolog.Nop())

	mkt := domain.MarketMoneyFlow{
		Date: "2024-06-14", ShIndex: 3032.6, ShPctChange: 0.12,
		SzIndex: 9252.3, SzPctChange: -0.3,
		ExtraLarge: domain.FlowBucket{Amount: 1.2e9, Rate: 3.1},
		Large:      domain.FlowBucket{Amount: -4.0e8, Rate: -1.0},
		Net:        domain.FlowBucket{Amount: 8.0e8, Rate: 2.1},
	}
	require.NoError(t, repo.UpsertMarket(mkt))

	got, err := repo.GetMarket("2024-06-14")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 3032.6, got.ShIndex, 1e-9)
	assert.InDelta(t, 1.2e9, got.ExtraLarge.Amount, 1e-6)

	missing, err := repo.GetMarket("2024-06-13")
	require.NoError(t, err)
	assert.Nil(t, missing)

	sectors := []domain.SectorMoneyFlow{
		{Date: "2024-06-13", SectorCode: "BK0438", SectorName: "食品饮料", PctChange: 1.0,
			ExtraLarge: domain.FlowBucket{Amount: 2e8}, Large: domain.FlowBucket{Amount: 1e8}},
		{Date: "2024-06-14", SectorCode: "BK0438", SectorName: "食品饮料", PctChange: 2.5,
			ExtraLarge: domain.FlowBucket{Amount: 3e8}, Large: domain.FlowBucket{Amount: 2e8}},
	}
	require.NoError(t, repo.UpsertSectorBatch(sectors))

	stats, err := repo.SectorStatsByName("食品饮料")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.InDelta(t, 3.5, stats.Change5d, 1e-9) // 1.0 + 2.5
	assert.InDelta(t, 5e8, stats.MainFlow, 1e-6) // latest xl + lg

	stats, err = repo.SectorStatsByName("不存在")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestQualityRepositoryRoundTrip(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t)
	defer cleanup()
	repo := market.NewQualityRepository(db.Conn(), zerolog.Nop())

	records := []domain.QualityRecord{
		{Date: "2024-06-14", MetricType: "coverage", MetricName: "stock_coverage",
			Value: 98.5, Threshold: 95, IsHealthy: true},
		{Date: "2024-06-14", MetricType: "completeness", MetricName: "missing_rate",
			Value: 12.0, Threshold: 5, IsHealthy: false, AlertLevel: "critical",
			Description: "missing_rate above threshold"},
	}
	require.NoError(t, repo.InsertBatch(records))

	got, err := repo.ListByDate("2024-06-14")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by metric name.
	assert.Equal(t, "missing_rate", got[0].MetricName)
	assert.False(t, got[0].IsHealthy)
	assert.Equal(t, "critical", got[0].AlertLevel)
	assert.Equal(t, "stock_coverage", got[1].MetricName)
	assert.True(t, got[1].IsHealthy)
	assert.Empty(t, got[1].AlertLevel)
}
