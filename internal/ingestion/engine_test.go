package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/market"
	"github.com/goldeneye0077/stock-picker/internal/sources"
	testhelpers "github.com/goldeneye0077/stock-picker/internal/testing"
)

// fakeSource drives the engine with canned data. Capabilities without a
// function field return empty results.
type fakeSource struct {
	stocks      func(ctx context.Context) ([]domain.Stock, error)
	daily       func(ctx context.Context, date string) ([]domain.Candle, error)
	basics      func(ctx context.Context, date string) ([]domain.DailyBasic, error)
	fundFlow    func(ctx context.Context, date string) ([]domain.FundFlow, error)
	calendar    func(ctx context.Context, startDate, endDate string) ([]string, error)
	auction     func(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error)
	quotes      func(ctx context.Context, codes []string) ([]domain.Quote, error)
	kplConcepts func(ctx context.Context, date string) (*sources.KplBundle, error)

	dailyCalls int
}

func (f *fakeSource) ListStocks(ctx context.Context) ([]domain.Stock, error) {
	if f.stocks == nil {
		return nil, nil
	}
	return f.stocks(ctx)
}

func (f *fakeSource) DailyByDate(ctx context.Context, date string) ([]domain.Candle, error) {
	f.dailyCalls++
	if f.daily == nil {
		return nil, nil
	}
	return f.daily(ctx, date)
}

func (f *fakeSource) DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error) {
	if f.basics == nil {
		return nil, nil
	}
	return f.basics(ctx, date)
}

func (f *fakeSource) FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error) {
	if f.fundFlow == nil {
		return nil, nil
	}
	return f.fundFlow(ctx, date)
}

func (f *fakeSource) MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error) {
	return nil, nil
}

func (f *fakeSource) SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error) {
	return nil, nil
}

func (f *fakeSource) TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error) {
	if f.calendar == nil {
		return nil, nil
	}
	return f.calendar(ctx, startDate, endDate)
}

func (f *fakeSource) AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error) {
	if f.auction == nil {
		return nil, nil
	}
	return f.auction(ctx, date, codes)
}

func (f *fakeSource) RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	if f.quotes == nil {
		return nil, nil
	}
	return f.quotes(ctx, codes)
}

func (f *fakeSource) KplConceptsByDate(ctx context.Context, date string) (*sources.KplBundle, error) {
	if f.kplConcepts == nil {
		return nil, nil
	}
	return f.kplConcepts(ctx, date)
}

type engineFixture struct {
	engine      *Engine
	klines      *market.KlineRepository
	flows       *market.FundFlowRepository
	basics      *market.DailyBasicRepository
	auctions    *market.AuctionRepository
	concepts    *market.ConceptRepository
	collections *market.CollectionRepository
	cleanup     func()
}

func newEngineFixture(t *testing.T, src Source, cfg Config) *engineFixture {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t)
	conn := db.Conn()
	log := zerolog.Nop()

	stocks := market.NewStockRepository(conn, log)
	klines := market.NewKlineRepository(conn, log)
	basics := market.NewDailyBasicRepository(conn, log)
	flows := market.NewFundFlowRepository(conn, log)
	moneyFlows := market.NewMoneyFlowRepository(conn, log)
	auctions := market.NewAuctionRepository(conn, log)
	concepts := market.NewConceptRepository(conn, log)
	collections := market.NewCollectionRepository(conn, log)

	engine := NewEngine(cfg, src, stocks, klines, basics, flows, moneyFlows, auctions, concepts, collections, log)
	return &engineFixture{
		engine:      engine,
		klines:      klines,
		flows:       flows,
		basics:      basics,
		auctions:    auctions,
		concepts:    concepts,
		collections: collections,
		cleanup:     cleanup,
	}
}

func fastConfig() Config {
	return Config{
		CallDelay:         time.Millisecond,
		RetryCount:        2,
		RetryBaseDelay:    time.Millisecond,
		CompleteThreshold: 3000,
	}
}

func TestRunIncrementalHappyPath(t *testing.T) {
	const date = "2024-06-14"
	codes := []string{"600519", "000001", "300750"}

	src := &fakeSource{
		stocks: func(ctx context.Context) ([]domain.Stock, error) {
			return testhelpers.Stocks(), nil
		},
		calendar: func(ctx context.Context, startDate, endDate string) ([]string, error) {
			return []string{date}, nil
		},
		daily: func(ctx context.Context, d string) ([]domain.Candle, error) {
			var out []domain.Candle
			for _, code := range codes {
				out = append(out, testhelpers.Candles(code, d, 1)...)
			}
			return out, nil
		},
		fundFlow: func(ctx context.Context, d string) ([]domain.FundFlow, error) {
			return testhelpers.FundFlows(d, codes...), nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	run, err := fx.engine.RunIncremental(context.Background(), IncrementalOptions{
		LookbackDays:    1,
		IncludeFundFlow: true,
	})
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, 3, run.StockCount)
	assert.Equal(t, 3, run.KlineCount)
	assert.Equal(t, 3, run.FlowCount)

	count, err := fx.klines.CountByDate(date)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunIncrementalVendorFailureIsLocal(t *testing.T) {
	const date = "2024-06-14"

	src := &fakeSource{
		calendar: func(ctx context.Context, startDate, endDate string) ([]string, error) {
			return []string{date}, nil
		},
		daily: func(ctx context.Context, d string) ([]domain.Candle, error) {
			return testhelpers.Candles("600519", d, 1), nil
		},
		fundFlow: func(ctx context.Context, d string) ([]domain.FundFlow, error) {
			return nil, domain.ErrUnavailable
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	run, err := fx.engine.RunIncremental(context.Background(), IncrementalOptions{
		LookbackDays:    1,
		IncludeFundFlow: true,
	})
	require.NoError(t, err)

	// Candles landed before the flow failure; the run still completes.
	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.KlineCount)
	assert.Equal(t, 0, run.FlowCount)
}

func TestRunIncrementalCancellation(t *testing.T) {
	src := &fakeSource{
		calendar: func(ctx context.Context, startDate, endDate string) ([]string, error) {
			return []string{"2024-06-14"}, nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := fx.engine.RunIncremental(ctx, IncrementalOptions{LookbackDays: 1})
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	require.NotNil(t, run)
	assert.Equal(t, domain.StatusFailed, run.Status)
	assert.Equal(t, "cancelled", run.Error)
}

func TestRunIncrementalSkipsCompleteDates(t *testing.T) {
	const date = "2024-06-14"

	src := &fakeSource{
		calendar: func(ctx context.Context, startDate, endDate string) ([]string, error) {
			return []string{date}, nil
		},
		daily: func(ctx context.Context, d string) ([]domain.Candle, error) {
			return testhelpers.Candles("600519", d, 1), nil
		},
	}

	cfg := fastConfig()
	cfg.CompleteThreshold = 2
	fx := newEngineFixture(t, src, cfg)
	defer fx.cleanup()

	// Seed the date to the threshold.
	seed := append(testhelpers.Candles("600519", date, 1), testhelpers.Candles("000001", date, 1)...)
	require.NoError(t, fx.klines.UpsertBatch(seed))

	run, err := fx.engine.RunIncremental(context.Background(), IncrementalOptions{LookbackDays: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
	assert.Equal(t, 0, run.KlineCount)
	assert.Equal(t, 0, src.dailyCalls)

	// Force re-ingests regardless of the threshold.
	run, err = fx.engine.RunIncremental(context.Background(), IncrementalOptions{LookbackDays: 1, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, run.KlineCount)
	assert.Equal(t, 1, src.dailyCalls)
}

func TestCallWithRetryBacksOffOnRateLimit(t *testing.T) {
	const date = "2024-06-14"

	attempts := 0
	src := &fakeSource{
		calendar: func(ctx context.Context, startDate, endDate string) ([]string, error) {
			return []string{date}, nil
		},
		daily: func(ctx context.Context, d string) ([]domain.Candle, error) {
			attempts++
			if attempts < 3 {
				return nil, domain.ErrRateLimited
			}
			return testhelpers.Candles("600519", d, 1), nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	run, err := fx.engine.RunIncremental(context.Background(), IncrementalOptions{LookbackDays: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, run.KlineCount)
	assert.Equal(t, 3, attempts)
}

func TestRefreshAuctionDropsBeyondLimitPrints(t *testing.T) {
	const date = "2024-06-14"

	src := &fakeSource{
		auction: func(ctx context.Context, d string, codes []string) ([]domain.AuctionSnapshot, error) {
			return []domain.AuctionSnapshot{
				{Code: "600519", SnapshotTS: d + "T09:26:00", PreClose: 100, Price: 105,
					TurnoverRate: 0.5, VolumeRatio: 1.2, FloatShare: 1000},
				// 20% above pre-close on a 10% board: vendor glitch.
				{Code: "600519", SnapshotTS: d + "T09:26:30", PreClose: 100, Price: 120},
			}, nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	stored, err := fx.engine.RefreshAuction(context.Background(), date, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	// Auction-only fields landed in daily_basic.
	basic, err := fx.basics.Get("600519", date)
	require.NoError(t, err)
	require.NotNil(t, basic)
	require.NotNil(t, basic.VolumeRatio)
	assert.InDelta(t, 1.2, *basic.VolumeRatio, 1e-9)
}

func TestRefreshQuotesAppendsHistory(t *testing.T) {
	src := &fakeSource{
		quotes: func(ctx context.Context, codes []string) ([]domain.Quote, error) {
			out := make([]domain.Quote, len(codes))
			for i, code := range codes {
				out[i] = domain.Quote{Code: code, TS: "2024-06-14T10:30:00", Price: 10.5, PreClose: 10.4}
			}
			return out, nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	stored, err := fx.engine.RefreshQuotes(context.Background(), []string{"600519", "000001"})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
}

func TestIngestKplConcepts(t *testing.T) {
	const date = "2024-06-14"

	src := &fakeSource{
		kplConcepts: func(ctx context.Context, d string) (*sources.KplBundle, error) {
			return &sources.KplBundle{
				Concepts: []domain.KplConcept{
					{Date: d, ConceptCode: "KP0001", Name: "低空经济", ZTNum: 8, UpNum: 35},
				},
				Cons: []domain.KplConceptCons{
					{Date: d, ConceptCode: "KP0001", StockCode: "300750", HotNum: 12},
				},
			}, nil
		},
	}

	fx := newEngineFixture(t, src, fastConfig())
	defer fx.cleanup()

	concepts, cons, err := fx.engine.IngestKplConcepts(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, 1, concepts)
	assert.Equal(t, 1, cons)
}
