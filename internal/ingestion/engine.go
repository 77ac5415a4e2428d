// Package ingestion materializes trading-day data into the store: daily
// candles, fundamentals, fund flow, market and sector money flow, call
// auction snapshots, realtime quote history and limit-up concept rows.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/market"
	"github.com/goldeneye0077/stock-picker/internal/sources"
)

// Source is the slice of the router the engine consumes.
type Source interface {
	ListStocks(ctx context.Context) ([]domain.Stock, error)
	DailyByDate(ctx context.Context, date string) ([]domain.Candle, error)
	DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error)
	FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error)
	MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error)
	SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error)
	TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error)
	AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error)
	RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error)
	KplConceptsByDate(ctx context.Context, date string) (*sources.KplBundle, error)
}

// Config tunes pacing, retries and the completeness skip.
type Config struct {
	// CallDelay is the fixed inter-call delay against vendor quota.
	CallDelay time.Duration
	// RetryCount / RetryBaseDelay govern backoff on rate-limited calls.
	RetryCount     int
	RetryBaseDelay time.Duration
	// CompleteThreshold is the kline row count at which a date is skipped.
	CompleteThreshold int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		CallDelay:         500 * time.Millisecond,
		RetryCount:        3,
		RetryBaseDelay:    2 * time.Second,
		CompleteThreshold: 3000,
	}
}

// IncrementalOptions parameterize one RunIncremental call.
type IncrementalOptions struct {
	LookbackDays    int
	IncludeFundFlow bool
	// Force re-ingests dates that already look complete.
	Force bool
}

// Engine drives ingestion against a Source and the market repositories.
type Engine struct {
	cfg    Config
	source Source
	pacer  *rate.Limiter

	stocks      *market.StockRepository
	klines      *market.KlineRepository
	basics      *market.DailyBasicRepository
	flows       *market.FundFlowRepository
	moneyFlows  *market.MoneyFlowRepository
	auctions    *market.AuctionRepository
	concepts    *market.ConceptRepository
	collections *market.CollectionRepository

	now func() time.Time
	log zerolog.Logger
}

// NewEngine wires the engine.
func NewEngine(
	cfg Config,
	source Source,
	stocks *market.StockRepository,
	klines *market.KlineRepository,
	basics *market.DailyBasicRepository,
	flows *market.FundFlowRepository,
	moneyFlows *market.MoneyFlowRepository,
	auctions *market.AuctionRepository,
	concepts *market.ConceptRepository,
	collections *market.CollectionRepository,
	log zerolog.Logger,
) *Engine {
	if cfg.CallDelay <= 0 {
		cfg.CallDelay = DefaultConfig().CallDelay
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultConfig().RetryCount
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if cfg.CompleteThreshold <= 0 {
		cfg.CompleteThreshold = DefaultConfig().CompleteThreshold
	}
	return &Engine{
		cfg:         cfg,
		source:      source,
		pacer:       rate.NewLimiter(rate.Every(cfg.CallDelay), 1),
		stocks:      stocks,
		klines:      klines,
		basics:      basics,
		flows:       flows,
		moneyFlows:  moneyFlows,
		auctions:    auctions,
		concepts:    concepts,
		collections: collections,
		now:         time.Now,
		log:         log.With().Str("component", "ingestion").Logger(),
	}
}

// RunIncremental materializes the trading dates in [today-lookback, today].
// Per-date failures are local; the run fails only on cancellation. The
// returned CollectionRun reflects the final persisted state.
func (e *Engine) RunIncremental(ctx context.Context, opts IncrementalOptions) (*domain.CollectionRun, error) {
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 1
	}

	today := e.now().Format("2006-01-02")
	startDate := e.now().AddDate(0, 0, -opts.LookbackDays).Format("2006-01-02")

	run := domain.CollectionRun{
		ID:        uuid.New().String(),
		Type:      "incremental",
		StartDate: startDate,
		EndDate:   today,
		Status:    domain.StatusPending,
	}
	if err := e.collections.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create collection run: %w", err)
	}
	if err := e.collections.MarkRunning(run.ID); err != nil {
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}
	started := e.now()

	dates := e.tradingDates(ctx, startDate, today)
	e.log.Info().Str("run_id", run.ID).Int("dates", len(dates)).
		Bool("fund_flow", opts.IncludeFundFlow).Msg("Incremental ingestion started")

	var stockCount, klineCount, flowCount int

	universe, err := e.callStocks(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Stock universe fetch failed, continuing with dates")
	} else if len(universe) > 0 {
		if err := e.stocks.UpsertBatch(universe); err != nil {
			e.fail(run.ID, err.Error(), started)
			return e.collections.Get(run.ID)
		}
		stockCount = len(universe)
	}

	for _, date := range dates {
		if ctx.Err() != nil {
			e.fail(run.ID, "cancelled", started)
			got, _ := e.collections.Get(run.ID)
			return got, fmt.Errorf("ingestion run %s: %w", run.ID, domain.ErrTimeout)
		}

		if !opts.Force {
			count, err := e.klines.CountByDate(date)
			if err == nil && count >= e.cfg.CompleteThreshold {
				e.log.Debug().Str("date", date).Int("klines", count).Msg("Date already complete, skipping")
				continue
			}
		}

		k, f, err := e.ingestDate(ctx, date, opts.IncludeFundFlow)
		klineCount += k
		flowCount += f
		if err != nil {
			e.log.Warn().Str("date", date).Err(err).Msg("Date ingestion incomplete, continuing")
		}
		if err := e.collections.UpdateCounts(run.ID, stockCount, klineCount, flowCount, 0); err != nil {
			e.log.Warn().Err(err).Msg("Failed to update run counts")
		}
	}

	if err := e.collections.Complete(run.ID, stockCount, klineCount, flowCount, 0, e.now().Sub(started)); err != nil {
		return nil, fmt.Errorf("failed to complete collection run: %w", err)
	}
	e.log.Info().Str("run_id", run.ID).Int("stocks", stockCount).
		Int("klines", klineCount).Int("flows", flowCount).Msg("Incremental ingestion completed")
	return e.collections.Get(run.ID)
}

func (e *Engine) fail(runID, msg string, started time.Time) {
	if err := e.collections.Fail(runID, msg, e.now().Sub(started)); err != nil {
		e.log.Error().Err(err).Str("run_id", runID).Msg("Failed to mark run failed")
	}
}

// tradingDates resolves the open dates in range, newest first, falling back
// to natural days when no calendar source answers.
func (e *Engine) tradingDates(ctx context.Context, startDate, endDate string) []string {
	dates, err := callWithRetry(e, ctx, func(ctx context.Context) ([]string, error) {
		return e.source.TradeCalendar(ctx, startDate, endDate)
	})
	if err != nil || len(dates) == 0 {
		if err != nil {
			e.log.Warn().Err(err).Msg("Trade calendar unavailable, falling back to natural days")
		}
		dates = naturalDays(startDate, endDate)
	}
	// Newest first so the freshest data lands before any quota trouble
	out := make([]string, len(dates))
	for i, d := range dates {
		out[len(dates)-1-i] = d
	}
	return out
}

// naturalDays returns every calendar day in [startDate, endDate] ascending.
func naturalDays(startDate, endDate string) []string {
	start, err1 := time.Parse("2006-01-02", startDate)
	end, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil || end.Before(start) {
		return nil
	}
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out
}

// ingestDate pulls one date's datasets in fixed order. The first hard error
// aborts the remaining calls for the date; partial writes stay.
func (e *Engine) ingestDate(ctx context.Context, date string, includeFundFlow bool) (klines, flows int, err error) {
	candles, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.Candle, error) {
		return e.source.DailyByDate(ctx, date)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("daily candles for %s: %w", date, err)
	}
	if len(candles) > 0 {
		if err := e.klines.UpsertBatch(candles); err != nil {
			return 0, 0, err
		}
		klines = len(candles)
	}

	basics, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.DailyBasic, error) {
		return e.source.DailyBasicByDate(ctx, date)
	})
	if err != nil {
		return klines, 0, fmt.Errorf("daily basics for %s: %w", date, err)
	}
	if len(basics) > 0 {
		if err := e.basics.UpsertBatch(basics); err != nil {
			return klines, 0, err
		}
	}

	if includeFundFlow {
		ff, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.FundFlow, error) {
			return e.source.FundFlowByDate(ctx, date)
		})
		if err != nil {
			return klines, 0, fmt.Errorf("fund flow for %s: %w", date, err)
		}
		if len(ff) > 0 {
			if err := e.flows.UpsertBatch(ff); err != nil {
				return klines, 0, err
			}
			flows = len(ff)
		}
	}

	mkt, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.MarketMoneyFlow, error) {
		return e.source.MarketMoneyFlow(ctx, date, date)
	})
	if err != nil {
		return klines, flows, fmt.Errorf("market moneyflow for %s: %w", date, err)
	}
	for _, m := range mkt {
		if err := e.moneyFlows.UpsertMarket(m); err != nil {
			return klines, flows, err
		}
	}

	sectors, err := callWithRetry(e, ctx, func(ctx context.Context) ([]domain.SectorMoneyFlow, error) {
		return e.source.SectorMoneyFlow(ctx, date, date)
	})
	if err != nil {
		return klines, flows, fmt.Errorf("sector moneyflow for %s: %w", date, err)
	}
	if len(sectors) > 0 {
		if err := e.moneyFlows.UpsertSectorBatch(sectors); err != nil {
			return klines, flows, err
		}
	}

	return klines, flows, nil
}

func (e *Engine) callStocks(ctx context.Context) ([]domain.Stock, error) {
	return callWithRetry(e, ctx, func(ctx context.Context) ([]domain.Stock, error) {
		return e.source.ListStocks(ctx)
	})
}

// callWithRetry paces one vendor call and retries rate-limited failures with
// exponential backoff (base·2^n) up to the configured count.
func callWithRetry[T any](e *Engine, ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= e.cfg.RetryCount; attempt++ {
		if err := e.pacer.Wait(ctx); err != nil {
			return zero, fmt.Errorf("pacing interrupted: %w", domain.ErrTimeout)
		}

		value, err := call(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrRateLimited) || attempt == e.cfg.RetryCount {
			break
		}

		backoff := e.cfg.RetryBaseDelay * time.Duration(1<<attempt)
		e.log.Warn().Dur("backoff", backoff).Int("attempt", attempt+1).Err(err).
			Msg("Rate limited, backing off")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, fmt.Errorf("backoff interrupted: %w", domain.ErrTimeout)
		}
	}
	return zero, lastErr
}
