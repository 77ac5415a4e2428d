// Package selection runs a strategy over the stored universe: eligibility
// scan, bounded-concurrency per-stock analysis, cross-cutting filters,
// exchange bucket quotas and history persistence.
package selection

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/factors"
	"github.com/goldeneye0077/stock-picker/internal/market"
	"github.com/goldeneye0077/stock-picker/internal/strategy"
)

const (
	historyWindowDays  = 120
	maxCandlesPerStock = 60
)

// requiredDaysLadder is tried top-down until the eligibility scan yields a
// non-empty universe, so a thin store still produces candidates.
var requiredDaysLadder = []int{20, 15, 10, 5, 3}

// ProgressFunc receives monotone progress: non-decreasing processed and
// selected, constant total.
type ProgressFunc func(processed, total, selected int)

// Config tunes the runner.
type Config struct {
	// Concurrency is the semaphore width; 0 = min(32, max(4, 2×CPU)).
	Concurrency int
	// BatchSize caps stocks between progress ticks (default 256).
	BatchSize int
	// Timeout is the per-run wall clock (default 1200s).
	Timeout time.Duration
}

// DefaultConcurrency returns the auto-sized worker width.
func DefaultConcurrency() int {
	c := 2 * runtime.NumCPU()
	if c < 4 {
		c = 4
	}
	if c > 32 {
		c = 32
	}
	return c
}

// Options parameterize one Run.
type Options struct {
	StrategyID       int
	MinScore         float64
	MaxResults       int
	RequireUptrend   bool
	RequireHotSector bool
	RequireBreakout  bool
	Progress         ProgressFunc
}

// RunResult summarizes one completed run.
type RunResult struct {
	RunID     string               `json:"run_id"`
	Date      string               `json:"date"`
	Total     int                  `json:"total"`
	Processed int                  `json:"processed"`
	Selected  []domain.ScoredStock `json:"selected"`
}

// Runner wires the factor engine and evaluator over the market repositories.
type Runner struct {
	cfg Config

	stocks     *market.StockRepository
	klines     *market.KlineRepository
	basics     *market.DailyBasicRepository
	flows      *market.FundFlowRepository
	moneyFlows *market.MoneyFlowRepository
	concepts   *market.ConceptRepository
	selections *market.SelectionRepository
	indicators *market.IndicatorRepository

	engine    *factors.Engine
	evaluator *strategy.Evaluator

	now func() time.Time
	log zerolog.Logger
}

// NewRunner wires the runner.
func NewRunner(
	cfg Config,
	stocks *market.StockRepository,
	klines *market.KlineRepository,
	basics *market.DailyBasicRepository,
	flows *market.FundFlowRepository,
	moneyFlows *market.MoneyFlowRepository,
	concepts *market.ConceptRepository,
	selections *market.SelectionRepository,
	indicators *market.IndicatorRepository,
	engine *factors.Engine,
	evaluator *strategy.Evaluator,
	log zerolog.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1200 * time.Second
	}
	return &Runner{
		cfg:        cfg,
		stocks:     stocks,
		klines:     klines,
		basics:     basics,
		flows:      flows,
		moneyFlows: moneyFlows,
		concepts:   concepts,
		selections: selections,
		indicators: indicators,
		engine:     engine,
		evaluator:  evaluator,
		now:        time.Now,
		log:        log.With().Str("component", "selection").Logger(),
	}
}

// analyzed pairs a surviving evaluation with its factor snapshot so the
// indicator persistence can reuse it.
type analyzed struct {
	stock   domain.ScoredStock
	factors factors.FactorSet
}

// Run executes one selection pass. maxResults ≤ 0 returns empty without
// touching history. On deadline expiry the run terminates with ErrTimeout.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunResult, error) {
	if opts.MaxResults <= 0 {
		return &RunResult{RunID: "", Selected: nil}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	runDate, _ := r.klines.MaxDate()
	if runDate == "" {
		runDate = r.now().Format("2006-01-02")
	}
	since := r.now().AddDate(0, 0, -historyWindowDays).Format("2006-01-02")

	codes, err := r.eligibleCodes(since)
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible universe: %w", err)
	}

	universe, err := r.stocks.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load stock universe: %w", err)
	}
	byCode := make(map[string]domain.Stock, len(universe))
	for _, s := range universe {
		byCode[s.Code] = s
	}

	total := len(codes)
	progress := newProgressSink(opts.Progress, total, r.log)
	r.log.Info().Int("strategy", opts.StrategyID).Int("universe", total).
		Int("concurrency", r.cfg.Concurrency).Msg("Selection run started")

	var (
		mu        sync.Mutex
		survivors []analyzed
		sectors   = newSectorCache(r.moneyFlows)
	)

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup

	for start := 0; start < total; start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > total {
			end = total
		}

		for _, code := range codes[start:end] {
			if ctx.Err() != nil {
				break
			}
			acquired := false
			select {
			case sem <- struct{}{}:
				acquired = true
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				// The acquire can race the cancellation; give the token back.
				if acquired {
					<-sem
				}
				break
			}

			wg.Add(1)
			go func(code string) {
				defer wg.Done()
				defer func() { <-sem }()

				result, ok := r.analyze(code, runDate, byCode, sectors, opts)
				mu.Lock()
				if ok {
					survivors = append(survivors, result)
				}
				selected := len(survivors)
				mu.Unlock()
				progress.tick(selected)
			}(code)
		}

		// Batch boundary: wait so memory stays bounded between ticks
		wg.Wait()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("selection run: %w", domain.ErrTimeout)
		}
	}
	wg.Wait()

	final := bucketAndPick(survivors, opts.MaxResults)

	runID := uuid.New().String()
	picked := make([]domain.ScoredStock, len(final))
	for i, a := range final {
		picked[i] = a.stock
		picked[i].RunID = runID
	}

	if len(picked) > 0 {
		if err := r.selections.InsertBatch(runID, runDate, picked); err != nil {
			return nil, fmt.Errorf("failed to persist selection history: %w", err)
		}
		r.persistIndicators(final, runDate)
	}

	progress.final(len(picked))
	r.log.Info().Str("run_id", runID).Int("selected", len(picked)).
		Int("processed", progress.processedCount()).Msg("Selection run completed")

	return &RunResult{
		RunID:     runID,
		Date:      runDate,
		Total:     total,
		Processed: progress.processedCount(),
		Selected:  picked,
	}, nil
}

// eligibleCodes walks the required-days ladder until the scan yields codes.
func (r *Runner) eligibleCodes(since string) ([]string, error) {
	var lastErr error
	for _, rd := range requiredDaysLadder {
		codes, err := r.klines.CodesWithHistory(since, rd)
		if err != nil {
			lastErr = err
			continue
		}
		if len(codes) > 0 {
			return codes, nil
		}
	}
	return nil, lastErr
}

// analyze runs one stock through factors and the evaluator. Any error drops
// the candidate; the run keeps going.
func (r *Runner) analyze(code, runDate string, byCode map[string]domain.Stock, sectors *sectorCache, opts Options) (analyzed, bool) {
	stock, ok := byCode[code]
	if !ok {
		stock = domain.Stock{Code: code, Exchange: domain.ExchangeFromCode(code)}
	}

	candles, err := r.klines.RecentByCode(code, maxCandlesPerStock)
	if err != nil || len(candles) == 0 {
		return analyzed{}, false
	}
	basic, err := r.basics.Latest(code)
	if err != nil {
		return analyzed{}, false
	}
	flow, err := r.flows.Latest(code)
	if err != nil {
		return analyzed{}, false
	}

	theme, err := r.concepts.ThemeStatsFor(code, runDate)
	if err != nil {
		theme = nil
	}

	fs := r.engine.Compute(factors.Inputs{
		Stock:   stock,
		Candles: candles,
		Basic:   basic,
		Flow:    flow,
		Sector:  sectors.get(stock.Industry),
		Theme:   theme,
	})

	result, err := r.evaluator.Evaluate(&fs, opts.StrategyID)
	if err != nil || result.Filtered {
		return analyzed{}, false
	}
	if !passesCrossFilters(&fs, result.Stock.CompositeScore, opts) {
		return analyzed{}, false
	}
	return analyzed{stock: result.Stock, factors: fs}, true
}

// passesCrossFilters applies the caller's run-level filters. Strategy 1 with
// breakoutReq demands a price breakout specifically; other strategies accept
// either breakout flavor.
func passesCrossFilters(fs *factors.FactorSet, score float64, opts Options) bool {
	if score < opts.MinScore {
		return false
	}
	if opts.RequireUptrend && (fs.SlopePct == nil || *fs.SlopePct < 0.2) {
		return false
	}
	if opts.RequireHotSector && fs.SectorHeat < 30 {
		return false
	}
	if opts.RequireBreakout {
		if opts.StrategyID == strategy.StrategyMomentumBreakout {
			if !fs.PriceBreakout {
				return false
			}
		} else if !fs.PriceBreakout && !fs.VolBreakout {
			return false
		}
	}
	return true
}

// persistIndicators stores the MA/RSI/MACD snapshot of every selected stock.
func (r *Runner) persistIndicators(final []analyzed, date string) {
	rows := make([]domain.TechnicalIndicator, 0, len(final))
	for _, a := range final {
		rows = append(rows, domain.TechnicalIndicator{
			Code:       a.stock.Code,
			Date:       date,
			MA5:        a.factors.MA5,
			MA10:       a.factors.MA10,
			MA20:       a.factors.MA20,
			RSI:        a.factors.RSI,
			MACD:       a.factors.MACD,
			MACDSignal: a.factors.MACDSignal,
			MACDHist:   a.factors.MACDHist,
		})
	}
	if err := r.indicators.UpsertBatch(rows); err != nil {
		r.log.Warn().Err(err).Msg("Failed to persist indicator snapshots")
	}
}
