package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// RouterConfig configures source ordering and caching.
type RouterConfig struct {
	// Preferred is tried first for every capability.
	Preferred string
	// Fallbacks lists per-capability source names tried after the preferred
	// source. Sources not listed are still tried last, ordered by health.
	Fallbacks map[Capability][]string
	// CacheTTL / CacheMaxEntries size the result cache (zero = defaults).
	CacheTTL        time.Duration
	CacheMaxEntries int
}

// Router selects an adapter per capability call: preferred first, then the
// capability's fallback list, then the remaining adapters ordered by success
// rate. Successful non-empty results are cached with a TTL; every attempt is
// recorded as a health sample. A per-source circuit breaker skips sources
// that keep failing.
type Router struct {
	adapters  []Adapter
	byName    map[string]Adapter
	preferred string
	fallbacks map[Capability][]string
	cache     *ResultCache
	health    *HealthTracker
	breakers  map[string]*gobreaker.CircuitBreaker
	log       zerolog.Logger
}

// NewRouter creates a router over the given adapters.
func NewRouter(adapters []Adapter, cfg RouterConfig, log zerolog.Logger) *Router {
	byName := make(map[string]Adapter, len(adapters))
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
		breakers[a.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    a.Name(),
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return &Router{
		adapters:  adapters,
		byName:    byName,
		preferred: cfg.Preferred,
		fallbacks: cfg.Fallbacks,
		cache:     NewResultCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		health:    NewHealthTracker(),
		breakers:  breakers,
		log:       log.With().Str("component", "source_router").Logger(),
	}
}

// Health returns the rolled-up health of every source.
func (r *Router) Health() []SourceHealth {
	return r.health.SnapshotAll()
}

// CacheStats returns the result-cache counters.
func (r *Router) CacheStats() CacheStats {
	return r.cache.Stats()
}

// candidates returns the adapters to try for a capability, in order:
// preferred, capability fallbacks, then the rest by success rate descending.
// Adapters reporting unavailable are skipped without a health sample.
func (r *Router) candidates(cap Capability) []Adapter {
	seen := make(map[string]bool, len(r.adapters))
	var out []Adapter

	add := func(name string) {
		if seen[name] {
			return
		}
		if a, ok := r.byName[name]; ok && a.Available() {
			out = append(out, a)
		}
		seen[name] = true
	}

	add(r.preferred)
	for _, name := range r.fallbacks[cap] {
		add(name)
	}

	rest := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if !seen[a.Name()] && a.Available() {
			rest = append(rest, a)
			seen[a.Name()] = true
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		return r.health.SuccessRate(rest[i].Name()) > r.health.SuccessRate(rest[j].Name())
	})
	return append(out, rest...)
}

// attempt runs one adapter call through the source's circuit breaker and
// records a health sample. empty results are recorded as no_data.
func attempt[T any](r *Router, ctx context.Context, a Adapter, call func(Adapter, context.Context) (T, error), isEmpty func(T) bool) (T, error) {
	var zero T
	start := time.Now()

	res, err := r.breakers[a.Name()].Execute(func() (interface{}, error) {
		return call(a, ctx)
	})
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		r.health.Record(HealthSample{Source: a.Name(), Result: ResultError, LatencyMS: latency, At: time.Now()})
		return zero, err
	}

	value := res.(T)
	if isEmpty(value) {
		r.health.Record(HealthSample{Source: a.Name(), Result: ResultNoData, LatencyMS: latency, At: time.Now()})
		return zero, domain.ErrNotFound
	}

	r.health.Record(HealthSample{Source: a.Name(), Result: ResultSuccess, LatencyMS: latency, At: time.Now()})
	return value, nil
}

// route is the shared capability dispatch: cache check, ordered attempts,
// cache fill. Empty results fall through to the next source and are never
// cached; an exhausted list returns Unavailable (or the last empty result).
func route[T any](r *Router, ctx context.Context, cap Capability, argsKey string, call func(Adapter, context.Context) (T, error), isEmpty func(T) bool) (T, error) {
	var zero T
	cacheKey := string(cap) + "|" + argsKey

	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", cap, domain.ErrTimeout)
	}

	var cached T
	if r.cache.Get(cacheKey, &cached) {
		return cached, nil
	}

	sawEmpty := false
	var lastErr error
	for _, a := range r.candidates(cap) {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", cap, domain.ErrTimeout)
		}

		value, err := attempt(r, ctx, a, call, isEmpty)
		if err == nil {
			r.cache.Set(cacheKey, value)
			return value, nil
		}

		if errors.Is(err, domain.ErrNotFound) {
			sawEmpty = true
			continue
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", cap, domain.ErrTimeout)
		}
		lastErr = err
		r.log.Warn().Str("capability", string(cap)).Str("source", a.Name()).Err(err).
			Msg("Source attempt failed, trying next")
	}

	if sawEmpty {
		// Every willing source returned an empty table: a legitimate
		// empty result, surfaced as such and never cached.
		return zero, nil
	}
	if lastErr != nil {
		return zero, fmt.Errorf("%s: all sources exhausted (last: %v): %w", cap, lastErr, domain.ErrUnavailable)
	}
	return zero, fmt.Errorf("%s: no source available: %w", cap, domain.ErrUnavailable)
}

func sliceEmpty[E any](s []E) bool { return len(s) == 0 }

// ListStocks fetches the stock universe.
func (r *Router) ListStocks(ctx context.Context) ([]domain.Stock, error) {
	return route(r, ctx, CapListStocks, "all",
		func(a Adapter, ctx context.Context) ([]domain.Stock, error) { return a.ListStocks(ctx) },
		sliceEmpty[domain.Stock])
}

// DailyByDate fetches all candles for one trade date.
func (r *Router) DailyByDate(ctx context.Context, date string) ([]domain.Candle, error) {
	return route(r, ctx, CapDailyByDate, date,
		func(a Adapter, ctx context.Context) ([]domain.Candle, error) { return a.DailyByDate(ctx, date) },
		sliceEmpty[domain.Candle])
}

// DailyByCode fetches one stock's candles over a date range.
func (r *Router) DailyByCode(ctx context.Context, code, startDate, endDate string) ([]domain.Candle, error) {
	return route(r, ctx, CapDailyByCode, strings.Join([]string{code, startDate, endDate}, "|"),
		func(a Adapter, ctx context.Context) ([]domain.Candle, error) {
			return a.DailyByCode(ctx, code, startDate, endDate)
		},
		sliceEmpty[domain.Candle])
}

// FundFlowByDate fetches all fund-flow rows for one trade date.
func (r *Router) FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error) {
	return route(r, ctx, CapFundFlowByDate, date,
		func(a Adapter, ctx context.Context) ([]domain.FundFlow, error) { return a.FundFlowByDate(ctx, date) },
		sliceEmpty[domain.FundFlow])
}

// DailyBasicByDate fetches all daily-basic rows for one trade date.
func (r *Router) DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error) {
	return route(r, ctx, CapDailyBasicByDate, date,
		func(a Adapter, ctx context.Context) ([]domain.DailyBasic, error) { return a.DailyBasicByDate(ctx, date) },
		sliceEmpty[domain.DailyBasic])
}

// MarketMoneyFlow fetches whole-market money-flow rows for a date range.
func (r *Router) MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error) {
	return route(r, ctx, CapMarketMoneyFlow, startDate+"|"+endDate,
		func(a Adapter, ctx context.Context) ([]domain.MarketMoneyFlow, error) {
			return a.MarketMoneyFlow(ctx, startDate, endDate)
		},
		sliceEmpty[domain.MarketMoneyFlow])
}

// SectorMoneyFlow fetches per-sector money-flow rows for a date range.
func (r *Router) SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error) {
	return route(r, ctx, CapSectorMoneyFlow, startDate+"|"+endDate,
		func(a Adapter, ctx context.Context) ([]domain.SectorMoneyFlow, error) {
			return a.SectorMoneyFlow(ctx, startDate, endDate)
		},
		sliceEmpty[domain.SectorMoneyFlow])
}

// TradeCalendar fetches the open trade dates in a range, ascending.
func (r *Router) TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error) {
	return route(r, ctx, CapTradeCalendar, startDate+"|"+endDate,
		func(a Adapter, ctx context.Context) ([]string, error) { return a.TradeCalendar(ctx, startDate, endDate) },
		sliceEmpty[string])
}

// AuctionByDate fetches call-auction snapshots for a date.
func (r *Router) AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error) {
	return route(r, ctx, CapAuctionByDate, date+"|"+strings.Join(codes, ","),
		func(a Adapter, ctx context.Context) ([]domain.AuctionSnapshot, error) {
			return a.AuctionByDate(ctx, date, codes)
		},
		sliceEmpty[domain.AuctionSnapshot])
}

// RealtimeQuotes fetches realtime quotes. Cached like any other capability;
// callers that need tick-fresh prices construct the router with a short TTL.
func (r *Router) RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	return route(r, ctx, CapRealtimeQuotes, strings.Join(codes, ","),
		func(a Adapter, ctx context.Context) ([]domain.Quote, error) { return a.RealtimeQuotes(ctx, codes) },
		sliceEmpty[domain.Quote])
}

// KplConceptsByDate fetches the day's limit-up concept rows and memberships.
func (r *Router) KplConceptsByDate(ctx context.Context, date string) (*KplBundle, error) {
	return route(r, ctx, CapKplConcepts, date,
		func(a Adapter, ctx context.Context) (*KplBundle, error) { return a.KplConceptsByDate(ctx, date) },
		func(b *KplBundle) bool { return b == nil || (len(b.Concepts) == 0 && len(b.Cons) == 0) })
}
