package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// stubAdapter serves only the capabilities whose function fields are set;
// everything else returns Unavailable, like a real partial vendor.
type stubAdapter struct {
	name      string
	available bool

	listStocks  func(ctx context.Context) ([]domain.Stock, error)
	dailyByDate func(ctx context.Context, date string) ([]domain.Candle, error)

	calls map[string]int
}

func newStubAdapter(name string) *stubAdapter {
	return &stubAdapter{name: name, available: true, calls: make(map[string]int)}
}

func (s *stubAdapter) Name() string    { return s.name }
func (s *stubAdapter) Available() bool { return s.available }

func (s *stubAdapter) ListStocks(ctx context.Context) ([]domain.Stock, error) {
	s.calls["list_stocks"]++
	if s.listStocks == nil {
		return nil, domain.ErrUnavailable
	}
	return s.listStocks(ctx)
}

func (s *stubAdapter) DailyByDate(ctx context.Context, date string) ([]domain.Candle, error) {
	s.calls["daily_by_date"]++
	if s.dailyByDate == nil {
		return nil, domain.ErrUnavailable
	}
	return s.dailyByDate(ctx, date)
}

func (s *stubAdapter) DailyByCode(ctx context.Context, code, startDate, endDate string) ([]domain.Candle, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	return nil, domain.ErrUnavailable
}

func (s *stubAdapter) KplConceptsByDate(ctx context.Context, date string) (*KplBundle, error) {
	return nil, domain.ErrUnavailable
}

func testRouter(cfg RouterConfig, adapters ...Adapter) *Router {
	return NewRouter(adapters, cfg, zerolog.Nop())
}

func TestRouterFallsBackOnRecoverableError(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return nil, domain.ErrRateLimited
	}
	secondary := newStubAdapter("secondary")
	secondary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return []domain.Stock{{Code: "600519", Name: "贵州茅台"}}, nil
	}

	r := testRouter(RouterConfig{
		Preferred: "primary",
		Fallbacks: map[Capability][]string{CapListStocks: {"secondary"}},
	}, primary, secondary)

	stocks, err := r.ListStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, "600519", stocks[0].Code)
	assert.Equal(t, 1, primary.calls["list_stocks"])
	assert.Equal(t, 1, secondary.calls["list_stocks"])
}

func TestRouterSkipsUnavailableAdapter(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.available = false
	secondary := newStubAdapter("secondary")
	secondary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return []domain.Stock{{Code: "000001"}}, nil
	}

	r := testRouter(RouterConfig{Preferred: "primary"}, primary, secondary)

	stocks, err := r.ListStocks(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, 0, primary.calls["list_stocks"])
}

func TestRouterEmptyResultIsNotAnErrorAndNotCached(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.dailyByDate = func(ctx context.Context, date string) ([]domain.Candle, error) {
		return []domain.Candle{}, nil
	}

	r := testRouter(RouterConfig{Preferred: "primary"}, primary)

	candles, err := r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	assert.Empty(t, candles)

	// A second call must reach the adapter again: empty results never cache.
	_, err = r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls["daily_by_date"])
}

func TestRouterCachesSuccessfulResults(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.dailyByDate = func(ctx context.Context, date string) ([]domain.Candle, error) {
		return []domain.Candle{{Code: "600519", Date: date, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}}, nil
	}

	r := testRouter(RouterConfig{Preferred: "primary"}, primary)

	first, err := r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Mutating the returned slice must not poison the cache.
	first[0].Close = -999

	second, err := r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.InDelta(t, 10.5, second[0].Close, 1e-9)
	assert.Equal(t, 1, primary.calls["daily_by_date"])

	// Different date misses the cache.
	_, err = r.DailyByDate(context.Background(), "2024-06-13")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls["daily_by_date"])
}

func TestRouterCacheTTLExpiry(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.dailyByDate = func(ctx context.Context, date string) ([]domain.Candle, error) {
		return []domain.Candle{{Code: "600519", Date: date, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}, nil
	}

	r := testRouter(RouterConfig{Preferred: "primary", CacheTTL: 20 * time.Millisecond}, primary)

	_, err := r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = r.DailyByDate(context.Background(), "2024-06-14")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls["daily_by_date"])
}

func TestRouterExpiredContext(t *testing.T) {
	primary := newStubAdapter("primary")
	r := testRouter(RouterConfig{Preferred: "primary"}, primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ListStocks(ctx)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, 0, primary.calls["list_stocks"])
}

func TestRouterAllSourcesExhausted(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return nil, domain.ErrIO
	}

	r := testRouter(RouterConfig{Preferred: "primary"}, primary)

	_, err := r.ListStocks(context.Background())
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
}

func TestRouterRecordsHealthSamples(t *testing.T) {
	primary := newStubAdapter("primary")
	primary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return nil, domain.ErrIO
	}
	secondary := newStubAdapter("secondary")
	secondary.listStocks = func(ctx context.Context) ([]domain.Stock, error) {
		return []domain.Stock{{Code: "600519"}}, nil
	}

	r := testRouter(RouterConfig{
		Preferred: "primary",
		Fallbacks: map[Capability][]string{CapListStocks: {"secondary"}},
	}, primary, secondary)

	_, err := r.ListStocks(context.Background())
	require.NoError(t, err)

	health := r.Health()
	byName := make(map[string]SourceHealth, len(health))
	for _, h := range health {
		byName[h.Source] = h
	}
	assert.Equal(t, int64(1), byName["primary"].Failed)
	assert.Equal(t, int64(1), byName["secondary"].Successful)
}
