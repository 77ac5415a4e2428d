// Package sources defines the uniform contract over external data vendors
// and the router that picks a vendor per call, with health tracking and a
// TTL result cache.
package sources

import (
	"context"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// Capability names one adapter operation. Used as the cache-key prefix and
// for per-capability fallback configuration.
type Capability string

const (
	CapListStocks       Capability = "list_stocks"
	CapDailyByDate      Capability = "daily_by_date"
	CapDailyByCode      Capability = "daily_by_code"
	CapFundFlowByDate   Capability = "fund_flow_by_date"
	CapDailyBasicByDate Capability = "daily_basic_by_date"
	CapMarketMoneyFlow  Capability = "market_moneyflow"
	CapSectorMoneyFlow  Capability = "sector_moneyflow"
	CapTradeCalendar    Capability = "trade_calendar"
	CapAuctionByDate    Capability = "auction_by_date"
	CapRealtimeQuotes   Capability = "realtime_quotes"
	CapKplConcepts      Capability = "kpl_concepts"
)

// KplBundle pairs a day's concept rows with their memberships.
type KplBundle struct {
	Concepts []domain.KplConcept     `msgpack:"concepts"`
	Cons     []domain.KplConceptCons `msgpack:"cons"`
}

// Adapter is the capability set every vendor implements. Adapters return
// canonical rows (units already converted) and typed error kinds; a vendor
// that does not serve a capability returns domain.ErrUnavailable as a normal
// result, not a panic. Adapters never cache.
type Adapter interface {
	// Name identifies the source in health metrics and logs.
	Name() string
	// Available reports synchronously whether the adapter can serve calls
	// at all (e.g. token configured). It must not do I/O.
	Available() bool

	ListStocks(ctx context.Context) ([]domain.Stock, error)
	DailyByDate(ctx context.Context, date string) ([]domain.Candle, error)
	DailyByCode(ctx context.Context, code, startDate, endDate string) ([]domain.Candle, error)
	FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error)
	DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error)
	MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error)
	SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error)
	TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error)
	AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error)
	RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error)
	KplConceptsByDate(ctx context.Context, date string) (*KplBundle, error)
}
