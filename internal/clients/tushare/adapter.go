package tushare

import (
	"context"
	"strings"
	"time"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/sources"
)

// SourceName is how this adapter identifies itself to the router.
const SourceName = "tushare"

// Adapter exposes the full capability surface over the Tushare Pro client.
type Adapter struct {
	client *Client
	now    func() time.Time
}

// NewAdapter wraps a client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

func (a *Adapter) Name() string { return SourceName }

// Available reports whether a token is configured. No I/O.
func (a *Adapter) Available() bool { return a.client.HasToken() }

func (a *Adapter) ListStocks(ctx context.Context) ([]domain.Stock, error) {
	table, err := a.client.Call(ctx, "stock_basic",
		map[string]interface{}{"list_status": "L"},
		"ts_code,symbol,name,industry")
	if err != nil {
		return nil, err
	}
	return transformStocks(table)
}

func (a *Adapter) DailyByDate(ctx context.Context, date string) ([]domain.Candle, error) {
	table, err := a.client.Call(ctx, "daily",
		map[string]interface{}{"trade_date": compactDate(date)},
		"ts_code,trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}
	return transformCandles(table)
}

func (a *Adapter) DailyByCode(ctx context.Context, code, startDate, endDate string) ([]domain.Candle, error) {
	table, err := a.client.Call(ctx, "daily",
		map[string]interface{}{
			"ts_code":    suffixCode(code),
			"start_date": compactDate(startDate),
			"end_date":   compactDate(endDate),
		},
		"ts_code,trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}
	return transformCandles(table)
}

func (a *Adapter) FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error) {
	table, err := a.client.Call(ctx, "moneyflow",
		map[string]interface{}{"trade_date": compactDate(date)}, "")
	if err != nil {
		return nil, err
	}
	return transformFundFlows(table)
}

func (a *Adapter) DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error) {
	table, err := a.client.Call(ctx, "daily_basic",
		map[string]interface{}{"trade_date": compactDate(date)}, "")
	if err != nil {
		return nil, err
	}
	return transformDailyBasics(table)
}

func (a *Adapter) MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error) {
	table, err := a.client.Call(ctx, "moneyflow_mkt_dc",
		map[string]interface{}{
			"start_date": compactDate(startDate),
			"end_date":   compactDate(endDate),
		}, "")
	if err != nil {
		return nil, err
	}
	return transformMarketFlows(table)
}

func (a *Adapter) SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error) {
	table, err := a.client.Call(ctx, "moneyflow_ind_dc",
		map[string]interface{}{
			"start_date": compactDate(startDate),
			"end_date":   compactDate(endDate),
		}, "")
	if err != nil {
		return nil, err
	}
	return transformSectorFlows(table)
}

func (a *Adapter) TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error) {
	table, err := a.client.Call(ctx, "trade_cal",
		map[string]interface{}{
			"exchange":   "SSE",
			"start_date": compactDate(startDate),
			"end_date":   compactDate(endDate),
		},
		"cal_date,is_open")
	if err != nil {
		return nil, err
	}
	return transformCalendar(table)
}

func (a *Adapter) AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error) {
	params := map[string]interface{}{"trade_date": compactDate(date)}
	table, err := a.client.Call(ctx, "stk_auction_o", params, "")
	if err != nil {
		return nil, err
	}
	snapshots, err := transformAuctions(table, date)
	if err != nil {
		return nil, err
	}
	return filterByCodes(snapshots, codes, func(s domain.AuctionSnapshot) string { return s.Code }), nil
}

func (a *Adapter) RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	suffixed := make([]string, len(codes))
	for i, c := range codes {
		suffixed[i] = suffixCode(c)
	}
	table, err := a.client.Call(ctx, "realtime_quote",
		map[string]interface{}{"ts_code": strings.Join(suffixed, ",")}, "")
	if err != nil {
		return nil, err
	}
	return transformQuotes(table, a.now().Format("2006-01-02T15:04:05"))
}

func (a *Adapter) KplConceptsByDate(ctx context.Context, date string) (*sources.KplBundle, error) {
	conceptTable, err := a.client.Call(ctx, "kpl_concept",
		map[string]interface{}{"trade_date": compactDate(date)}, "")
	if err != nil {
		return nil, err
	}
	concepts, err := transformKplConcepts(conceptTable)
	if err != nil {
		return nil, err
	}

	consTable, err := a.client.Call(ctx, "kpl_concept_cons",
		map[string]interface{}{"trade_date": compactDate(date)}, "")
	if err != nil {
		return nil, err
	}
	cons, err := transformKplCons(consTable)
	if err != nil {
		return nil, err
	}

	return &sources.KplBundle{Concepts: concepts, Cons: cons}, nil
}

// suffixCode turns a bare code into the vendor's suffixed form.
func suffixCode(code string) string {
	if strings.Contains(code, ".") {
		return code
	}
	switch domain.ExchangeFromCode(code) {
	case domain.ExchangeSH:
		return code + ".SH"
	case domain.ExchangeSZ:
		return code + ".SZ"
	default:
		return code + ".BJ"
	}
}

// filterByCodes keeps only rows whose code is in the requested set.
// An empty set keeps everything.
func filterByCodes[T any](rows []T, codes []string, key func(T) string) []T {
	if len(codes) == 0 {
		return rows
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := rows[:0]
	for _, r := range rows {
		if want[key(r)] {
			out = append(out, r)
		}
	}
	return out
}
