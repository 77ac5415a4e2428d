package eastmoney

import (
	"context"
	"fmt"
	"time"

	"github.com/goldeneye0077/stock-picker/internal/domain"
	"github.com/goldeneye0077/stock-picker/internal/sources"
)

// SourceName is how this adapter identifies itself to the router.
const SourceName = "eastmoney"

// A-share universe filter: SH main/STAR plus SZ main/growth boards.
const fsAllAShares = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

// push2 field codes used by the capabilities below.
const (
	spotFields = "f2,f5,f6,f8,f9,f10,f12,f14,f15,f16,f17,f18,f20,f21,f23,f100"
	flowFields = "f12,f14,f62,f66,f72,f78,f84,f184"
)

// Adapter is the tokenless secondary source.
type Adapter struct {
	client *Client
	now    func() time.Time
}

// NewAdapter wraps a client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

func (a *Adapter) Name() string { return SourceName }

// Available is always true: the endpoints are public.
func (a *Adapter) Available() bool { return true }

func (a *Adapter) ListStocks(ctx context.Context) ([]domain.Stock, error) {
	rows, err := a.client.FetchList(ctx, fsAllAShares, "f12,f14,f100", "f12")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Stock, 0, len(rows))
	for _, r := range rows {
		code := r.Str("f12")
		if code == "" {
			continue
		}
		out = append(out, domain.Stock{
			Code:     code,
			Name:     r.Str("f14"),
			Exchange: domain.ExchangeFromCode(code),
			Industry: r.Str("f100"),
			RawCode:  code,
		})
	}
	return out, nil
}

// DailyByDate serves the live spot snapshot as the day's candle. The feed
// carries no history, so any other date returns an empty set and the router
// falls back to the primary. Volumes arrive already in shares.
func (a *Adapter) DailyByDate(ctx context.Context, date string) ([]domain.Candle, error) {
	if date != a.now().Format("2006-01-02") {
		return nil, nil
	}

	rows, err := a.client.FetchList(ctx, fsAllAShares, spotFields, "f12")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		code := r.Str("f12")
		cls, okC := r.F64("f2")
		if code == "" || !okC {
			continue
		}
		open, _ := r.F64("f17")
		high, _ := r.F64("f15")
		low, _ := r.F64("f16")
		vol, _ := r.F64("f5")
		amount, _ := r.F64("f6")
		out = append(out, domain.Candle{
			Code:   code,
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: vol,
			Amount: amount,
		})
	}
	return out, nil
}

func (a *Adapter) DailyByCode(ctx context.Context, code, startDate, endDate string) ([]domain.Candle, error) {
	return nil, fmt.Errorf("eastmoney: daily by code not served: %w", domain.ErrUnavailable)
}

// FundFlowByDate serves today's money-flow ranking. f62/f66/f72/f78/f84 are
// main / extra-large / large / mid / small net amounts in yuan; f184 is the
// main-inflow ratio in percent.
func (a *Adapter) FundFlowByDate(ctx context.Context, date string) ([]domain.FundFlow, error) {
	if date != a.now().Format("2006-01-02") {
		return nil, nil
	}

	rows, err := a.client.FetchList(ctx, fsAllAShares, flowFields, "f62")
	if err != nil {
		return nil, err
	}

	out := make([]domain.FundFlow, 0, len(rows))
	for _, r := range rows {
		code := r.Str("f12")
		main, okMain := r.F64("f62")
		if code == "" || !okMain {
			continue
		}
		elg, _ := r.F64("f66")
		mid, _ := r.F64("f78")
		small, _ := r.F64("f84")
		ratioPct, _ := r.F64("f184")

		ratio := ratioPct / 100
		if ratio < 0 {
			ratio = 0
		} else if ratio > 1 {
			ratio = 1
		}

		out = append(out, domain.FundFlow{
			Code:              code,
			Date:              date,
			MainFundFlow:      main,
			RetailFundFlow:    mid + small,
			InstitutionalFlow: elg,
			LargeOrderRatio:   ratio,
		})
	}
	return out, nil
}

// DailyBasicByDate serves the valuation slice of the spot snapshot. Market
// caps arrive in yuan; share counts are not in the feed and stay nil.
func (a *Adapter) DailyBasicByDate(ctx context.Context, date string) ([]domain.DailyBasic, error) {
	if date != a.now().Format("2006-01-02") {
		return nil, nil
	}

	rows, err := a.client.FetchList(ctx, fsAllAShares, spotFields, "f12")
	if err != nil {
		return nil, err
	}

	opt := func(r Row, field string) *float64 {
		if v, ok := r.F64(field); ok {
			return &v
		}
		return nil
	}

	out := make([]domain.DailyBasic, 0, len(rows))
	for _, r := range rows {
		code := r.Str("f12")
		if code == "" {
			continue
		}
		out = append(out, domain.DailyBasic{
			Code:         code,
			Date:         date,
			Close:        opt(r, "f2"),
			TurnoverRate: opt(r, "f8"),
			VolumeRatio:  opt(r, "f10"),
			PETTM:        opt(r, "f9"),
			PB:           opt(r, "f23"),
			TotalMV:      opt(r, "f20"),
			CircMV:       opt(r, "f21"),
		})
	}
	return out, nil
}

func (a *Adapter) MarketMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.MarketMoneyFlow, error) {
	return nil, fmt.Errorf("eastmoney: market moneyflow not served: %w", domain.ErrUnavailable)
}

func (a *Adapter) SectorMoneyFlow(ctx context.Context, startDate, endDate string) ([]domain.SectorMoneyFlow, error) {
	return nil, fmt.Errorf("eastmoney: sector moneyflow not served: %w", domain.ErrUnavailable)
}

func (a *Adapter) TradeCalendar(ctx context.Context, startDate, endDate string) ([]string, error) {
	return nil, fmt.Errorf("eastmoney: trade calendar not served: %w", domain.ErrUnavailable)
}

func (a *Adapter) AuctionByDate(ctx context.Context, date string, codes []string) ([]domain.AuctionSnapshot, error) {
	return nil, fmt.Errorf("eastmoney: auction snapshots not served: %w", domain.ErrUnavailable)
}

func (a *Adapter) RealtimeQuotes(ctx context.Context, codes []string) ([]domain.Quote, error) {
	rows, err := a.client.FetchList(ctx, fsAllAShares, spotFields, "f12")
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}

	ts := a.now().Format("2006-01-02T15:04:05")
	out := make([]domain.Quote, 0, len(codes))
	for _, r := range rows {
		code := r.Str("f12")
		if code == "" || (len(want) > 0 && !want[code]) {
			continue
		}
		price, okP := r.F64("f2")
		if !okP {
			continue
		}
		preClose, _ := r.F64("f18")
		open, _ := r.F64("f17")
		high, _ := r.F64("f15")
		low, _ := r.F64("f16")
		vol, _ := r.F64("f5")
		amount, _ := r.F64("f6")
		out = append(out, domain.Quote{
			Code:     code,
			TS:       ts,
			Price:    price,
			PreClose: preClose,
			Open:     open,
			High:     high,
			Low:      low,
			Volume:   vol,
			Amount:   amount,
		})
	}
	return out, nil
}

func (a *Adapter) KplConceptsByDate(ctx context.Context, date string) (*sources.KplBundle, error) {
	return nil, fmt.Errorf("eastmoney: kpl concepts not served: %w", domain.ErrUnavailable)
}
