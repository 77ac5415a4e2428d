package tushare

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// Tushare serializes trade dates as YYYYMMDD and prices in yuan, but volumes
// in 手 (lots of 100 shares) and amounts in 千元 or 万元 depending on the
// API. Everything is converted here; nothing downstream sees vendor units.

const (
	lotShares    = 100
	thousandYuan = 1000
	tenKYuan     = 10000
)

// splitTSCode splits a suffixed vendor code ("600519.SH") into the bare code
// and its exchange. Codes without a suffix derive the exchange from the code.
func splitTSCode(tsCode string) (string, domain.Exchange) {
	if i := strings.IndexByte(tsCode, '.'); i > 0 {
		code := tsCode[:i]
		switch tsCode[i+1:] {
		case "SH":
			return code, domain.ExchangeSH
		case "SZ":
			return code, domain.ExchangeSZ
		default:
			return code, domain.ExchangeBJ
		}
	}
	return tsCode, domain.ExchangeFromCode(tsCode)
}

// isoDate converts YYYYMMDD to YYYY-MM-DD. Already-dashed dates pass through.
func isoDate(d string) string {
	if len(d) == 8 {
		return d[:4] + "-" + d[4:6] + "-" + d[6:]
	}
	return d
}

// compactDate converts YYYY-MM-DD to the vendor's YYYYMMDD.
func compactDate(d string) string {
	return strings.ReplaceAll(d, "-", "")
}

func transformStocks(t *Table) ([]domain.Stock, error) {
	tsCode, name, industry := t.Col("ts_code"), t.Col("name"), t.Col("industry")
	if tsCode < 0 || name < 0 {
		return nil, fmt.Errorf("stock_basic: missing columns: %w", domain.ErrFormat)
	}

	out := make([]domain.Stock, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		raw := t.Str(i, tsCode)
		code, exchange := splitTSCode(raw)
		if code == "" {
			continue
		}
		out = append(out, domain.Stock{
			Code:     code,
			Name:     t.Str(i, name),
			Exchange: exchange,
			Industry: t.Str(i, industry),
			RawCode:  raw,
		})
	}
	return out, nil
}

func transformCandles(t *Table) ([]domain.Candle, error) {
	tsCode, date := t.Col("ts_code"), t.Col("trade_date")
	open, high, low, cls := t.Col("open"), t.Col("high"), t.Col("low"), t.Col("close")
	vol, amount := t.Col("vol"), t.Col("amount")
	if tsCode < 0 || date < 0 || cls < 0 {
		return nil, fmt.Errorf("daily: missing columns: %w", domain.ErrFormat)
	}

	out := make([]domain.Candle, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code, _ := splitTSCode(t.Str(i, tsCode))
		o, _ := t.F64(i, open)
		h, _ := t.F64(i, high)
		l, _ := t.F64(i, low)
		c, okC := t.F64(i, cls)
		v, _ := t.F64(i, vol)
		a, _ := t.F64(i, amount)
		if code == "" || !okC {
			continue
		}
		out = append(out, domain.Candle{
			Code:   code,
			Date:   isoDate(t.Str(i, date)),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v * lotShares,
			Amount: a * thousandYuan,
		})
	}
	return out, nil
}

func transformDailyBasics(t *Table) ([]domain.DailyBasic, error) {
	tsCode, date := t.Col("ts_code"), t.Col("trade_date")
	if tsCode < 0 || date < 0 {
		return nil, fmt.Errorf("daily_basic: missing columns: %w", domain.ErrFormat)
	}

	cols := map[string]int{}
	for _, name := range []string{
		"close", "turnover_rate", "volume_ratio", "pe", "pe_ttm", "pb",
		"ps", "ps_ttm", "dv_ratio", "dv_ttm", "total_share", "float_share",
		"free_share", "total_mv", "circ_mv",
	} {
		cols[name] = t.Col(name)
	}

	opt := func(row int, name string) *float64 {
		if v, ok := t.F64(row, cols[name]); ok {
			return &v
		}
		return nil
	}

	out := make([]domain.DailyBasic, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code, _ := splitTSCode(t.Str(i, tsCode))
		if code == "" {
			continue
		}
		out = append(out, domain.DailyBasic{
			Code:         code,
			Date:         isoDate(t.Str(i, date)),
			Close:        opt(i, "close"),
			TurnoverRate: opt(i, "turnover_rate"),
			VolumeRatio:  opt(i, "volume_ratio"),
			PE:           opt(i, "pe"),
			PETTM:        opt(i, "pe_ttm"),
			PB:           opt(i, "pb"),
			PS:           opt(i, "ps"),
			PSTTM:        opt(i, "ps_ttm"),
			DVRatio:      opt(i, "dv_ratio"),
			DVTTM:        opt(i, "dv_ttm"),
			TotalShare:   opt(i, "total_share"),
			FloatShare:   opt(i, "float_share"),
			FreeShare:    opt(i, "free_share"),
			TotalMV:      opt(i, "total_mv"),
			CircMV:       opt(i, "circ_mv"),
		})
	}
	return out, nil
}

// transformFundFlows folds the per-bucket buy/sell columns (万元) into the
// canonical main/retail/institutional split in yuan.
func transformFundFlows(t *Table) ([]domain.FundFlow, error) {
	tsCode, date := t.Col("ts_code"), t.Col("trade_date")
	if tsCode < 0 || date < 0 {
		return nil, fmt.Errorf("moneyflow: missing columns: %w", domain.ErrFormat)
	}

	buySm, sellSm := t.Col("buy_sm_amount"), t.Col("sell_sm_amount")
	buyMd, sellMd := t.Col("buy_md_amount"), t.Col("sell_md_amount")
	buyLg, sellLg := t.Col("buy_lg_amount"), t.Col("sell_lg_amount")
	buyElg, sellElg := t.Col("buy_elg_amount"), t.Col("sell_elg_amount")

	out := make([]domain.FundFlow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code, _ := splitTSCode(t.Str(i, tsCode))
		if code == "" {
			continue
		}
		bSm, _ := t.F64(i, buySm)
		sSm, _ := t.F64(i, sellSm)
		bMd, _ := t.F64(i, buyMd)
		sMd, _ := t.F64(i, sellMd)
		bLg, _ := t.F64(i, buyLg)
		sLg, _ := t.F64(i, sellLg)
		bElg, _ := t.F64(i, buyElg)
		sElg, _ := t.F64(i, sellElg)

		totalBuy := bSm + bMd + bLg + bElg
		ratio := 0.0
		if totalBuy > 0 {
			ratio = (bLg + bElg) / totalBuy
			if ratio > 1 {
				ratio = 1
			}
		}

		out = append(out, domain.FundFlow{
			Code:              code,
			Date:              isoDate(t.Str(i, date)),
			MainFundFlow:      ((bLg - sLg) + (bElg - sElg)) * tenKYuan,
			RetailFundFlow:    ((bSm - sSm) + (bMd - sMd)) * tenKYuan,
			InstitutionalFlow: (bElg - sElg) * tenKYuan,
			LargeOrderRatio:   ratio,
		})
	}
	return out, nil
}

func transformMarketFlows(t *Table) ([]domain.MarketMoneyFlow, error) {
	date := t.Col("trade_date")
	if date < 0 {
		return nil, fmt.Errorf("moneyflow_mkt_dc: missing columns: %w", domain.ErrFormat)
	}

	f := func(row int, name string) float64 {
		v, _ := t.F64(row, t.Col(name))
		return v
	}
	bucket := func(row int, prefix string) domain.FlowBucket {
		return domain.FlowBucket{
			Amount: f(row, prefix+"_amount") * tenKYuan,
			Rate:   f(row, prefix+"_amount_rate"),
		}
	}

	out := make([]domain.MarketMoneyFlow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		out = append(out, domain.MarketMoneyFlow{
			Date:        isoDate(t.Str(i, date)),
			ShIndex:     f(i, "close_sh"),
			ShPctChange: f(i, "pct_change_sh"),
			SzIndex:     f(i, "close_sz"),
			SzPctChange: f(i, "pct_change_sz"),
			ExtraLarge:  bucket(i, "buy_elg"),
			Large:       bucket(i, "buy_lg"),
			Mid:         bucket(i, "buy_md"),
			Small:       bucket(i, "buy_sm"),
			Net: domain.FlowBucket{
				Amount: f(i, "net_amount") * tenKYuan,
				Rate:   f(i, "net_amount_rate"),
			},
		})
	}
	return out, nil
}

func transformSectorFlows(t *Table) ([]domain.SectorMoneyFlow, error) {
	date, tsCode := t.Col("trade_date"), t.Col("ts_code")
	if date < 0 || tsCode < 0 {
		return nil, fmt.Errorf("moneyflow_ind_dc: missing columns: %w", domain.ErrFormat)
	}

	f := func(row int, name string) float64 {
		v, _ := t.F64(row, t.Col(name))
		return v
	}
	industry, rank := t.Col("industry"), t.Col("rank")
	bucket := func(row int, prefix string) domain.FlowBucket {
		return domain.FlowBucket{
			Amount: f(row, prefix+"_amount") * tenKYuan,
			Rate:   f(row, prefix+"_amount_rate"),
		}
	}

	out := make([]domain.SectorMoneyFlow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		rk, _ := t.F64(i, rank)
		out = append(out, domain.SectorMoneyFlow{
			Date:       isoDate(t.Str(i, date)),
			SectorCode: t.Str(i, tsCode),
			SectorName: t.Str(i, industry),
			PctChange:  f(i, "pct_change"),
			Close:      f(i, "close"),
			Rank:       int(rk),
			ExtraLarge: bucket(i, "buy_elg"),
			Large:      bucket(i, "buy_lg"),
			Mid:        bucket(i, "buy_md"),
			Small:      bucket(i, "buy_sm"),
			Net: domain.FlowBucket{
				Amount: f(i, "net_amount") * tenKYuan,
				Rate:   f(i, "net_amount_rate"),
			},
		})
	}
	return out, nil
}

// transformCalendar returns open trade dates ascending, regardless of the
// vendor's row order.
func transformCalendar(t *Table) ([]string, error) {
	date, isOpen := t.Col("cal_date"), t.Col("is_open")
	if date < 0 || isOpen < 0 {
		return nil, fmt.Errorf("trade_cal: missing columns: %w", domain.ErrFormat)
	}

	out := make([]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if open, ok := t.F64(i, isOpen); ok && open == 1 {
			out = append(out, isoDate(t.Str(i, date)))
		}
	}
	// ISO dates sort lexicographically
	sort.Strings(out)
	return out, nil
}

func transformAuctions(t *Table, date string) ([]domain.AuctionSnapshot, error) {
	tsCode := t.Col("ts_code")
	if tsCode < 0 {
		return nil, fmt.Errorf("stk_auction_o: missing columns: %w", domain.ErrFormat)
	}

	f := func(row int, name string) float64 {
		v, _ := t.F64(row, t.Col(name))
		return v
	}

	snapshotTS := date + "T09:26:00"
	out := make([]domain.AuctionSnapshot, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code, _ := splitTSCode(t.Str(i, tsCode))
		if code == "" {
			continue
		}
		out = append(out, domain.AuctionSnapshot{
			Code:         code,
			SnapshotTS:   snapshotTS,
			PreClose:     f(i, "pre_close"),
			Price:        f(i, "price"),
			Vol:          f(i, "vol") * lotShares,
			Amount:       f(i, "amount") * thousandYuan,
			TurnoverRate: f(i, "turnover_rate"),
			VolumeRatio:  f(i, "volume_ratio"),
			FloatShare:   f(i, "float_share"),
		})
	}
	return out, nil
}

func transformQuotes(t *Table, ts string) ([]domain.Quote, error) {
	tsCode := t.Col("ts_code")
	if tsCode < 0 {
		return nil, fmt.Errorf("realtime_quote: missing columns: %w", domain.ErrFormat)
	}

	f := func(row int, name string) float64 {
		v, _ := t.F64(row, t.Col(name))
		return v
	}

	out := make([]domain.Quote, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		code, _ := splitTSCode(t.Str(i, tsCode))
		if code == "" {
			continue
		}
		out = append(out, domain.Quote{
			Code:     code,
			TS:       ts,
			Price:    f(i, "price"),
			PreClose: f(i, "pre_close"),
			Open:     f(i, "open"),
			High:     f(i, "high"),
			Low:      f(i, "low"),
			Volume:   f(i, "volume"),
			Amount:   f(i, "amount"),
		})
	}
	return out, nil
}

func transformKplConcepts(t *Table) ([]domain.KplConcept, error) {
	tsCode, date := t.Col("ts_code"), t.Col("trade_date")
	if tsCode < 0 || date < 0 {
		return nil, fmt.Errorf("kpl_concept: missing columns: %w", domain.ErrFormat)
	}

	name, ztNum, upNum := t.Col("name"), t.Col("z_t_num"), t.Col("up_num")
	out := make([]domain.KplConcept, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		zt, _ := t.F64(i, ztNum)
		up, _ := t.F64(i, upNum)
		out = append(out, domain.KplConcept{
			Date:        isoDate(t.Str(i, date)),
			ConceptCode: t.Str(i, tsCode),
			Name:        t.Str(i, name),
			ZTNum:       int(zt),
			UpNum:       int(up),
		})
	}
	return out, nil
}

func transformKplCons(t *Table) ([]domain.KplConceptCons, error) {
	tsCode, date := t.Col("ts_code"), t.Col("trade_date")
	if tsCode < 0 || date < 0 {
		return nil, fmt.Errorf("kpl_concept_cons: missing columns: %w", domain.ErrFormat)
	}

	conCode, hotNum := t.Col("con_code"), t.Col("hot_num")
	out := make([]domain.KplConceptCons, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		stock, _ := splitTSCode(t.Str(i, conCode))
		if stock == "" {
			continue
		}
		hot, _ := t.F64(i, hotNum)
		out = append(out, domain.KplConceptCons{
			Date:        isoDate(t.Str(i, date)),
			ConceptCode: t.Str(i, tsCode),
			StockCode:   stock,
			HotNum:      int(hot),
		})
	}
	return out, nil
}
