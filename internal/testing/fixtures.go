package testing

import (
	"fmt"
	"time"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

// Stocks returns a small universe covering the three exchange buckets.
func Stocks() []domain.Stock {
	return []domain.Stock{
		{Code: "600519", Name: "贵州茅台", Exchange: domain.ExchangeSH, Industry: "食品饮料", RawCode: "600519.SH"},
		{Code: "000001", Name: "平安银行", Exchange: domain.ExchangeSZ, Industry: "银行", RawCode: "000001.SZ"},
		{Code: "300750", Name: "宁德时代", Exchange: domain.ExchangeSZ, Industry: "电力设备", RawCode: "300750.SZ"},
	}
}

// Candles generates n valid ascending bars for one code, ending at endDate,
// with a mild uptrend and constant volume.
func Candles(code, endDate string, n int) []domain.Candle {
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		panic(fmt.Sprintf("bad fixture date %q: %v", endDate, err))
	}

	out := make([]domain.Candle, n)
	price := 10.0
	for i := 0; i < n; i++ {
		day := end.AddDate(0, 0, i-n+1)
		open := price
		price *= 1.005
		out[i] = domain.Candle{
			Code:   code,
			Date:   day.Format("2006-01-02"),
			Open:   open,
			High:   price * 1.01,
			Low:    open * 0.99,
			Close:  price,
			Volume: 1_000_000,
			Amount: price * 1_000_000,
		}
	}
	return out
}

// FundFlows generates one flow row per code for a date.
func FundFlows(date string, codes ...string) []domain.FundFlow {
	out := make([]domain.FundFlow, len(codes))
	for i, code := range codes {
		out[i] = domain.FundFlow{
			Code:              code,
			Date:              date,
			MainFundFlow:      5_000_000,
			RetailFundFlow:    -2_000_000,
			InstitutionalFlow: 3_000_000,
			LargeOrderRatio:   0.55,
		}
	}
	return out
}

// Float returns a pointer to v, for building nullable fixture fields.
func Float(v float64) *float64 { return &v }
