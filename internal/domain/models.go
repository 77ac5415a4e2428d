// Package domain contains the canonical row types shared across the
// screening core, plus the typed error kinds used at component boundaries.
//
// Vendor responses are untyped tables; the client transformers convert them
// into these structs at the adapter boundary. Downstream code never touches
// vendor field names or vendor units.
package domain

// Exchange identifies the listing venue of a security.
type Exchange string

const (
	// ExchangeSH - Shanghai Stock Exchange (main board codes lead with "60").
	ExchangeSH Exchange = "SH"
	// ExchangeSZ - Shenzhen Stock Exchange (main board "00", growth board "30").
	ExchangeSZ Exchange = "SZ"
	// ExchangeBJ - Beijing Stock Exchange and other venues ("8" prefix boards).
	ExchangeBJ Exchange = "BJ"
)

// ExchangeFromCode derives the exchange from a bare six-digit code.
func ExchangeFromCode(code string) Exchange {
	if len(code) == 0 {
		return ExchangeBJ
	}
	switch {
	case code[0] == '6':
		return ExchangeSH
	case code[0] == '0' || code[0] == '3':
		return ExchangeSZ
	default:
		return ExchangeBJ
	}
}

// LimitPct returns the daily price-limit percentage for a code.
// Main boards move ±10%, the growth and STAR boards ±20%, and the
// Beijing "8"-prefix board ±30%.
func LimitPct(code string) float64 {
	if len(code) < 2 {
		return 0.10
	}
	switch {
	case code[0] == '3' || (code[0] == '6' && code[1] == '8'):
		return 0.20
	case code[0] == '8':
		return 0.30
	default:
		return 0.10
	}
}

// Stock is one row of the stock universe.
type Stock struct {
	Code     string   `json:"code"`     // Bare six-digit code, e.g. "600519"
	Name     string   `json:"name"`     // Display name
	Exchange Exchange `json:"exchange"` // Listing venue
	Industry string   `json:"industry,omitempty"`
	RawCode  string   `json:"raw_code"` // Vendor code with suffix, e.g. "600519.SH"
}

// Candle is one daily OHLCV bar. Volume is in shares, Amount in yuan;
// unit conversion from vendor lots/千元 happens at the adapter boundary.
type Candle struct {
	Code   string  `json:"code"`
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Amount float64 `json:"amount"`
}

// Valid reports whether the bar passes the basic positivity and
// high/low containment checks.
func (c Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume <= 0 {
		return false
	}
	return c.High >= c.Open && c.High >= c.Close && c.High >= c.Low
}

// DailyBasic carries the per-day valuation and liquidity snapshot.
// Fields the vendor omitted stay nil.
type DailyBasic struct {
	Code         string   `json:"code"`
	Date         string   `json:"date"`
	Close        *float64 `json:"close,omitempty"`
	TurnoverRate *float64 `json:"turnover_rate,omitempty"`
	VolumeRatio  *float64 `json:"volume_ratio,omitempty"`
	PE           *float64 `json:"pe,omitempty"`
	PETTM        *float64 `json:"pe_ttm,omitempty"`
	PB           *float64 `json:"pb,omitempty"`
	PS           *float64 `json:"ps,omitempty"`
	PSTTM        *float64 `json:"ps_ttm,omitempty"`
	DVRatio      *float64 `json:"dv_ratio,omitempty"`
	DVTTM        *float64 `json:"dv_ttm,omitempty"`
	TotalShare   *float64 `json:"total_share,omitempty"`
	FloatShare   *float64 `json:"float_share,omitempty"`
	FreeShare    *float64 `json:"free_share,omitempty"`
	TotalMV      *float64 `json:"total_mv,omitempty"`
	CircMV       *float64 `json:"circ_mv,omitempty"`
}

// FundFlow is the per-stock daily money-flow summary in yuan.
type FundFlow struct {
	Code              string  `json:"code"`
	Date              string  `json:"date"`
	MainFundFlow      float64 `json:"main_fund_flow"`
	RetailFundFlow    float64 `json:"retail_fund_flow"`
	InstitutionalFlow float64 `json:"institutional_flow"`
	LargeOrderRatio   float64 `json:"large_order_ratio"` // [0, 1]
}

// FlowBucket is one order-size bucket of a money-flow row.
type FlowBucket struct {
	Amount float64 `json:"amount"` // Net amount in yuan
	Rate   float64 `json:"rate"`   // Net rate in percent
}

// MarketMoneyFlow is the whole-market daily money-flow row.
type MarketMoneyFlow struct {
	Date        string     `json:"date"`
	ShIndex     float64    `json:"sh_index"`
	ShPctChange float64    `json:"sh_pct_change"`
	SzIndex     float64    `json:"sz_index"`
	SzPctChange float64    `json:"sz_pct_change"`
	ExtraLarge  FlowBucket `json:"extra_large"`
	Large       FlowBucket `json:"large"`
	Mid         FlowBucket `json:"mid"`
	Small       FlowBucket `json:"small"`
	Net         FlowBucket `json:"net"`
}

// SectorMoneyFlow is the per-sector daily money-flow row.
type SectorMoneyFlow struct {
	Date       string     `json:"date"`
	SectorCode string     `json:"sector_code"`
	SectorName string     `json:"sector_name"`
	PctChange  float64    `json:"pct_change"`
	Close      float64    `json:"close"`
	Rank       int        `json:"rank"`
	ExtraLarge FlowBucket `json:"extra_large"`
	Large      FlowBucket `json:"large"`
	Mid        FlowBucket `json:"mid"`
	Small      FlowBucket `json:"small"`
	Net        FlowBucket `json:"net"`
}

// AuctionSnapshot is a call-auction tick, normally the 09:26:00 snapshot.
type AuctionSnapshot struct {
	Code         string  `json:"code"`
	SnapshotTS   string  `json:"snapshot_ts"` // ISO-8601 local time
	PreClose     float64 `json:"pre_close"`
	Price        float64 `json:"price"`
	Vol          float64 `json:"vol"`
	Amount       float64 `json:"amount"`
	TurnoverRate float64 `json:"turnover_rate"`
	VolumeRatio  float64 `json:"volume_ratio"`
	FloatShare   float64 `json:"float_share"`
}

// Quote is a realtime quote snapshot appended to quote_history.
type Quote struct {
	Code     string  `json:"code"`
	TS       string  `json:"ts"` // ISO-8601 local time
	Price    float64 `json:"price"`
	PreClose float64 `json:"pre_close"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Volume   float64 `json:"volume"`
	Amount   float64 `json:"amount"`
}

// KplConcept is one limit-up concept board row for a day.
type KplConcept struct {
	Date        string `json:"date"`
	ConceptCode string `json:"concept_code"`
	Name        string `json:"name"`
	ZTNum       int    `json:"z_t_num"` // Limit-up count within the concept
	UpNum       int    `json:"up_num"`
}

// KplConceptCons is one concept membership row.
type KplConceptCons struct {
	Date        string `json:"date"`
	ConceptCode string `json:"concept_code"`
	StockCode   string `json:"stock_code"`
	HotNum      int    `json:"hot_num"`
}

// TechnicalIndicator is the persisted per-stock indicator snapshot written
// for selected stocks so the presentation layer can read it back.
type TechnicalIndicator struct {
	Code       string   `json:"code"`
	Date       string   `json:"date"`
	MA5        *float64 `json:"ma5,omitempty"`
	MA10       *float64 `json:"ma10,omitempty"`
	MA20       *float64 `json:"ma20,omitempty"`
	RSI        *float64 `json:"rsi,omitempty"`
	MACD       *float64 `json:"macd,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
	MACDHist   *float64 `json:"macd_hist,omitempty"`
}

// RunStatus is the lifecycle state of a collection run or job.
// Transitions only advance: pending -> running -> completed | failed.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// CanTransition reports whether s may advance to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// CollectionRun is the persisted record of one ingestion run. It is the
// authoritative cursor for what has been ingested.
type CollectionRun struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"` // "full" or "incremental"
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	StockCount     int       `json:"stock_count"`
	KlineCount     int       `json:"kline_count"`
	FlowCount      int       `json:"flow_count"`
	IndicatorCount int       `json:"indicator_count"`
	Status         RunStatus `json:"status"`
	ElapsedSec     float64   `json:"elapsed_sec"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      string    `json:"created_at"`
}

// RiskLevel buckets a scored stock by expected volatility of outcome.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskMed  RiskLevel = "medium"
	RiskHigh RiskLevel = "high"
)

// HoldingPeriod is the suggested holding horizon for a scored stock.
type HoldingPeriod string

const (
	HoldingShort HoldingPeriod = "short"
	HoldingMid   HoldingPeriod = "medium"
	HoldingLong  HoldingPeriod = "long"
)

// ScoredStock is the output of strategy evaluation for one stock, persisted
// as a row of advanced_selection_history.
type ScoredStock struct {
	RunID    string `json:"run_id,omitempty"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`

	StrategyID     int     `json:"strategy_id"`
	CompositeScore float64 `json:"composite_score"` // [0, 100]

	MomentumScore     float64 `json:"momentum_score"`
	TrendQualityScore float64 `json:"trend_quality_score"`
	SectorScore       float64 `json:"sector_score"`
	FundamentalScore  float64 `json:"fundamental_score"`
	ValuationScore    float64 `json:"valuation_score"`
	QualityScore      float64 `json:"quality_score"`
	GrowthScore       float64 `json:"growth_score"`
	VolumeScore       float64 `json:"volume_score"`
	SentimentScore    float64 `json:"sentiment_score"`
	RiskScore         float64 `json:"risk_score"`

	SelectionReason string        `json:"selection_reason"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	HoldingPeriod   HoldingPeriod `json:"holding_period"`
	TargetPrice     float64       `json:"target_price"`
	StopLossPrice   float64       `json:"stop_loss_price"`
	BuyPoint        float64       `json:"buy_point"`
	SellPoint       float64       `json:"sell_point"`

	CreatedAt string `json:"created_at,omitempty"`
}

// QualityRecord is one persisted data-quality metric with its alert level.
type QualityRecord struct {
	Date        string  `json:"date"`
	MetricType  string  `json:"metric_type"`
	MetricName  string  `json:"metric_name"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	IsHealthy   bool    `json:"is_healthy"`
	AlertLevel  string  `json:"alert_level,omitempty"` // warning | error | critical
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}
