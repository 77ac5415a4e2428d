// Package eastmoney implements the secondary, tokenless data source on top
// of the public push2 quote endpoints. It serves the stock list, same-day
// candles, fund flow, daily basics and realtime quotes; the remaining
// capabilities report unavailable and the router falls elsewhere.
package eastmoney

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

const (
	defaultBaseURL = "https://push2.eastmoney.com"
	pageSize       = 200
	// Public endpoints throttle aggressively on bursts.
	defaultCallInterval = 200 * time.Millisecond
)

// Client is the low-level push2 HTTP client.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a push2 client.
func NewClient(log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(20 * time.Second).
		SetHeader("Referer", "https://quote.eastmoney.com/")

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(defaultCallInterval), 1),
		log:     log.With().Str("component", "eastmoney-client").Logger(),
	}
}

// Row is one untyped push2 record: field code ("f12", "f2", ...) to value.
// Missing values come back as the string "-".
type Row map[string]interface{}

// Str returns a string field; "" when absent.
func (r Row) Str(field string) string {
	switch v := r[field].(type) {
	case string:
		if v == "-" {
			return ""
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// F64 returns a numeric field; (0, false) when absent or "-".
func (r Row) F64(field string) (float64, bool) {
	if v, ok := r[field].(float64); ok {
		return v, true
	}
	return 0, false
}

type clistData struct {
	Total int   `json:"total"`
	Diff  []Row `json:"diff"`
}

type clistResponse struct {
	Data *clistData `json:"data"`
}

// FetchList pages through /api/qt/clist/get with the given filter (fs) and
// field list, returning every row. fltt=2 makes push2 emit real floats.
func (c *Client) FetchList(ctx context.Context, fs, fields, sortField string) ([]Row, error) {
	var all []Row
	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("eastmoney pacing interrupted: %w", domain.ErrTimeout)
		}

		var result clistResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"pn":     strconv.Itoa(page),
				"pz":     strconv.Itoa(pageSize),
				"po":     "1",
				"np":     "1",
				"fltt":   "2",
				"invt":   "2",
				"fid":    sortField,
				"fs":     fs,
				"fields": fields,
			}).
			SetResult(&result).
			Get("/api/qt/clist/get")
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("eastmoney clist: %w", domain.ErrTimeout)
			}
			return nil, fmt.Errorf("eastmoney clist request failed: %v: %w", err, domain.ErrIO)
		}
		if resp.StatusCode() == 429 {
			return nil, fmt.Errorf("eastmoney clist: http 429: %w", domain.ErrRateLimited)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("eastmoney clist: http %d: %w", resp.StatusCode(), domain.ErrIO)
		}

		if result.Data == nil || len(result.Data.Diff) == 0 {
			break
		}
		all = append(all, result.Data.Diff...)
		if len(all) >= result.Data.Total {
			break
		}
	}

	c.log.Debug().Int("rows", len(all)).Str("fs", fs).Msg("Eastmoney list fetched")
	return all, nil
}
