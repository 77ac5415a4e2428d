// Package tushare implements the primary data source: the token-gated
// Tushare Pro API. The client speaks the generic api_name/params/fields
// envelope; the adapter exposes the canonical capability set with all unit
// conversion done at this boundary.
package tushare

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/goldeneye0077/stock-picker/internal/domain"
)

const (
	defaultBaseURL = "http://api.tushare.pro"
	// Pro quota is per-minute; one call every 300ms stays comfortably under
	// the common tiers while leaving the engine-level delay in control.
	defaultCallInterval = 300 * time.Millisecond
)

// Client is the low-level Tushare Pro API client.
type Client struct {
	http    *resty.Client
	token   string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a Tushare client. An empty token yields a client whose
// adapter reports unavailable; no request is ever attempted without one.
func NewClient(token string, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:    httpClient,
		token:   token,
		limiter: rate.NewLimiter(rate.Every(defaultCallInterval), 1),
		log:     log.With().Str("component", "tushare-client").Logger(),
	}
}

// HasToken reports whether a token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// apiRequest is the generic Tushare Pro request envelope.
type apiRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Fields  string                 `json:"fields,omitempty"`
}

// apiResponse is the generic Tushare Pro response envelope.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *Table `json:"data"`
}

// Table is an untyped vendor result: named columns over rows of values.
// Transformers canonicalize it into domain rows.
type Table struct {
	Fields []string        `json:"fields"`
	Items  [][]interface{} `json:"items"`
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Items)
}

// Col returns the index of a named column, or -1.
func (t *Table) Col(name string) int {
	for i, f := range t.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Str returns the string value at (row, col); "" when absent.
func (t *Table) Str(row, col int) string {
	if col < 0 || row >= len(t.Items) || col >= len(t.Items[row]) {
		return ""
	}
	switch v := t.Items[row][col].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// F64 returns the numeric value at (row, col); (0, false) when absent or
// non-numeric. Tushare serializes nulls as JSON null.
func (t *Table) F64(row, col int) (float64, bool) {
	if col < 0 || row >= len(t.Items) || col >= len(t.Items[row]) {
		return 0, false
	}
	if v, ok := t.Items[row][col].(float64); ok {
		return v, true
	}
	return 0, false
}

// Call executes one API call, honouring the client-side pacing limiter.
// Vendor failures are mapped onto the typed error kinds.
func (c *Client) Call(ctx context.Context, apiName string, params map[string]interface{}, fields string) (*Table, error) {
	if c.token == "" {
		return nil, fmt.Errorf("tushare token not configured: %w", domain.ErrUnavailable)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tushare pacing interrupted: %w", domain.ErrTimeout)
	}

	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(apiRequest{APIName: apiName, Token: c.token, Params: params, Fields: fields}).
		SetResult(&result).
		Post("")
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tushare %s: %w", apiName, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("tushare %s request failed: %v: %w", apiName, err, domain.ErrIO)
	}
	if resp.StatusCode() == 429 {
		return nil, fmt.Errorf("tushare %s: http 429: %w", apiName, domain.ErrRateLimited)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("tushare %s: http %d: %w", apiName, resp.StatusCode(), domain.ErrIO)
	}

	if result.Code != 0 {
		return nil, mapAPIError(apiName, result.Code, result.Msg)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("tushare %s: empty data envelope: %w", apiName, domain.ErrFormat)
	}

	c.log.Debug().Str("api", apiName).Int("rows", result.Data.Len()).Msg("Tushare call ok")
	return result.Data, nil
}

// mapAPIError classifies a non-zero vendor code.
// Quota messages mention per-minute limits (每分钟/频率/积分); permission
// problems mention 权限 or token.
func mapAPIError(apiName string, code int, msg string) error {
	switch {
	case strings.Contains(msg, "每分钟") || strings.Contains(msg, "频率") || strings.Contains(msg, "积分"):
		return fmt.Errorf("tushare %s: %s: %w", apiName, msg, domain.ErrRateLimited)
	case strings.Contains(msg, "token") || strings.Contains(msg, "权限"):
		return fmt.Errorf("tushare %s: %s: %w", apiName, msg, domain.ErrUnavailable)
	default:
		return fmt.Errorf("tushare %s: code %d: %s: %w", apiName, code, msg, domain.ErrIO)
	}
}
