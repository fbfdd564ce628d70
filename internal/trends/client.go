// Package trends is a client for the trends dashboard backend, which serves
// Google Trends interest data and YouTube statistics per keyword.
package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BerylCAtieno/cpg-trends-agent/internal/metrics"
	"github.com/BerylCAtieno/cpg-trends-agent/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://trends-dashboard-backend-766707302238.europe-west1.run.app"
	DefaultGeo     = "US"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 10 << 20
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Timeframe is a Google Trends time window, passed to the backend verbatim.
type Timeframe string

const (
	Timeframe6Months  Timeframe = "today 6-m"
	Timeframe12Months Timeframe = "today 12-m"
	Timeframe3Years   Timeframe = "today 3-y"
	Timeframe5Years   Timeframe = "today 5-y"

	DefaultTimeframe = Timeframe12Months
)

func Timeframes() []Timeframe {
	return []Timeframe{Timeframe6Months, Timeframe12Months, Timeframe3Years, Timeframe5Years}
}

func (t Timeframe) Valid() bool {
	for _, v := range Timeframes() {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTimeframe accepts one of the supported windows. An empty string selects
// DefaultTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultTimeframe, nil
	}
	t := Timeframe(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidTimeframe, s)
	}
	return t, nil
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed: %d", e.StatusCode)
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	CacheSize  int
	RatePerSec float64
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []byte]
	group   singleflight.Group
	logger  *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var cache *expirable.LRU[string, []byte]
	if opts.CacheSize > 0 && opts.CacheTTL > 0 {
		cache = expirable.NewLRU[string, []byte](opts.CacheSize, nil, opts.CacheTTL)
	}

	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache,
		logger:  logger,
	}
}

// Categories lists the CPG categories the backend knows.
func (c *Client) Categories(ctx context.Context) (models.Categories, error) {
	var out models.Categories
	if err := c.get(ctx, "categories", "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trends returns interest over time and by region for keyword in category.
func (c *Client) Trends(ctx context.Context, category, keyword string, timeframe Timeframe) (*models.TrendsResponse, error) {
	if !timeframe.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidTimeframe, timeframe)
	}
	query := url.Values{}
	query.Set("timeframe", string(timeframe))
	query.Set("geo", DefaultGeo)

	path := "/trends/" + url.PathEscape(category) + "/" + url.PathEscape(keyword)
	var out models.TrendsResponse
	if err := c.get(ctx, "trends", path, query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TopVideos(ctx context.Context, keyword string) (*models.TopVideos, error) {
	var out models.TopVideos
	if err := c.get(ctx, "youtube_top_videos", "/youtube/top-videos/"+url.PathEscape(keyword), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sentiment(ctx context.Context, keyword string) (*models.Sentiment, error) {
	var out models.Sentiment
	if err := c.get(ctx, "youtube_sentiment", "/youtube/sentiment/"+url.PathEscape(keyword), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TrendingTags(ctx context.Context, keyword string) (*models.TrendingTags, error) {
	var out models.TrendingTags
	if err := c.get(ctx, "youtube_trending_tags", "/youtube/trending-tags/"+url.PathEscape(keyword), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get fetches path and decodes the body into out. Successful bodies are cached
// by URL and concurrent identical lookups share one request.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	if c.cache != nil {
		if body, ok := c.cache.Get(target); ok {
			metrics.RecordTrendsLookup(endpoint, "hit")
			return decode(body, out)
		}
	}

	// The shared fetch must outlive any single caller: callers joining the
	// same key would otherwise inherit the first caller's cancellation.
	ch := c.group.DoChan(target, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), target)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		metrics.RecordTrendsLookup(endpoint, "error")
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		metrics.RecordTrendsLookup(endpoint, "error")
		c.logger.Warn("trends request failed", "endpoint", endpoint, "url", target, "error", res.Err)
		return res.Err
	}
	metrics.RecordTrendsLookup(endpoint, "miss")
	if res.Shared {
		c.logger.Debug("trends request shared", "endpoint", endpoint)
	}
	return decode(res.Val.([]byte), out)
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trends backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("trends request", "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail(body)}
	}
	if c.cache != nil {
		c.cache.Add(target, body)
	}
	return body, nil
}

// detail extracts the backend's "detail" field. Validation errors carry a
// list there instead of a string; those are returned as raw JSON.
func detail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}
	return string(payload.Detail)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode trends response: %w", err)
	}
	return nil
}
