// Package xapi is a read-only client for the X API v2 post endpoints.
package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/matheuskafuri/xscout/internal/cache"
)

const (
	MinPageSize = 10
	MaxPageSize = 100

	defaultRetryAfter = 60 * time.Second
	maxResponseBytes  = 8 << 20

	tweetFields = "created_at,public_metrics,author_id,conversation_id,entities"
	userFields  = "username,name"
)

// Limiter paces page requests. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

type Options struct {
	BaseURL    string
	Token      func() (string, error)
	HTTPClient *http.Client
	PageSize   int
	PageDelay  time.Duration
	Logger     zerolog.Logger
	// NewLimiter overrides the per-fetch page limiter.
	NewLimiter func() Limiter
}

type Client struct {
	baseURL    string
	token      func() (string, error)
	http       *http.Client
	pageSize   int
	newLimiter func() Limiter
	logger     zerolog.Logger
	now        func() time.Time
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		http:     opts.HTTPClient,
		pageSize: ClampPageSize(opts.PageSize),
		logger:   opts.Logger.With().Str("component", "xapi").Logger(),
		now:      time.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	c.newLimiter = opts.NewLimiter
	if c.newLimiter == nil {
		delay := opts.PageDelay
		c.newLimiter = func() Limiter { return pageLimiter(delay) }
	}
	return c
}

// PageSize is the clamped number of items requested per page.
func (c *Client) PageSize() int { return c.pageSize }

// ClampPageSize bounds n to the range the endpoints accept; zero means the maximum.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return MaxPageSize
	case n < MinPageSize:
		return MinPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

type noWait struct{}

func (noWait) Wait(context.Context) error { return nil }

// pageLimiter allows one request per delay. The initial token is spent up
// front, so the first Wait blocks until delay has passed since creation.
func pageLimiter(delay time.Duration) Limiter {
	if delay <= 0 {
		return noWait{}
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)
	lim.Allow()
	return lim
}

// Result is the outcome of a fetch. Units counts billable items read and is
// set even when an error ends the fetch early.
type Result struct {
	Records  []cache.Record
	Requests int
	Units    int64
}

type SearchParams struct {
	Query     string
	Pages     int
	SortOrder string // "recency" or "relevancy"
	StartTime time.Time
}

// Search runs a recent-search query across up to p.Pages pages.
func (c *Client) Search(ctx context.Context, p SearchParams) (Result, error) {
	if p.Query == "" {
		return Result{}, errors.New("search: empty query")
	}
	q := url.Values{}
	q.Set("query", p.Query)
	q.Set("max_results", strconv.Itoa(c.pageSize))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)
	if p.SortOrder != "" {
		q.Set("sort_order", p.SortOrder)
	}
	if !p.StartTime.IsZero() {
		q.Set("start_time", p.StartTime.UTC().Format(time.RFC3339))
	}
	return c.paginate(ctx, "/2/tweets/search/recent", q, "next_token", p.Pages)
}

// Tweet looks up a single post. Deleted or unknown posts yield ErrNotFound.
func (c *Client) Tweet(ctx context.Context, id string) (cache.Record, error) {
	q := url.Values{}
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)

	pg, err := c.get(ctx, "/2/tweets/"+url.PathEscape(id), q)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return cache.Record{}, ErrNotFound
		}
		return cache.Record{}, err
	}
	if len(pg.Records) == 0 {
		if len(pg.Errors) == 0 || isNotFound(pg.Errors) {
			return cache.Record{}, ErrNotFound
		}
		return cache.Record{}, &APIError{Status: http.StatusOK, Body: truncate(describe(pg.Errors), maxErrorBody)}
	}
	return pg.Records[0], nil
}

// UserTimeline fetches recent posts of username. The user lookup counts as
// one billable unit.
func (c *Client) UserTimeline(ctx context.Context, username string, pages int) (Result, error) {
	username = strings.TrimPrefix(username, "@")
	body, err := c.do(ctx, "/2/users/by/username/"+url.PathEscape(username), url.Values{"user.fields": {userFields}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return Result{Requests: 1}, ErrNotFound
		}
		return Result{Requests: 1}, err
	}
	var resp struct {
		Data   *rawUser   `json:"data"`
		Errors []rawError `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{Requests: 1}, fmt.Errorf("decoding user: %w", err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return Result{Requests: 1}, ErrNotFound
	}

	q := url.Values{}
	q.Set("max_results", strconv.Itoa(c.pageSize))
	q.Set("tweet.fields", tweetFields)
	q.Set("expansions", "author_id")
	q.Set("user.fields", userFields)
	res, err := c.paginate(ctx, "/2/users/"+url.PathEscape(resp.Data.ID)+"/tweets", q, "pagination_token", pages)
	res.Requests++
	res.Units++
	return res, err
}

// paginate follows continuation tokens for up to pages requests, waiting on
// the limiter strictly between pages. Records keep fetch order.
func (c *Client) paginate(ctx context.Context, path string, q url.Values, tokenParam string, pages int) (Result, error) {
	if pages < 1 {
		pages = 1
	}
	var res Result
	lim := c.newLimiter()
	next := ""
	for i := 0; i < pages; i++ {
		if i > 0 {
			if err := lim.Wait(ctx); err != nil {
				return res, err
			}
			q.Set(tokenParam, next)
		}
		pg, err := c.get(ctx, path, q)
		res.Requests++
		if err != nil {
			return res, err
		}
		res.Records = append(res.Records, pg.Records...)
		res.Units += int64(len(pg.Records))
		c.logger.Debug().
			Str("path", path).
			Int("page", i+1).
			Int("records", len(pg.Records)).
			Bool("more", pg.NextToken != "").
			Msg("page fetched")

		next = pg.NextToken
		if next == "" {
			break
		}
	}
	return res, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (page, error) {
	body, err := c.do(ctx, path, q)
	if err != nil {
		return page{}, err
	}
	return decodePage(body)
}

func (c *Client) do(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if c.token == nil {
		return nil, errors.New("no token source configured")
	}
	token, err := c.token()
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := c.retryAfter(resp.Header)
		c.logger.Warn().Str("path", path).Dur("retry_after", wait).Msg("rate limited")
		return nil, &RateLimitError{RetryAfter: wait}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{Status: resp.StatusCode, Body: errorBody(body, resp.Header.Get("Content-Type"))}
	}
	return body, nil
}

// retryAfter derives the wait from x-rate-limit-reset (unix seconds).
func (c *Client) retryAfter(h http.Header) time.Duration {
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil || reset <= 0 {
		return defaultRetryAfter
	}
	wait := time.Unix(reset, 0).Sub(c.now()).Round(time.Second)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
