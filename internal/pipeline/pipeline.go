// Package pipeline runs a query through budget admission, the result cache,
// the remote client and post-processing, in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/matheuskafuri/xscout/internal/aggregate"
	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/config"
	"github.com/matheuskafuri/xscout/internal/ledger"
	"github.com/matheuskafuri/xscout/internal/xapi"
)

// MaxSince is how far back recent search reaches.
const MaxSince = 7 * 24 * time.Hour

// Fetcher is the remote side of the pipeline; *xapi.Client implements it.
type Fetcher interface {
	Search(ctx context.Context, p xapi.SearchParams) (xapi.Result, error)
	Tweet(ctx context.Context, id string) (cache.Record, error)
	UserTimeline(ctx context.Context, username string, pages int) (xapi.Result, error)
	PageSize() int
}

// TTLs are the freshness windows requested at read time, per query kind.
type TTLs struct {
	Search  time.Duration
	Thread  time.Duration
	Tweet   time.Duration
	Profile time.Duration
}

func TTLsFromConfig(cfg *config.Config) TTLs {
	return TTLs{
		Search:  cfg.SearchTTL(),
		Thread:  cfg.ThreadTTL(),
		Tweet:   cfg.TweetTTL(),
		Profile: cfg.ProfileTTL(),
	}
}

type Pipeline struct {
	fetcher Fetcher
	store   cache.Store
	ledger  *ledger.Ledger
	ttl     TTLs
	logger  zerolog.Logger
	now     func() time.Time

	// Refresh skips cache reads; fetched results are still stored.
	Refresh bool
}

func New(f Fetcher, store cache.Store, l *ledger.Ledger, ttl TTLs, logger zerolog.Logger) *Pipeline {
	if store == nil {
		store = cache.Nop{}
	}
	return &Pipeline{
		fetcher: f,
		store:   store,
		ledger:  l,
		ttl:     ttl,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// Result is the outcome of a fetching operation. Units and Cost are zero for
// cache hits.
type Result struct {
	Records []cache.Record
	Cached  bool
	Units   int64
	Cost    ledger.Micros
	Alert   ledger.Alert
}

type SearchOptions struct {
	Pages      int
	Sort       aggregate.SortMode
	Since      string // e.g. "1h", "3d"; empty leaves the endpoint default
	Thresholds aggregate.Thresholds
	Limit      int
}

func (p *Pipeline) Search(ctx context.Context, query string, opts SearchOptions) (Result, error) {
	if query == "" {
		return Result{}, errors.New("search: empty query")
	}
	if opts.Pages < 1 {
		opts.Pages = 1
	}
	if opts.Sort == "" {
		opts.Sort = aggregate.SortRecency
	}
	var start time.Time
	if opts.Since != "" {
		d, err := config.ParseDuration(opts.Since)
		if err != nil || d <= 0 {
			return Result{}, fmt.Errorf("invalid since %q", opts.Since)
		}
		if d > MaxSince {
			return Result{}, fmt.Errorf("since %q is beyond the %s recent-search window", opts.Since, MaxSince)
		}
		start = p.now().Add(-d)
	}

	sig := cache.Signature{
		Kind:  cache.KindSearch,
		Query: query,
		Sort:  string(opts.Sort),
		Since: opts.Since,
		Pages: opts.Pages,
	}
	estimate := int64(opts.Pages * p.fetcher.PageSize())

	res, err := p.cachedFetch(ctx, sig, p.ttl.Search, estimate, func() (xapi.Result, error) {
		return p.fetcher.Search(ctx, xapi.SearchParams{
			Query:     query,
			Pages:     opts.Pages,
			SortOrder: string(aggregate.SortRecency),
			StartTime: start,
		})
	})
	if err != nil {
		return res, err
	}

	res.Records = postProcess(res.Records, opts.Thresholds, opts.Sort, opts.Limit)
	return res, nil
}

// Profile returns recent posts from a user's timeline.
func (p *Pipeline) Profile(ctx context.Context, username string, pages int, opts SearchOptions) (Result, error) {
	if username == "" {
		return Result{}, errors.New("profile: empty username")
	}
	if pages < 1 {
		pages = 1
	}
	sig := cache.Signature{Kind: cache.KindProfile, Query: username, Pages: pages}
	estimate := int64(pages*p.fetcher.PageSize()) + 1

	res, err := p.cachedFetch(ctx, sig, p.ttl.Profile, estimate, func() (xapi.Result, error) {
		return p.fetcher.UserTimeline(ctx, username, pages)
	})
	if errors.Is(err, xapi.ErrNotFound) {
		return res, fmt.Errorf("user %q: %w", username, err)
	}
	if err != nil {
		return res, err
	}
	res.Records = postProcess(res.Records, opts.Thresholds, opts.Sort, opts.Limit)
	return res, nil
}

// cachedFetch is the shared admission, lookup, fetch, store, record sequence.
func (p *Pipeline) cachedFetch(ctx context.Context, sig cache.Signature, ttl time.Duration, estimate int64, fetch func() (xapi.Result, error)) (Result, error) {
	if err := p.ledger.Admit(estimate).Err(); err != nil {
		p.logger.Debug().Str("signature", sig.String()).Err(err).Msg("admission denied")
		return Result{}, err
	}

	if records, ok := p.lookup(ctx, sig, ttl); ok {
		return Result{Records: records, Cached: true}, nil
	}

	fetched, err := fetch()
	if err != nil {
		// Pages that did arrive were billed.
		res, chargeErr := p.charge(fetched.Units)
		if chargeErr != nil {
			return res, errors.Join(err, chargeErr)
		}
		return res, err
	}

	merged := aggregate.Dedupe(fetched.Records)
	p.save(ctx, sig, merged, ttl)

	res, err := p.charge(fetched.Units)
	res.Records = merged
	return res, err
}

func (p *Pipeline) lookup(ctx context.Context, sig cache.Signature, ttl time.Duration) ([]cache.Record, bool) {
	if p.Refresh {
		return nil, false
	}
	records, ok, err := p.store.Get(ctx, sig, ttl)
	if err != nil {
		p.logger.Warn().Err(err).Msg("cache read failed, treating as miss")
		return nil, false
	}
	if ok {
		p.logger.Debug().Str("signature", sig.String()).Int("records", len(records)).Msg("cache hit")
	}
	return records, ok
}

func (p *Pipeline) save(ctx context.Context, sig cache.Signature, records []cache.Record, ttl time.Duration) {
	if err := p.store.Set(ctx, sig, records, ttl); err != nil {
		p.logger.Warn().Err(err).Str("signature", sig.String()).Msg("cache write failed")
	}
}

func (p *Pipeline) charge(units int64) (Result, error) {
	res := Result{Units: units, Cost: p.ledger.UnitPrice() * ledger.Micros(units)}
	if units == 0 {
		return res, nil
	}
	alert, err := p.ledger.Record(units)
	if err != nil {
		return res, fmt.Errorf("recording usage: %w", err)
	}
	res.Alert = alert
	if alert.Level != ledger.AlertNone {
		p.logger.Info().Str("level", alert.Level.String()).Msg(alert.Message)
	}
	return res, nil
}

func postProcess(records []cache.Record, th aggregate.Thresholds, mode aggregate.SortMode, limit int) []cache.Record {
	records = aggregate.Filter(records, th)
	records = aggregate.Sort(records, mode)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
