package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheuskafuri/xscout/internal/aggregate"
	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/ledger"
	"github.com/matheuskafuri/xscout/internal/xapi"
)

type fakeFetcher struct {
	pageSize int

	search    func(xapi.SearchParams) (xapi.Result, error)
	tweet     func(id string) (cache.Record, error)
	timeline  func(username string, pages int) (xapi.Result, error)
	searches  []xapi.SearchParams
	tweetIDs  []string
	timelines []string
}

func (f *fakeFetcher) Search(_ context.Context, p xapi.SearchParams) (xapi.Result, error) {
	f.searches = append(f.searches, p)
	if f.search == nil {
		return xapi.Result{}, nil
	}
	return f.search(p)
}

func (f *fakeFetcher) Tweet(_ context.Context, id string) (cache.Record, error) {
	f.tweetIDs = append(f.tweetIDs, id)
	if f.tweet == nil {
		return cache.Record{}, xapi.ErrNotFound
	}
	return f.tweet(id)
}

func (f *fakeFetcher) UserTimeline(_ context.Context, username string, pages int) (xapi.Result, error) {
	f.timelines = append(f.timelines, username)
	if f.timeline == nil {
		return xapi.Result{}, nil
	}
	return f.timeline(username, pages)
}

func (f *fakeFetcher) PageSize() int { return f.pageSize }

func (f *fakeFetcher) calls() int { return len(f.searches) + len(f.tweetIDs) + len(f.timelines) }

func record(id string, likes int) cache.Record {
	return cache.Record{ID: id, Text: "post " + id, Username: "gopher", Metrics: cache.Metrics{Likes: likes}}
}

func page(records ...cache.Record) xapi.Result {
	return xapi.Result{Records: records, Requests: 1, Units: int64(len(records))}
}

var testTTLs = TTLs{Search: time.Hour, Thread: time.Hour, Tweet: time.Hour, Profile: time.Hour}

type fixture struct {
	p       *Pipeline
	fetcher *fakeFetcher
	ledger  *ledger.Ledger
	store   ledger.FileStore
}

func newFixture(t *testing.T, cacheStore cache.Store) *fixture {
	t.Helper()
	dir := t.TempDir()
	if cacheStore == nil {
		db, err := cache.Open(filepath.Join(dir, "results.db"), 24*time.Hour)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		cacheStore = db
	}
	fs := ledger.FileStore{Path: filepath.Join(dir, "budget.json")}
	l := ledger.New(fs, 0.005, zerolog.Nop())
	f := &fakeFetcher{pageSize: 100}
	return &fixture{
		p:       New(f, cacheStore, l, testTTLs, zerolog.Nop()),
		fetcher: f,
		ledger:  l,
		store:   fs,
	}
}

func TestSearchFetchesThenServesFromCache(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) {
		return page(record("1", 5), record("2", 9), record("1", 5)), nil
	}
	ctx := context.Background()

	first, err := fx.p.Search(ctx, "golang", SearchOptions{Pages: 1})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Len(t, first.Records, 2, "duplicates should be merged")
	assert.Equal(t, int64(3), first.Units)
	assert.Equal(t, ledger.FromUSD(0.015), first.Cost)

	second, err := fx.p.Search(ctx, "golang", SearchOptions{Pages: 1})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Zero(t, second.Units)
	assert.Len(t, fx.fetcher.searches, 1, "second call must not reach the API")

	st := fx.ledger.Status()
	assert.Equal(t, int64(3), st.Usage.TodayReads)
}

func TestSearchDifferentPagesIsDifferentEntry(t *testing.T) {
	fx := newFixture(t, nil)
	// multi-page estimates exceed the default $1.00 daily cap
	require.NoError(t, fx.ledger.SetDailyLimit(0))
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("1", 0)), nil }
	ctx := context.Background()

	_, err := fx.p.Search(ctx, "golang", SearchOptions{Pages: 1})
	require.NoError(t, err)
	_, err = fx.p.Search(ctx, "golang", SearchOptions{Pages: 2})
	require.NoError(t, err)
	assert.Len(t, fx.fetcher.searches, 2)
}

func TestSearchDeniedBeforeFetch(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.ledger.SetDailyLimit(0.40))

	// 1 page x 100 items x $0.005 = $0.50 > $0.40
	_, err := fx.p.Search(context.Background(), "golang", SearchOptions{Pages: 1})
	var denied *ledger.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, ledger.WindowDaily, denied.Window)
	assert.Zero(t, fx.fetcher.calls(), "denied requests must not reach the API")
}

func TestSearchDeniedEvenWhenCached(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("1", 0)), nil }
	ctx := context.Background()

	_, err := fx.p.Search(ctx, "golang", SearchOptions{Pages: 1})
	require.NoError(t, err)
	require.NoError(t, fx.ledger.SetDailyLimit(0.10))

	_, err = fx.p.Search(ctx, "golang", SearchOptions{Pages: 1})
	var denied *ledger.DeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestSearchRaisesAlert(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.ledger.SetDailyLimit(1.00))
	records := make([]cache.Record, 170)
	for i := range records {
		records[i] = record(string(rune('a'+i%26))+string(rune('a'+i/26)), 0)
	}
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(records...), nil }

	res, err := fx.p.Search(context.Background(), "golang", SearchOptions{Pages: 1})
	require.NoError(t, err)
	assert.Equal(t, ledger.AlertApproaching, res.Alert.Level)
	assert.Equal(t, ledger.WindowDaily, res.Alert.Window)
}

func TestSearchRefreshBypassesCacheRead(t *testing.T) {
	fx := newFixture(t, nil)
	n := 0
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) {
		n++
		return page(record("1", n)), nil
	}
	ctx := context.Background()

	_, err := fx.p.Search(ctx, "golang", SearchOptions{})
	require.NoError(t, err)

	fx.p.Refresh = true
	res, err := fx.p.Search(ctx, "golang", SearchOptions{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, res.Records[0].Metrics.Likes)

	fx.p.Refresh = false
	res, err = fx.p.Search(ctx, "golang", SearchOptions{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 2, res.Records[0].Metrics.Likes, "refreshed result should overwrite the entry")
}

func TestSearchPostProcessing(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) {
		return page(record("1", 5), record("2", 50), record("3", 1), record("4", 20)), nil
	}

	res, err := fx.p.Search(context.Background(), "golang", SearchOptions{
		Sort:       aggregate.SortLikes,
		Thresholds: aggregate.Thresholds{MinLikes: 5},
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "2", res.Records[0].ID)
	assert.Equal(t, "4", res.Records[1].ID)
	assert.Equal(t, string(aggregate.SortRecency), fx.fetcher.searches[0].SortOrder)
}

func TestSearchSince(t *testing.T) {
	fx := newFixture(t, nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fx.p.now = func() time.Time { return now }

	_, err := fx.p.Search(context.Background(), "golang", SearchOptions{Since: "3h"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-3*time.Hour), fx.fetcher.searches[0].StartTime)

	_, err = fx.p.Search(context.Background(), "golang", SearchOptions{Since: "8d"})
	assert.Error(t, err)
	_, err = fx.p.Search(context.Background(), "golang", SearchOptions{Since: "soon"})
	assert.Error(t, err)
	assert.Len(t, fx.fetcher.searches, 1)
}

func TestSearchPartialFailureStillCharges(t *testing.T) {
	fx := newFixture(t, nil)
	// multi-page estimates exceed the default $1.00 daily cap
	require.NoError(t, fx.ledger.SetDailyLimit(0))
	boom := &xapi.RateLimitError{RetryAfter: time.Minute}
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) {
		res := page(record("1", 0), record("2", 0))
		return res, boom
	}

	res, err := fx.p.Search(context.Background(), "golang", SearchOptions{Pages: 3})
	var rl *xapi.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, int64(2), res.Units)
	assert.Equal(t, int64(2), fx.ledger.Status().Usage.TodayReads)

	_, ok, err := fx.p.store.Get(context.Background(), cache.Signature{Kind: cache.KindSearch, Query: "golang", Sort: "recency", Pages: 3}, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "failed fetches are not cached")
}

func TestSearchEmptyQuery(t *testing.T) {
	fx := newFixture(t, nil)
	_, err := fx.p.Search(context.Background(), "", SearchOptions{})
	assert.Error(t, err)
	assert.Zero(t, fx.fetcher.calls())
}

func TestSearchWithNopStoreAlwaysFetches(t *testing.T) {
	fx := newFixture(t, cache.Nop{})
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("1", 0)), nil }
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := fx.p.Search(ctx, "golang", SearchOptions{})
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Len(t, fx.fetcher.searches, 2)
}

func TestFetchByID(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.tweet = func(id string) (cache.Record, error) { return record(id, 3), nil }
	ctx := context.Background()

	got, err := fx.p.FetchByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, Found, got.Status)
	assert.Equal(t, "42", got.Record.ID)
	assert.Equal(t, int64(1), got.Result.Units)

	again, err := fx.p.FetchByID(ctx, "42")
	require.NoError(t, err)
	assert.True(t, again.Result.Cached)
	assert.Len(t, fx.fetcher.tweetIDs, 1)
}

func TestFetchByIDNotFound(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	got, err := fx.p.FetchByID(ctx, "404")
	require.NoError(t, err)
	assert.Equal(t, NotFound, got.Status)
	assert.Zero(t, fx.ledger.Status().Usage.TodayReads, "missing posts are not billed")

	_, err = fx.p.FetchByID(ctx, "404")
	require.NoError(t, err)
	assert.Len(t, fx.fetcher.tweetIDs, 2, "not-found results are not cached")
}

func TestFetchByIDError(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.tweet = func(string) (cache.Record, error) {
		return cache.Record{}, &xapi.APIError{Status: 500, Body: "oops"}
	}
	_, err := fx.p.FetchByID(context.Background(), "1")
	var apiErr *xapi.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestThreadPrependsRoot(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.tweet = func(id string) (cache.Record, error) { return record(id, 0), nil }
	fx.fetcher.search = func(p xapi.SearchParams) (xapi.Result, error) {
		return page(record("r1", 0), record("root", 0), record("r2", 0)), nil
	}
	ctx := context.Background()

	res, root, err := fx.p.Thread(ctx, "root", 1)
	require.NoError(t, err)
	assert.Equal(t, Found, root.Status)
	assert.Equal(t, "conversation_id:root", fx.fetcher.searches[0].Query)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "root", res.Records[0].ID)
	assert.Equal(t, "r1", res.Records[1].ID)
	assert.Equal(t, int64(4), res.Units, "root read plus three replies")

	cached, root, err := fx.p.Thread(ctx, "root", 1)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, Found, root.Status)
	assert.Len(t, fx.fetcher.searches, 1)
}

func TestThreadOmitsMissingRoot(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.tweet = func(string) (cache.Record, error) {
		return cache.Record{}, errors.New("connection reset")
	}
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) {
		return page(record("r1", 0)), nil
	}

	res, root, err := fx.p.Thread(context.Background(), "root", 1)
	require.NoError(t, err)
	assert.Equal(t, Omitted, root.Status)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "r1", res.Records[0].ID)
}

func TestThreadNotFoundRoot(t *testing.T) {
	fx := newFixture(t, nil)
	// multi-page estimates exceed the default $1.00 daily cap
	require.NoError(t, fx.ledger.SetDailyLimit(0))
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("r1", 0)), nil }

	res, root, err := fx.p.Thread(context.Background(), "gone", 2)
	require.NoError(t, err)
	assert.Equal(t, NotFound, root.Status)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 2, fx.fetcher.searches[0].Pages)
}

func TestProfile(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.timeline = func(username string, pages int) (xapi.Result, error) {
		res := page(record("1", 1), record("2", 10))
		res.Units++
		return res, nil
	}

	res, err := fx.p.Profile(context.Background(), "gopher", 1, SearchOptions{Sort: aggregate.SortLikes})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Units)
	assert.Equal(t, "2", res.Records[0].ID)
	assert.Equal(t, []string{"gopher"}, fx.fetcher.timelines)
}

func TestProfileNotFound(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.timeline = func(string, int) (xapi.Result, error) {
		return xapi.Result{Requests: 1, Units: 1}, xapi.ErrNotFound
	}
	_, err := fx.p.Profile(context.Background(), "nobody", 1, SearchOptions{})
	assert.ErrorIs(t, err, xapi.ErrNotFound)
	assert.Contains(t, err.Error(), "nobody")
	assert.Equal(t, int64(1), fx.ledger.Status().Usage.TodayReads)
}

func TestMaintenance(t *testing.T) {
	fx := newFixture(t, nil)
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("1", 0)), nil }
	ctx := context.Background()

	_, err := fx.p.Search(ctx, "a", SearchOptions{})
	require.NoError(t, err)
	_, err = fx.p.Search(ctx, "b", SearchOptions{})
	require.NoError(t, err)

	st, err := fx.p.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Entries)

	n, err := fx.p.CachePrune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = fx.p.CacheClear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, fx.p.SetDailyLimit(3))
	require.NoError(t, fx.p.SetMonthlyLimit(40))
	require.NoError(t, fx.p.ResetLedger())
	s := fx.p.LedgerStatus()
	assert.Equal(t, 3.0, s.DailyLimitUSD)
	assert.Equal(t, 40.0, s.MonthlyLimitUSD)
	assert.Zero(t, s.Usage.TodayReads)
}

// ttlStore records the write TTL of every Set and never hits.
type ttlStore struct {
	cache.Nop
	written map[cache.Kind]time.Duration
}

func (s *ttlStore) Set(_ context.Context, sig cache.Signature, _ []cache.Record, ttl time.Duration) error {
	s.written[sig.Kind] = ttl
	return nil
}

func TestCacheWritesCarryKindTTL(t *testing.T) {
	store := &ttlStore{written: map[cache.Kind]time.Duration{}}
	fx := newFixture(t, store)
	fx.p.ttl = TTLs{Search: 15 * time.Minute, Thread: 2 * time.Hour, Tweet: 24 * time.Hour, Profile: time.Hour}
	fx.fetcher.tweet = func(id string) (cache.Record, error) { return record(id, 0), nil }
	fx.fetcher.search = func(xapi.SearchParams) (xapi.Result, error) { return page(record("1", 0)), nil }
	ctx := context.Background()

	_, err := fx.p.Search(ctx, "golang", SearchOptions{})
	require.NoError(t, err)
	_, _, err = fx.p.Thread(ctx, "root", 1)
	require.NoError(t, err)
	_, err = fx.p.Profile(ctx, "gopher", 1, SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, store.written[cache.KindSearch])
	assert.Equal(t, 2*time.Hour, store.written[cache.KindThread])
	assert.Equal(t, 24*time.Hour, store.written[cache.KindTweet])
	assert.Equal(t, time.Hour, store.written[cache.KindProfile])
}

func TestThreadKeepsRootAlert(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.ledger.SetDailyLimit(5.00))
	// $3.995 spent; the root read brings it to $4.000, 80% of the cap
	_, err := fx.ledger.Record(799)
	require.NoError(t, err)
	fx.fetcher.tweet = func(id string) (cache.Record, error) { return record(id, 0), nil }

	res, root, err := fx.p.Thread(context.Background(), "root", 1)
	require.NoError(t, err)
	assert.Equal(t, Found, root.Status)
	assert.Equal(t, int64(1), res.Units)
	assert.Equal(t, ledger.AlertApproaching, res.Alert.Level)
	assert.Equal(t, ledger.WindowDaily, res.Alert.Window)
}
