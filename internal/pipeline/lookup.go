package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheuskafuri/xscout/internal/aggregate"
	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/ledger"
	"github.com/matheuskafuri/xscout/internal/xapi"
)

// Status says what a single-item lookup produced.
type Status int

const (
	// Found means Lookup.Record is set.
	Found Status = iota
	// NotFound means the post is deleted, protected or never existed.
	NotFound
	// Omitted means the lookup failed and the caller chose to go on without it.
	Omitted
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	case Omitted:
		return "omitted"
	default:
		return "unknown"
	}
}

type Lookup struct {
	Record cache.Record
	Status Status
	Result Result
}

// FetchByID returns a single post. A missing post is a NotFound lookup, not
// an error.
func (p *Pipeline) FetchByID(ctx context.Context, id string) (Lookup, error) {
	if id == "" {
		return Lookup{}, errors.New("fetch: empty id")
	}
	sig := cache.Signature{Kind: cache.KindTweet, Query: id}

	res, err := p.cachedFetch(ctx, sig, p.ttl.Tweet, 1, func() (xapi.Result, error) {
		rec, err := p.fetcher.Tweet(ctx, id)
		if err != nil {
			return xapi.Result{Requests: 1}, err
		}
		return xapi.Result{Records: []cache.Record{rec}, Requests: 1, Units: 1}, nil
	})
	if errors.Is(err, xapi.ErrNotFound) {
		return Lookup{Status: NotFound, Result: res}, nil
	}
	if err != nil {
		return Lookup{Result: res}, err
	}
	if len(res.Records) == 0 {
		return Lookup{Status: NotFound, Result: res}, nil
	}
	return Lookup{Record: res.Records[0], Status: Found, Result: res}, nil
}

// Thread returns the replies in rootID's conversation with the root post
// prepended. A root that cannot be fetched is left out rather than failing
// the thread.
func (p *Pipeline) Thread(ctx context.Context, rootID string, pages int) (Result, Lookup, error) {
	if rootID == "" {
		return Result{}, Lookup{}, errors.New("thread: empty id")
	}
	if pages < 1 {
		pages = 1
	}
	sig := cache.Signature{Kind: cache.KindThread, Query: rootID, Pages: pages}
	estimate := int64(pages*p.fetcher.PageSize()) + 1

	root := Lookup{Status: Omitted}
	res, err := p.cachedFetch(ctx, sig, p.ttl.Thread, estimate, func() (xapi.Result, error) {
		root = p.threadRoot(ctx, rootID)

		conv, err := p.fetcher.Search(ctx, xapi.SearchParams{
			Query:     "conversation_id:" + rootID,
			Pages:     pages,
			SortOrder: string(aggregate.SortRecency),
		})
		if root.Status == Found {
			conv.Records = append([]cache.Record{root.Record}, conv.Records...)
		}
		return conv, err
	})
	if err != nil {
		return res, root, err
	}
	if res.Cached && len(res.Records) > 0 && res.Records[0].ID == rootID {
		root = Lookup{Record: res.Records[0], Status: Found}
	}
	res.Units += root.Result.Units
	res.Cost += root.Result.Cost
	if res.Alert.Level == ledger.AlertNone {
		res.Alert = root.Result.Alert
	}
	return res, root, nil
}

func (p *Pipeline) threadRoot(ctx context.Context, rootID string) Lookup {
	root, err := p.FetchByID(ctx, rootID)
	if err != nil {
		p.logger.Warn().Err(err).Str("id", rootID).Msg("thread root unavailable, omitting")
		return Lookup{Status: Omitted}
	}
	if root.Status == NotFound {
		p.logger.Debug().Str("id", rootID).Msg("thread root not found, omitting")
	}
	return root
}

// String formats the status for CLI output.
func (l Lookup) String() string {
	if l.Status == Found {
		return fmt.Sprintf("%s (%s)", l.Record.ID, l.Status)
	}
	return l.Status.String()
}
