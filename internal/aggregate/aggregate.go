// Package aggregate merges and post-processes fetched records.
package aggregate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matheuskafuri/xscout/internal/cache"
)

type SortMode string

const (
	SortRecency     SortMode = "recency"
	SortLikes       SortMode = "likes"
	SortImpressions SortMode = "impressions"
	SortRetweets    SortMode = "retweets"
	SortReplies     SortMode = "replies"
	SortQuotes      SortMode = "quotes"
	SortBookmarks   SortMode = "bookmarks"
)

var metrics = map[SortMode]func(cache.Metrics) int{
	SortLikes:       func(m cache.Metrics) int { return m.Likes },
	SortImpressions: func(m cache.Metrics) int { return m.Impressions },
	SortRetweets:    func(m cache.Metrics) int { return m.Retweets },
	SortReplies:     func(m cache.Metrics) int { return m.Replies },
	SortQuotes:      func(m cache.Metrics) int { return m.Quotes },
	SortBookmarks:   func(m cache.Metrics) int { return m.Bookmarks },
}

// AllSortModes returns the valid modes in display order.
func AllSortModes() []SortMode {
	return []SortMode{SortRecency, SortLikes, SortImpressions, SortRetweets, SortReplies, SortQuotes, SortBookmarks}
}

func ParseSortMode(s string) (SortMode, error) {
	m := SortMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" || m == "recent" {
		return SortRecency, nil
	}
	if m == SortRecency {
		return m, nil
	}
	if _, ok := metrics[m]; ok {
		return m, nil
	}
	names := make([]string, 0, len(metrics)+1)
	for _, mode := range AllSortModes() {
		names = append(names, string(mode))
	}
	return "", fmt.Errorf("unknown sort mode %q (valid: %s)", s, strings.Join(names, ", "))
}

// Dedupe keeps the first occurrence of each record ID, preserving order.
func Dedupe(records []cache.Record) []cache.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]cache.Record, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Thresholds are minimum engagement counts. Zero fields impose nothing.
type Thresholds struct {
	MinLikes       int
	MinImpressions int
	MinRetweets    int
}

func (t Thresholds) IsZero() bool { return t == Thresholds{} }

func (t Thresholds) match(m cache.Metrics) bool {
	return m.Likes >= t.MinLikes && m.Impressions >= t.MinImpressions && m.Retweets >= t.MinRetweets
}

func Filter(records []cache.Record, t Thresholds) []cache.Record {
	if t.IsZero() {
		return records
	}
	out := make([]cache.Record, 0, len(records))
	for _, r := range records {
		if t.match(r.Metrics) {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders records by the chosen metric, highest first, keeping the
// fetch order for ties. Recency is left as returned by the endpoint.
func Sort(records []cache.Record, mode SortMode) []cache.Record {
	metric, ok := metrics[mode]
	if !ok {
		return records
	}
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b cache.Record) int {
		return metric(b.Metrics) - metric(a.Metrics)
	})
	return out
}
