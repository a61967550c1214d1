package xapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheuskafuri/xscout/internal/cache"
)

const (
	unknownUsername = "unknown"
	unknownName     = "Unknown"
)

// Wire shapes. Every field is optional; normalize decides the defaults.

type rawMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	QuoteCount      int `json:"quote_count"`
	ImpressionCount int `json:"impression_count"`
	BookmarkCount   int `json:"bookmark_count"`
}

type rawEntities struct {
	URLs []struct {
		URL         string `json:"url"`
		ExpandedURL string `json:"expanded_url"`
	} `json:"urls"`
	Mentions []struct {
		Username string `json:"username"`
	} `json:"mentions"`
	Hashtags []struct {
		Tag string `json:"tag"`
	} `json:"hashtags"`
}

type rawTweet struct {
	ID             string      `json:"id"`
	Text           string      `json:"text"`
	AuthorID       string      `json:"author_id"`
	CreatedAt      string      `json:"created_at"`
	ConversationID string      `json:"conversation_id"`
	PublicMetrics  rawMetrics  `json:"public_metrics"`
	Entities       rawEntities `json:"entities"`
}

type rawUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type rawError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type rawResponse struct {
	Data     json.RawMessage `json:"data"`
	Includes struct {
		Users []rawUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
	Errors []rawError `json:"errors"`
}

// page is one decoded response.
type page struct {
	Records   []cache.Record
	NextToken string
	Errors    []rawError
}

func decodePage(body []byte) (page, error) {
	var resp rawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return page{}, fmt.Errorf("decoding response: %w", err)
	}
	tweets, err := decodeTweets(resp.Data)
	if err != nil {
		return page{}, err
	}

	users := make(map[string]rawUser, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u
	}
	records := make([]cache.Record, 0, len(tweets))
	for _, t := range tweets {
		if t.ID == "" {
			continue
		}
		records = append(records, normalize(t, users))
	}
	return page{Records: records, NextToken: resp.Meta.NextToken, Errors: resp.Errors}, nil
}

// decodeTweets accepts a list page, a single item, or nothing.
func decodeTweets(data json.RawMessage) ([]rawTweet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var tweets []rawTweet
		if err := json.Unmarshal(data, &tweets); err != nil {
			return nil, fmt.Errorf("decoding data: %w", err)
		}
		return tweets, nil
	}
	var t rawTweet
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return []rawTweet{t}, nil
}

// normalize is the single place where missing wire fields become defaults.
func normalize(t rawTweet, users map[string]rawUser) cache.Record {
	r := cache.Record{
		ID:             t.ID,
		Text:           t.Text,
		AuthorID:       t.AuthorID,
		Username:       unknownUsername,
		Name:           unknownName,
		ConversationID: t.ConversationID,
		Metrics: cache.Metrics{
			Likes:       nonNegative(t.PublicMetrics.LikeCount),
			Retweets:    nonNegative(t.PublicMetrics.RetweetCount),
			Replies:     nonNegative(t.PublicMetrics.ReplyCount),
			Quotes:      nonNegative(t.PublicMetrics.QuoteCount),
			Impressions: nonNegative(t.PublicMetrics.ImpressionCount),
			Bookmarks:   nonNegative(t.PublicMetrics.BookmarkCount),
		},
		URLs:     []string{},
		Mentions: []string{},
		Hashtags: []string{},
	}
	if u, ok := users[t.AuthorID]; ok && u.Username != "" {
		r.Username = u.Username
		r.Name = u.Name
		if r.Name == "" {
			r.Name = u.Username
		}
	}
	if r.ConversationID == "" {
		r.ConversationID = t.ID
	}
	if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		r.CreatedAt = ts.UTC()
	}

	for _, u := range t.Entities.URLs {
		link := u.ExpandedURL
		if link == "" {
			link = u.URL
		}
		if link != "" {
			r.URLs = append(r.URLs, link)
		}
	}
	for _, m := range t.Entities.Mentions {
		if m.Username != "" {
			r.Mentions = append(r.Mentions, m.Username)
		}
	}
	for _, h := range t.Entities.Hashtags {
		if h.Tag != "" {
			r.Hashtags = append(r.Hashtags, h.Tag)
		}
	}

	if r.Username == unknownUsername {
		r.Permalink = "https://x.com/i/status/" + t.ID
	} else {
		r.Permalink = fmt.Sprintf("https://x.com/%s/status/%s", r.Username, t.ID)
	}
	return r
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func isNotFound(errs []rawError) bool {
	for _, e := range errs {
		if strings.Contains(e.Type, "resource-not-found") || strings.HasPrefix(e.Title, "Not Found") {
			return true
		}
	}
	return false
}

func describe(errs []rawError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Detail
		if msg == "" {
			msg = e.Title
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
