package cache

import "time"

// Metrics holds the public engagement counters of a record.
type Metrics struct {
	Likes       int `json:"likes"`
	Retweets    int `json:"retweets"`
	Replies     int `json:"replies"`
	Quotes      int `json:"quotes"`
	Impressions int `json:"impressions"`
	Bookmarks   int `json:"bookmarks"`
}

// Record is a normalized post. Records are built once by the fetch client
// and passed around by value.
type Record struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	AuthorID       string    `json:"author_id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	ConversationID string    `json:"conversation_id"`
	Metrics        Metrics   `json:"metrics"`
	URLs           []string  `json:"urls"`
	Mentions       []string  `json:"mentions"`
	Hashtags       []string  `json:"hashtags"`
	Permalink      string    `json:"permalink"`
}

type Stats struct {
	Entries int64
	Records int64
	Oldest  time.Time
	Newest  time.Time
}
