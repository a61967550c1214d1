package xapi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by single-item lookups for deleted, protected or
// unknown posts and users.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response other than 429.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("api error: HTTP %d: %s", e.Status, e.Body)
}

// RateLimitError is a 429 response. The client never retries on its own;
// RetryAfter is how long the caller should wait before resubmitting.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", int(e.RetryAfter.Seconds()))
}

const maxErrorBody = 300

func errorBody(body []byte, contentType string) string {
	s := string(body)
	if strings.Contains(contentType, "html") {
		s = stripHTML(s)
	} else {
		s = strings.Join(strings.Fields(s), " ")
	}
	return truncate(s, maxErrorBody)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
