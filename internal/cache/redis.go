package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisPrefix = "xscout:cache:"

type redisEntry struct {
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created_at"`
	// TTL is the freshness window the entry was written under, in nanoseconds.
	TTL     time.Duration `json:"ttl"`
	Records []Record      `json:"records"`
}

// Redis stores entries as JSON values that Redis itself expires after the
// retention ceiling.
type Redis struct {
	client    redis.UniversalClient
	retention time.Duration
	now       func() time.Time
}

func OpenRedis(ctx context.Context, addr string, retention time.Duration) (*Redis, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{addr},
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, retention: retention, now: time.Now}, nil
}

func (r *Redis) Get(ctx context.Context, sig Signature, ttl time.Duration) ([]Record, bool, error) {
	data, err := r.client.Get(ctx, redisPrefix+sig.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading entry: %w", err)
	}

	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, nil
	}
	if !fresh(e.CreatedAt, r.now(), e.TTL, ttl) {
		return nil, false, nil
	}
	return e.Records, true, nil
}

func (r *Redis) Set(ctx context.Context, sig Signature, records []Record, ttl time.Duration) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(redisEntry{Signature: sig.String(), CreatedAt: r.now(), TTL: ttl, Records: records})
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := r.client.Set(ctx, redisPrefix+sig.Key(), data, r.retention).Err(); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// Prune drops entries older than retention that Redis has not expired yet,
// which happens when retention was shortened after they were written.
func (r *Redis) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	var removed int64
	err := r.scan(ctx, func(key string) error {
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var e redisEntry
		if json.Unmarshal(data, &e) == nil && !e.CreatedAt.Before(cutoff) {
			return nil
		}
		n, err := r.client.Del(ctx, key).Result()
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("pruning entries: %w", err)
	}
	return removed, nil
}

func (r *Redis) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := r.scan(ctx, func(key string) error {
		n, err := r.client.Del(ctx, key).Result()
		removed += n
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("clearing entries: %w", err)
	}
	return removed, nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.scan(ctx, func(key string) error {
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var e redisEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		st.Entries++
		st.Records += int64(len(e.Records))
		if st.Oldest.IsZero() || e.CreatedAt.Before(st.Oldest) {
			st.Oldest = e.CreatedAt
		}
		if e.CreatedAt.After(st.Newest) {
			st.Newest = e.CreatedAt
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return st, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) scan(ctx context.Context, fn func(key string) error) error {
	iter := r.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}
