package cache

import (
	"context"
	"time"
)

// Store maps signatures to previously fetched record sets.
//
// Set records the TTL in effect when the entry was written. Get reports a
// miss when no entry exists or when the entry is at least as old as the
// shorter of that TTL and the one requested at read time. Retention used by
// Prune is a storage policy and independent of both.
type Store interface {
	Get(ctx context.Context, sig Signature, ttl time.Duration) ([]Record, bool, error)
	Set(ctx context.Context, sig Signature, records []Record, ttl time.Duration) error
	Prune(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Nop is an always-miss store. It stands in for a store that could not be
// opened so a broken cache never blocks a query.
type Nop struct{}

func (Nop) Get(context.Context, Signature, time.Duration) ([]Record, bool, error) {
	return nil, false, nil
}
func (Nop) Set(context.Context, Signature, []Record, time.Duration) error { return nil }
func (Nop) Prune(context.Context) (int64, error)                          { return 0, nil }
func (Nop) Clear(context.Context) (int64, error)                          { return 0, nil }
func (Nop) Stats(context.Context) (Stats, error)                          { return Stats{}, nil }
func (Nop) Close() error                                                  { return nil }

// fresh reports whether an entry created at created is still usable at now.
// A zero writeTTL (entries from before it was stored) defers to readTTL.
func fresh(created, now time.Time, writeTTL, readTTL time.Duration) bool {
	ttl := readTTL
	if writeTTL > 0 && writeTTL < ttl {
		ttl = writeTTL
	}
	return now.Sub(created) < ttl
}
