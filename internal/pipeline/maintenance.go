package pipeline

import (
	"context"

	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/ledger"
)

// CacheClear removes every cached result and returns how many were dropped.
func (p *Pipeline) CacheClear(ctx context.Context) (int64, error) {
	n, err := p.store.Clear(ctx)
	if err == nil {
		p.logger.Debug().Int64("removed", n).Msg("cache cleared")
	}
	return n, err
}

// CachePrune drops entries past the store's retention horizon.
func (p *Pipeline) CachePrune(ctx context.Context) (int64, error) {
	n, err := p.store.Prune(ctx)
	if err == nil {
		p.logger.Debug().Int64("removed", n).Msg("cache pruned")
	}
	return n, err
}

func (p *Pipeline) CacheStats(ctx context.Context) (cache.Stats, error) {
	return p.store.Stats(ctx)
}

func (p *Pipeline) LedgerStatus() ledger.State { return p.ledger.Status() }

func (p *Pipeline) SetDailyLimit(usd float64) error   { return p.ledger.SetDailyLimit(usd) }
func (p *Pipeline) SetMonthlyLimit(usd float64) error { return p.ledger.SetMonthlyLimit(usd) }
func (p *Pipeline) ResetLedger() error                { return p.ledger.Reset() }

// Close releases the cache backend.
func (p *Pipeline) Close() error { return p.store.Close() }
