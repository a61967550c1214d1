package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/config"
	"github.com/matheuskafuri/xscout/internal/format"
	"github.com/matheuskafuri/xscout/internal/ledger"
	"github.com/matheuskafuri/xscout/internal/pipeline"
	"github.com/matheuskafuri/xscout/internal/xapi"
)

// env is everything a command needs, built from the config file.
type env struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	render   *format.Renderer
	cacheLoc string
}

func (e *env) Close() error { return e.pipeline.Close() }

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, loc := openCache(ctx, cfg)
	led := ledger.New(ledger.FileStore{Path: config.LedgerPath()}, cfg.UnitPrice(), logger)
	client := xapi.New(xapi.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		PageSize:   cfg.GetPageSize(),
		PageDelay:  cfg.PageDelayDuration(),
		Logger:     logger,
	})

	p := pipeline.New(client, store, led, pipeline.TTLsFromConfig(cfg), logger)
	p.Refresh = flagRefresh

	return &env{
		cfg:      cfg,
		pipeline: p,
		render:   format.New(rootCmd.OutOrStdout(), flagMarkdown),
		cacheLoc: loc,
	}, nil
}

// openCache opens the configured backend. A cache that cannot be opened
// degrades to no caching rather than failing the command.
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, string) {
	switch cfg.Cache.Backend {
	case "redis":
		r, err := cache.OpenRedis(ctx, cfg.Cache.RedisAddr, cfg.RetentionDuration())
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis cache unavailable, caching disabled")
			return cache.Nop{}, "disabled"
		}
		return r, "redis://" + cfg.Cache.RedisAddr
	default:
		path := config.CachePath()
		db, err := cache.Open(path, cfg.RetentionDuration())
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("cache unavailable, caching disabled")
			return cache.Nop{}, "disabled"
		}
		return db, path
	}
}
