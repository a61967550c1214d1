package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.pipeline.CacheClear(cmd.Context())
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached %s.\n", n, plural(n, "result", "results"))
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached results older than the retention period",
	Long: `Delete cached results older than cache.retention and reclaim disk space.

Entries younger than retention but older than a command's TTL are kept; they
are simply not served.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.pipeline.CachePrune(cmd.Context())
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
		if n == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d %s older than %s.\n",
			n, plural(n, "entry", "entries"), formatDuration(e.cfg.RetentionDuration()))
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		st, err := e.pipeline.CacheStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		return e.render.CacheStats(st, e.cacheLoc)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd, cacheStatsCmd)
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func formatDuration(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days > 0 && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}
