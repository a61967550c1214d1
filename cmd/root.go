package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/matheuskafuri/xscout/internal/config"
	"github.com/matheuskafuri/xscout/internal/ledger"
	"github.com/matheuskafuri/xscout/internal/update"
	"github.com/matheuskafuri/xscout/internal/xapi"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagVerbose  bool
	flagRefresh  bool
	flagMarkdown bool
	flagCheck    bool
)

var logger = zerolog.Nop()

var rootCmd = &cobra.Command{
	Use:   "xscout",
	Short: "Budget-aware reader for X posts",
	Long: `xscout searches and reads posts from the pay-per-use X API.

Every request is checked against a daily and a rolling 30-day spending cap
before it is sent, and results are cached locally so repeated queries are free.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(flagVerbose)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output to stderr")
	pf.BoolVar(&flagRefresh, "refresh", false, "ignore cached results and fetch again")
	pf.BoolVar(&flagMarkdown, "markdown", false, "render output as markdown")

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "check GitHub for a newer release")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(tweetCmd)
	rootCmd.AddCommand(threadCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(budgetCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("xscout %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagCheck {
			return nil
		}
		res, err := update.Check(cmd.Context(), version)
		if err != nil {
			return err
		}
		if res == nil {
			fmt.Println("You are on the latest release.")
			return nil
		}
		fmt.Printf("xscout %s is available: %s\n", res.LatestVersion, res.URL)
		return nil
	},
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		stop()
		os.Exit(exitCode(err))
	}
}

// describe adds a hint to the errors a user can act on.
func describe(err error) string {
	var denied *ledger.DeniedError
	if errors.As(err, &denied) {
		return err.Error() + " (raise the cap with `xscout budget set-" + string(denied.Window) + "`)"
	}
	return err.Error()
}

// Exit codes: 1 generic, 2 budget denied, 3 rate limited, 4 missing credentials.
func exitCode(err error) int {
	var denied *ledger.DeniedError
	var limited *xapi.RateLimitError
	switch {
	case errors.As(err, &denied):
		return 2
	case errors.As(err, &limited):
		return 3
	case errors.Is(err, config.ErrNoToken):
		return 4
	default:
		return 1
	}
}
