package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matheuskafuri/xscout/internal/aggregate"
	"github.com/matheuskafuri/xscout/internal/format"
	"github.com/matheuskafuri/xscout/internal/pipeline"
)

var (
	flagPages          int
	flagSort           string
	flagSince          string
	flagMinLikes       int
	flagMinImpressions int
	flagMinRetweets    int
	flagLimit          int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search recent posts",
	Long: `Search posts from the last 7 days.

The query uses the X search operator syntax, e.g. "golang -is:retweet lang:en".
Each page reads up to api.page_size posts and is billed per post.

Before anything is sent, the whole request is priced as pages x page_size x
unit price and checked against both caps. With the defaults (100 posts at
$0.005) each page reserves $0.50, so --pages 3 never fits the $1.00 daily cap
and --pages 2 only fits before any spend that day. Lower api.page_size or
raise the cap with "xscout budget set-daily" for deeper searches.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := searchOptions()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")

		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.pipeline.Search(cmd.Context(), query, opts)
		if err != nil {
			return err
		}
		return e.render.Records(res.Records, summary(query, res))
	},
}

func init() {
	addFilterFlags(searchCmd)
	searchCmd.Flags().StringVar(&flagSince, "since", "", "only posts from the last duration (e.g. 6h, 3d; max 7d)")
}

// addFilterFlags registers the paging and post-processing flags shared by
// search and profile.
func addFilterFlags(c *cobra.Command) {
	f := c.Flags()
	f.IntVarP(&flagPages, "pages", "p", 1, "number of result pages to read (each reserves page_size x unit price against the caps)")
	f.StringVarP(&flagSort, "sort", "s", "recency", "sort by "+sortModes())
	f.IntVar(&flagMinLikes, "min-likes", 0, "drop posts with fewer likes")
	f.IntVar(&flagMinImpressions, "min-impressions", 0, "drop posts with fewer impressions")
	f.IntVar(&flagMinRetweets, "min-retweets", 0, "drop posts with fewer reposts")
	f.IntVarP(&flagLimit, "limit", "n", 0, "show at most n posts (0 for all)")
}

func searchOptions() (pipeline.SearchOptions, error) {
	mode, err := aggregate.ParseSortMode(flagSort)
	if err != nil {
		return pipeline.SearchOptions{}, err
	}
	if flagPages < 1 {
		return pipeline.SearchOptions{}, fmt.Errorf("--pages must be at least 1, got %d", flagPages)
	}
	if flagLimit < 0 || flagMinLikes < 0 || flagMinImpressions < 0 || flagMinRetweets < 0 {
		return pipeline.SearchOptions{}, fmt.Errorf("--limit and --min-* flags must not be negative")
	}
	return pipeline.SearchOptions{
		Pages: flagPages,
		Sort:  mode,
		Since: flagSince,
		Thresholds: aggregate.Thresholds{
			MinLikes:       flagMinLikes,
			MinImpressions: flagMinImpressions,
			MinRetweets:    flagMinRetweets,
		},
		Limit: flagLimit,
	}, nil
}

func sortModes() string {
	modes := aggregate.AllSortModes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func summary(title string, res pipeline.Result) format.Summary {
	return format.Summary{
		Title:  title,
		Cached: res.Cached,
		Units:  res.Units,
		Cost:   res.Cost,
		Alert:  res.Alert,
	}
}
