package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matheuskafuri/xscout/internal/browser"
	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/pipeline"
)

var (
	flagOpen        bool
	flagThreadPages int
)

var tweetCmd = &cobra.Command{
	Use:   "tweet <id|url>",
	Short: "Show a single post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePostID(args[0])
		if err != nil {
			return err
		}
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		got, err := e.pipeline.FetchByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if got.Status == pipeline.NotFound {
			return fmt.Errorf("post %s not found (deleted, protected or never existed)", id)
		}
		if err := e.render.Records([]cache.Record{got.Record}, summary("", got.Result)); err != nil {
			return err
		}
		if flagOpen {
			return browser.Open(got.Record.Permalink)
		}
		return nil
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <id|url>",
	Short: "Show a conversation starting at a root post",
	Long: `Show the replies in a conversation with the root post first.

If the root post cannot be read it is left out and the replies are still shown.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePostID(args[0])
		if err != nil {
			return err
		}
		if flagThreadPages < 1 {
			return fmt.Errorf("--pages must be at least 1, got %d", flagThreadPages)
		}
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		res, root, err := e.pipeline.Thread(cmd.Context(), id, flagThreadPages)
		if err != nil {
			return err
		}
		s := summary("Thread "+id, res)
		if root.Status != pipeline.Found {
			s.Note = "root post " + id + " " + root.Status.String() + ", showing replies only"
		}
		return e.render.Records(res.Records, s)
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <username>",
	Short: "Show recent posts from a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimPrefix(strings.TrimSpace(args[0]), "@")
		opts, err := searchOptions()
		if err != nil {
			return err
		}
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.pipeline.Profile(cmd.Context(), username, opts.Pages, opts)
		if err != nil {
			return err
		}
		return e.render.Records(res.Records, summary("@"+username, res))
	},
}

func init() {
	tweetCmd.Flags().BoolVarP(&flagOpen, "open", "o", false, "open the post in a browser")
	threadCmd.Flags().IntVarP(&flagThreadPages, "pages", "p", 1, "number of reply pages to read")
	addFilterFlags(profileCmd)
}

// parsePostID accepts a bare numeric id or a post URL on x.com or twitter.com.
func parsePostID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		return s, nil
	}
	u, err := url.Parse(s)
	if err == nil && u.Host != "" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			if parts[i] == "status" && isDigits(parts[i+1]) {
				return parts[i+1], nil
			}
		}
	}
	return "", fmt.Errorf("not a post id or URL: %q", s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
