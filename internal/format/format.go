// Package format renders query results, budget state and cache statistics
// for the terminal or as markdown.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matheuskafuri/xscout/internal/cache"
	"github.com/matheuskafuri/xscout/internal/ledger"
)

const wrapWidth = 80

// Summary describes where a result set came from and what it cost.
type Summary struct {
	Title  string
	Cached bool
	Units  int64
	Cost   ledger.Micros
	Alert  ledger.Alert
	// Note is an extra footer line, e.g. an omitted thread root.
	Note string
}

type Renderer struct {
	w        io.Writer
	markdown bool
	now      func() time.Time
}

func New(w io.Writer, markdown bool) *Renderer {
	return &Renderer{w: w, markdown: markdown, now: time.Now}
}

func (r *Renderer) Records(records []cache.Record, s Summary) error {
	var b strings.Builder
	if r.markdown {
		r.markdownRecords(&b, records, s)
	} else {
		r.terminalRecords(&b, records, s)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) terminalRecords(b *strings.Builder, records []cache.Record, s Summary) {
	if s.Title != "" {
		b.WriteString(headerStyle.Render(s.Title) + "\n\n")
	}
	if len(records) == 0 {
		b.WriteString(footerStyle.Render("No posts matched.") + "\n")
	}
	for i, rec := range records {
		head := fmt.Sprintf("%2d. %s %s", i+1,
			authorStyle.Render("@"+rec.Username),
			timeStyle.Render(rec.Name+" · "+r.relativeTime(rec.CreatedAt)))
		b.WriteString(head + "\n")
		b.WriteString(bodyStyle.Render(wrapText(rec.Text, wrapWidth)) + "\n")
		b.WriteString(metricsStyle.Render(metricsLine(rec.Metrics)) + "\n")
		b.WriteString(linkStyle.Render(rec.Permalink) + "\n\n")
	}
	b.WriteString(footerStyle.Render(footer(len(records), s)) + "\n")
	if s.Note != "" {
		b.WriteString(footerStyle.Render(s.Note) + "\n")
	}
	if line := r.alertLine(s.Alert); line != "" {
		b.WriteString(line + "\n")
	}
}

func (r *Renderer) markdownRecords(b *strings.Builder, records []cache.Record, s Summary) {
	if s.Title != "" {
		fmt.Fprintf(b, "# %s\n\n", s.Title)
	}
	if len(records) == 0 {
		b.WriteString("_No posts matched._\n\n")
	}
	for _, rec := range records {
		fmt.Fprintf(b, "### @%s (%s)", rec.Username, rec.Name)
		if !rec.CreatedAt.IsZero() {
			fmt.Fprintf(b, " · %s", rec.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		b.WriteString("\n\n")
		for _, line := range strings.Split(rec.Text, "\n") {
			b.WriteString("> " + line + "\n")
		}
		fmt.Fprintf(b, "\n%s · [link](%s)\n\n", metricsLine(rec.Metrics), rec.Permalink)
	}
	fmt.Fprintf(b, "---\n_%s_\n", footer(len(records), s))
	if s.Note != "" {
		fmt.Fprintf(b, "\n_%s_\n", s.Note)
	}
	if s.Alert.Level != ledger.AlertNone {
		fmt.Fprintf(b, "\n**%s**\n", s.Alert.Message)
	}
}

// Alert writes a standalone budget alert line; AlertNone writes nothing.
func (r *Renderer) Alert(a ledger.Alert) error {
	if a.Level == ledger.AlertNone {
		return nil
	}
	line := r.alertLine(a)
	if r.markdown {
		line = "**" + a.Message + "**"
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func (r *Renderer) alertLine(a ledger.Alert) string {
	switch a.Level {
	case ledger.AlertApproaching:
		return approachingStyle.Render("! " + a.Message)
	case ledger.AlertExceeded:
		return exceededStyle.Render("!! " + a.Message)
	default:
		return ""
	}
}

// Budget prints both windows with spend, cap and remaining headroom.
func (r *Renderer) Budget(s ledger.State) error {
	u := s.Usage
	rows := [][2]string{
		{"Today (" + u.Today + ")", window(u.TodayCost, s.DailyLimit(), u.TodayReads)},
		{"Rolling 30d", window(u.RollingCost, s.MonthlyLimit(), u.RollingReads)},
		{"Window start", u.LastReset.UTC().Format("2006-01-02")},
		{"Warn at", fmt.Sprintf("%.0f%%", 100*s.WarnThreshold)},
	}
	return r.table("Budget", rows)
}

func (r *Renderer) CacheStats(st cache.Stats, location string) error {
	rows := [][2]string{
		{"Location", location},
		{"Entries", fmt.Sprintf("%d", st.Entries)},
		{"Records", fmt.Sprintf("%d", st.Records)},
	}
	if st.Entries > 0 {
		rows = append(rows,
			[2]string{"Oldest", r.relativeTime(st.Oldest)},
			[2]string{"Newest", r.relativeTime(st.Newest)},
		)
	}
	return r.table("Cache", rows)
}

func (r *Renderer) table(title string, rows [][2]string) error {
	var b strings.Builder
	if r.markdown {
		fmt.Fprintf(&b, "## %s\n\n| | |\n|---|---|\n", title)
		for _, row := range rows {
			fmt.Fprintf(&b, "| %s | %s |\n", row[0], row[1])
		}
	} else {
		b.WriteString(headerStyle.Render(title) + "\n")
		for _, row := range rows {
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(row[0]), row[1]) + "\n")
		}
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func window(spent, limit ledger.Micros, reads int64) string {
	if limit <= 0 {
		return fmt.Sprintf("%s spent, no cap (%d reads)", spent, reads)
	}
	remaining := limit - spent
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%s of %s, %s left (%d reads)", spent, limit, remaining, reads)
}

func footer(n int, s Summary) string {
	noun := "posts"
	if n == 1 {
		noun = "post"
	}
	if s.Cached {
		return fmt.Sprintf("%d %s · from cache, no charge", n, noun)
	}
	return fmt.Sprintf("%d %s · %d reads · %s", n, noun, s.Units, s.Cost)
}

func metricsLine(m cache.Metrics) string {
	return fmt.Sprintf("%s likes · %s reposts · %s replies · %s views",
		compact(m.Likes), compact(m.Retweets), compact(m.Replies), compact(m.Impressions))
}

// compact abbreviates large counters: 1234 -> 1.2K.
func compact(n int) string {
	switch {
	case n >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "M"
	case n >= 10_000:
		return fmt.Sprintf("%dK", n/1000)
	case n >= 1000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000)) + "K"
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trimZero(s string) string { return strings.TrimSuffix(s, ".0") }

func (r *Renderer) relativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	d := r.now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
			} else {
				line += " " + w
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
