package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"wiresum/internal/database"
)

// now is replaced in tests.
var now = time.Now

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func domain(raw *string) string {
	if raw == nil || *raw == "" {
		return ""
	}
	u, err := url.Parse(*raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// relativeDay renders t as Today, Yesterday or "Jan 02" in UTC.
func relativeDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	today := now().UTC().Truncate(24 * time.Hour)
	day := t.UTC().Truncate(24 * time.Hour)
	switch today.Sub(day) {
	case 0:
		return "Today"
	case 24 * time.Hour:
		return "Yesterday"
	default:
		return t.UTC().Format("Jan 02")
	}
}

func str(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func signalMark(e database.Entry) string {
	switch {
	case e.ProcessedAt == nil:
		return "pending"
	case e.IsSignal != nil && *e.IsSignal:
		return "signal"
	default:
		return "filtered"
	}
}

func writeEntryTable(w io.Writer, entries []database.Entry) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDATE\tINTEREST\tSTATUS\tSOURCE\tTITLE")
	for _, e := range entries {
		source := domain(e.URL)
		if source == "" {
			source = str(e.FeedName, "")
		}
		read := ""
		if e.ReadAt == nil {
			read = "*"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, read, relativeDay(e.PublishedAt), str(e.Interest, "-"), signalMark(e),
			truncate(source, 24), truncate(str(e.Title, "(untitled)"), 70))
	}
	return tw.Flush()
}

func writeEntryDetail(w io.Writer, e database.Entry) {
	fmt.Fprintf(w, "#%d %s\n", e.ID, str(e.Title, "(untitled)"))
	fmt.Fprintf(w, "  Feed:      %s\n", str(e.FeedName, "-"))
	if e.Author != nil && *e.Author != "" {
		fmt.Fprintf(w, "  Author:    %s\n", *e.Author)
	}
	fmt.Fprintf(w, "  URL:       %s\n", str(e.URL, "-"))
	if e.PublishedAt != nil {
		fmt.Fprintf(w, "  Published: %s\n", e.PublishedAt.UTC().Format(time.RFC1123))
	}
	fmt.Fprintf(w, "  Status:    %s\n", signalMark(e))
	fmt.Fprintf(w, "  Interest:  %s\n", str(e.Interest, "None"))
	if e.Reasoning != nil && *e.Reasoning != "" {
		fmt.Fprintln(w, "  Reasoning:")
		for _, line := range strings.Split(*e.Reasoning, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
