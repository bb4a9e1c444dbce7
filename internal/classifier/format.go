package classifier

import (
	"regexp"
	"strings"

	"wiresum/internal/database"
)

// MaxContentChars bounds the content sent to the oracle. Truncation happens
// before tag stripping so input size does not depend on markup density.
const MaxContentChars = 3000

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// FormatEntry renders an entry as the plain-text user message.
func FormatEntry(e database.Entry) string {
	var parts []string
	add := func(label string, v *string) {
		if v != nil && *v != "" {
			parts = append(parts, label+": "+*v)
		}
	}
	add("Feed", e.FeedName)
	add("Title", e.Title)
	add("URL", e.URL)
	add("Author", e.Author)
	if e.Content != nil && *e.Content != "" {
		parts = append(parts, "Content: "+cleanContent(*e.Content))
	}
	return strings.Join(parts, "\n")
}

func cleanContent(content string) string {
	if r := []rune(content); len(r) > MaxContentChars {
		content = string(r[:MaxContentChars])
	}
	content = tagPattern.ReplaceAllString(content, " ")
	content = whitespacePattern.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}
