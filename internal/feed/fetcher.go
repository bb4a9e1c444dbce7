// internal/feed/fetcher.go
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"wiresum/internal/database"
	"wiresum/internal/security/netutil"
)

const maxFeedBytes = 5 << 20

// RSS reads a fixed list of RSS, Atom or JSON feeds directly.
type RSS struct {
	urls   []string
	parser *gofeed.Parser
	client *http.Client
	logger zerolog.Logger
	cache  *sync.Map // url -> cacheEntry
}

type cacheEntry struct {
	lastModified string
	etag         string
}

// NewRSS returns a source for urls. Each URL must pass ValidateFeedURLs.
func NewRSS(urls []string, guard netutil.Guard, timeout time.Duration, logger zerolog.Logger) (*RSS, error) {
	if err := ValidateFeedURLs(urls, guard); err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           guard.DialContext(10 * time.Second),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &RSS{
		urls:   urls,
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: timeout, Transport: transport, CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			_, err := guard.CheckURL(req.URL.String())
			return err
		}},
		logger: logger.With().Str("component", "rss").Logger(),
		cache:  &sync.Map{},
	}, nil
}

// Name identifies the source in logs.
func (r *RSS) Name() string { return "rss" }

// Fetch reads every configured feed. A failing feed is logged and skipped.
func (r *RSS) Fetch(ctx context.Context, since time.Time) ([]database.Entry, error) {
	var entries []database.Entry
	for _, u := range r.urls {
		got, err := r.fetchFeed(ctx, u, since)
		if err != nil {
			r.logger.Warn().Err(err).Str("url", u).Msg("error fetching feed")
			continue
		}
		r.logger.Debug().Str("url", u).Int("entries", len(got)).Msg("fetched feed")
		entries = append(entries, got...)
	}
	return entries, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string, since time.Time) ([]database.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "wiresum/2.0")

	cached, hasCache := r.cache.Load(feedURL)
	if hasCache {
		c := cached.(cacheEntry)
		if c.lastModified != "" {
			req.Header.Set("If-Modified-Since", c.lastModified)
		}
		if c.etag != "" {
			req.Header.Set("If-None-Match", c.etag)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	parsed, err := r.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	if parsed == nil {
		return nil, fmt.Errorf("error parsing feed: empty document")
	}

	r.cache.Store(feedURL, cacheEntry{
		lastModified: resp.Header.Get("Last-Modified"),
		etag:         resp.Header.Get("ETag"),
	})

	entries := make([]database.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		e, ok := itemEntry(feedURL, parsed, item)
		if !ok {
			continue
		}
		if !since.IsZero() && e.PublishedAt != nil && e.PublishedAt.Before(since) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// itemEntry maps a feed item to an entry. Items without a date keep a nil
// PublishedAt so the store falls back to the first time it saw them.
func itemEntry(feedURL string, f *gofeed.Feed, item *gofeed.Item) (database.Entry, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	if id == "" {
		return database.Entry{}, false
	}

	pubDate := item.PublishedParsed
	if pubDate == nil {
		pubDate = item.UpdatedParsed
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	return database.Entry{
		ExternalID:  externalID(feedURL, id),
		FeedName:    optional(strings.TrimSpace(f.Title)),
		Title:       optional(item.Title),
		URL:         optional(item.Link),
		Author:      optional(author),
		Content:     optional(body),
		PublishedAt: pubDate,
	}, true
}

// externalID scopes an item id to its feed so two feeds reusing a GUID such
// as "1" stay separate rows.
func externalID(feedURL, itemID string) string {
	return "rss:" + feedURL + "#" + itemID
}
