// internal/feed/feedbin.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wiresum/internal/database"
)

// DefaultFeedbinURL is the Feedbin v2 API root.
const DefaultFeedbinURL = "https://api.feedbin.com/v2"

const feedbinPageSize = 100

// Feedbin reads entries from a Feedbin account.
type Feedbin struct {
	client   *http.Client
	baseURL  string
	email    string
	password string
}

// NewFeedbin returns a Feedbin source. Each request is bounded by timeout.
func NewFeedbin(email, password, baseURL string, timeout time.Duration) *Feedbin {
	if baseURL == "" {
		baseURL = DefaultFeedbinURL
	}
	return &Feedbin{
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
	}
}

type feedbinSubscription struct {
	FeedID int64  `json:"feed_id"`
	Title  string `json:"title"`
}

type feedbinEntry struct {
	ID        int64   `json:"id"`
	FeedID    int64   `json:"feed_id"`
	Title     *string `json:"title"`
	URL       *string `json:"url"`
	Author    *string `json:"author"`
	Content   *string `json:"content"`
	Published *string `json:"published"`
}

// Name identifies the source in logs.
func (f *Feedbin) Name() string { return "feedbin" }

// Subscriptions maps feed id to subscription title.
func (f *Feedbin) Subscriptions(ctx context.Context) (map[int64]string, error) {
	var subs []feedbinSubscription
	if _, err := f.get(ctx, "/subscriptions.json", nil, &subs); err != nil {
		return nil, fmt.Errorf("error fetching subscriptions: %w", err)
	}
	names := make(map[int64]string, len(subs))
	for _, s := range subs {
		names[s.FeedID] = s.Title
	}
	return names, nil
}

// Fetch pages through entries.json until an empty page or a 404.
func (f *Feedbin) Fetch(ctx context.Context, since time.Time) ([]database.Entry, error) {
	names, err := f.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var entries []database.Entry
	for page := 1; ; page++ {
		params := url.Values{
			"per_page": {strconv.Itoa(feedbinPageSize)},
			"page":     {strconv.Itoa(page)},
		}
		if !since.IsZero() {
			params.Set("since", since.UTC().Format(time.RFC3339))
		}

		var batch []feedbinEntry
		found, err := f.get(ctx, "/entries.json", params, &batch)
		if err != nil {
			return nil, fmt.Errorf("error fetching entries page %d: %w", page, err)
		}
		// Feedbin answers 404 past the last page when since is set.
		if !found || len(batch) == 0 {
			break
		}
		for _, raw := range batch {
			entries = append(entries, raw.toEntry(names))
		}
	}
	return entries, nil
}

func (raw feedbinEntry) toEntry(names map[int64]string) database.Entry {
	e := database.Entry{
		ExternalID: strconv.FormatInt(raw.ID, 10),
		Title:      raw.Title,
		URL:        raw.URL,
		Author:     raw.Author,
		Content:    raw.Content,
	}
	if name, ok := names[raw.FeedID]; ok && name != "" {
		e.FeedName = &name
	}
	if raw.Published != nil {
		if t, err := time.Parse(time.RFC3339, *raw.Published); err == nil {
			e.PublishedAt = &t
		} else if t, err := database.ParseTime(*raw.Published); err == nil {
			e.PublishedAt = &t
		}
	}
	return e
}

// get decodes a JSON response into out. A 404 reports found=false.
func (f *Feedbin) get(ctx context.Context, path string, params url.Values, out any) (bool, error) {
	endpoint := f.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("error creating request: %w", err)
	}
	req.SetBasicAuth(f.email, f.password)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("error decoding response: %w", err)
	}
	return true, nil
}
