// Package client talks to a running wiresum server over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wiresum/internal/database"
)

// DefaultTimeout covers ordinary calls. Sync and classify run inside the
// request, so they get LongTimeout.
const (
	DefaultTimeout = 30 * time.Second
	LongTimeout    = 5 * time.Minute
)

// APIError is a non-2xx reply. Message holds the server's "error" field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// New builds a client for baseURL. token is sent as a bearer credential
// when non-empty.
func New(baseURL, token string) *Client {
	return &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type DigestGroup struct {
	InterestKey   *string          `json:"interest_key"`
	InterestLabel string           `json:"interest_label"`
	Count         int              `json:"count"`
	Entries       []database.Entry `json:"entries"`
}

type Settings struct {
	ClassificationPrompt string `json:"classification_prompt"`
	Model                string `json:"model"`
	SyncInterval         int    `json:"sync_interval"`
	ProcessAfter         string `json:"process_after"`
	UserContext          string `json:"user_context"`
}

type SyncResult struct {
	Status string `json:"status"`
	Synced int    `json:"synced"`
	Error  string `json:"error,omitempty"`
}

// EntryQuery mirrors the /entries query parameters. Zero values are omitted.
type EntryQuery struct {
	Processed  *bool
	Interest   string
	IsSignal   *bool
	SinceHours int
	Date       string
	Limit      int
	Offset     int
}

func (q EntryQuery) values() url.Values {
	v := url.Values{}
	if q.Processed != nil {
		v.Set("processed", strconv.FormatBool(*q.Processed))
	}
	if q.Interest != "" {
		v.Set("interest", q.Interest)
	}
	if q.IsSignal != nil {
		v.Set("is_signal", strconv.FormatBool(*q.IsSignal))
	}
	if q.SinceHours > 0 {
		v.Set("since_hours", strconv.Itoa(q.SinceHours))
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// DigestQuery mirrors the /digest query parameters.
type DigestQuery struct {
	LimitPerInterest int
	SinceHours       int
	Date             string
	IncludeAll       bool
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/", nil, nil, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Entries(ctx context.Context, q EntryQuery) ([]database.Entry, error) {
	var out []database.Entry
	err := c.do(ctx, http.MethodGet, "/entries", q.values(), nil, &out, DefaultTimeout)
	return out, err
}

func (c *Client) Entry(ctx context.Context, id int64) (*database.Entry, error) {
	var out database.Entry
	if err := c.do(ctx, http.MethodGet, entryPath(id, ""), nil, nil, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reprocess(ctx context.Context, id int64) (*database.Entry, error) {
	var out database.Entry
	if err := c.do(ctx, http.MethodPost, entryPath(id, "/reprocess"), nil, nil, &out, LongTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, entryPath(id, "/read"), nil, nil, nil, DefaultTimeout)
}

// Requeue clears classification for entries from the last sinceHours hours.
func (c *Client) Requeue(ctx context.Context, sinceHours int) (int, error) {
	var out struct {
		Requeued int `json:"requeued"`
	}
	params := url.Values{"since_hours": {strconv.Itoa(sinceHours)}}
	err := c.do(ctx, http.MethodPost, "/entries/requeue", params, nil, &out, DefaultTimeout)
	return out.Requeued, err
}

func (c *Client) Digest(ctx context.Context, q DigestQuery) ([]DigestGroup, error) {
	v := url.Values{}
	if q.LimitPerInterest > 0 {
		v.Set("limit_per_interest", strconv.Itoa(q.LimitPerInterest))
	}
	if q.SinceHours > 0 {
		v.Set("since_hours", strconv.Itoa(q.SinceHours))
	}
	if q.Date != "" {
		v.Set("date", q.Date)
	}
	if q.IncludeAll {
		v.Set("include_all", "true")
	}
	var out []DigestGroup
	err := c.do(ctx, http.MethodGet, "/digest", v, nil, &out, DefaultTimeout)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (*database.Stats, error) {
	var out database.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, nil, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	var out SyncResult
	if err := c.do(ctx, http.MethodPost, "/sync", nil, nil, &out, LongTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// Classify runs one batch. A non-positive limit lets the server choose.
func (c *Client) Classify(ctx context.Context, limit int) (int, error) {
	var params url.Values
	if limit > 0 {
		params = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out struct {
		Processed int `json:"processed"`
	}
	err := c.do(ctx, http.MethodPost, "/classify", params, nil, &out, LongTimeout)
	return out.Processed, err
}

func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodGet, "/config", nil, nil, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetSetting writes one key and returns the value as the server stored it.
func (c *Client) SetSetting(ctx context.Context, key, value string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	body := map[string]string{"key": key, "value": value}
	err := c.do(ctx, http.MethodPut, "/config", nil, body, &out, DefaultTimeout)
	return out.Value, err
}

func (c *Client) Interests(ctx context.Context) ([]database.Interest, error) {
	var out []database.Interest
	err := c.do(ctx, http.MethodGet, "/interests", nil, nil, &out, DefaultTimeout)
	return out, err
}

func (c *Client) CreateInterest(ctx context.Context, key, label string, description *string) (*database.Interest, error) {
	body := map[string]any{"key": key, "label": label}
	if description != nil {
		body["description"] = *description
	}
	var out database.Interest
	if err := c.do(ctx, http.MethodPost, "/interests", nil, body, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateInterest changes the non-nil fields.
func (c *Client) UpdateInterest(ctx context.Context, key string, label, description *string) (*database.Interest, error) {
	body := map[string]any{}
	if label != nil {
		body["label"] = *label
	}
	if description != nil {
		body["description"] = *description
	}
	var out database.Interest
	if err := c.do(ctx, http.MethodPut, "/interests/"+url.PathEscape(key), nil, body, &out, DefaultTimeout); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteInterest(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/interests/"+url.PathEscape(key), nil, nil, nil, DefaultTimeout)
}

func entryPath(id int64, suffix string) string {
	return "/entries/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
