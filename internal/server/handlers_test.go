package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wiresum/internal/app"
	"wiresum/internal/config"
	"wiresum/internal/database"
	"wiresum/internal/feed"
)

type fakeOracle struct {
	reply string
	calls atomic.Int32
}

func (o *fakeOracle) Complete(_ context.Context, _, _, _ string) (string, error) {
	o.calls.Add(1)
	return o.reply, nil
}

type fakeSource struct {
	entries []database.Entry
	err     error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Fetch(context.Context, time.Time) ([]database.Entry, error) {
	return s.entries, s.err
}

type testServer struct {
	server *Server
	app    *app.App
	oracle *fakeOracle
}

func newTestServer(t *testing.T, cfg Config, sources ...feed.Source) *testServer {
	t.Helper()
	oracle := &fakeOracle{reply: `{"interest": "ai", "is_signal": true, "reasoning": "• New model release"}`}
	if len(sources) == 0 {
		sources = []feed.Source{&fakeSource{}}
	}
	a, err := app.New(config.Config{
		DBPath:        filepath.Join(t.TempDir(), "wiresum.db"),
		ClassifyBatch: 10,
		ClassifyEvery: time.Minute,
		HTTPTimeout:   5 * time.Second,
	}, zerolog.New(io.Discard), app.WithOracle(oracle), app.WithSources(sources...))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Logf("Warning: error closing app: %v", err)
		}
	})
	return &testServer{server: NewServer(a, cfg), app: a, oracle: oracle}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v; body: %s", err, rr.Body.String())
	}
	return v
}

func sp(s string) *string { return &s }

// seed stores an entry published an hour ago and optionally classifies it.
func (ts *testServer) seed(t *testing.T, externalID string, interest *string, signal *bool) int64 {
	t.Helper()
	ctx := context.Background()
	published := time.Now().UTC().Add(-time.Hour)
	id, err := ts.app.DB.UpsertEntry(ctx, database.Entry{
		ExternalID:  externalID,
		FeedName:    sp("Test Feed"),
		Title:       sp("Title " + externalID),
		URL:         sp("https://example.com/" + externalID),
		Content:     sp("Body of " + externalID),
		PublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if signal != nil {
		if err := ts.app.DB.SetClassification(ctx, id, interest, *signal, "• seeded"); err != nil {
			t.Fatalf("SetClassification: %v", err)
		}
	}
	return id
}

var (
	yes = func() *bool { b := true; return &b }()
	no  = func() *bool { b := false; return &b }()
)

func TestHandleHealthz(t *testing.T) {
	ts := newTestServer(t, Config{})
	rr := ts.do(t, "GET", "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rr.Code)
	}
	got := decode[StatusResponse](t, rr)
	if got.Status != "ok" || got.Version != app.Version {
		t.Errorf("health = %+v", got)
	}
}

func TestHandleEntries(t *testing.T) {
	ts := newTestServer(t, Config{})
	signalID := ts.seed(t, "a", sp("ai"), yes)
	ts.seed(t, "b", nil, no)
	pendingID := ts.seed(t, "c", nil, nil)

	t.Run("filters", func(t *testing.T) {
		rr := ts.do(t, "GET", "/entries?processed=true&is_signal=true", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		entries := decode[[]database.Entry](t, rr)
		if len(entries) != 1 || entries[0].ID != signalID {
			t.Errorf("got %d entries, want only %d", len(entries), signalID)
		}

		entries = decode[[]database.Entry](t, ts.do(t, "GET", "/entries?processed=false", nil))
		if len(entries) != 1 || entries[0].ID != pendingID {
			t.Errorf("unprocessed = %+v", entries)
		}
	})

	t.Run("empty result is an array", func(t *testing.T) {
		rr := ts.do(t, "GET", "/entries?interest=nope", nil)
		if strings.TrimSpace(rr.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rr.Body.String())
		}
	})

	t.Run("bad query values", func(t *testing.T) {
		for _, target := range []string{"/entries?limit=abc", "/entries?processed=maybe", "/entries?date=yesterday"} {
			if rr := ts.do(t, "GET", target, nil); rr.Code != http.StatusBadRequest {
				t.Errorf("GET %s status = %d, want 400", target, rr.Code)
			}
		}
	})

	t.Run("get", func(t *testing.T) {
		rr := ts.do(t, "GET", "/entries/"+itoa(signalID), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if e := decode[database.Entry](t, rr); e.ExternalID != "a" {
			t.Errorf("external_id = %q", e.ExternalID)
		}
		if rr := ts.do(t, "GET", "/entries/9999", nil); rr.Code != http.StatusNotFound {
			t.Errorf("missing entry status = %d, want 404", rr.Code)
		}
		if rr := ts.do(t, "GET", "/entries/abc", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("bad id status = %d, want 400", rr.Code)
		}
	})

	t.Run("mark read", func(t *testing.T) {
		rr := ts.do(t, "POST", "/entries/"+itoa(signalID)+"/read", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		e, err := ts.app.DB.GetEntry(context.Background(), signalID)
		if err != nil || e.ReadAt == nil {
			t.Errorf("read_at not set: %+v, %v", e, err)
		}
		if rr := ts.do(t, "POST", "/entries/9999/read", nil); rr.Code != http.StatusNotFound {
			t.Errorf("missing entry status = %d, want 404", rr.Code)
		}
	})

	t.Run("reprocess", func(t *testing.T) {
		rr := ts.do(t, "POST", "/entries/"+itoa(pendingID)+"/reprocess", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
		}
		e := decode[database.Entry](t, rr)
		if e.ProcessedAt == nil || e.Interest == nil || *e.Interest != "ai" || e.IsSignal == nil || !*e.IsSignal {
			t.Errorf("reprocessed entry = %+v", e)
		}
		if rr := ts.do(t, "POST", "/entries/9999/reprocess", nil); rr.Code != http.StatusNotFound {
			t.Errorf("missing entry status = %d, want 404", rr.Code)
		}
	})
}

func TestHandleRequeue(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.seed(t, "a", sp("ai"), yes)
	ts.seed(t, "b", nil, no)

	if rr := ts.do(t, "POST", "/entries/requeue?since_hours=0", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("since_hours=0 status = %d, want 400", rr.Code)
	}

	rr := ts.do(t, "POST", "/entries/requeue", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decode[RequeueResponse](t, rr); got.Requeued != 2 {
		t.Errorf("requeued = %d, want 2", got.Requeued)
	}
	processed := decode[[]database.Entry](t, ts.do(t, "GET", "/entries?processed=true", nil))
	if len(processed) != 0 {
		t.Errorf("%d entries still processed after requeue", len(processed))
	}
}

func TestHandleDigest(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.seed(t, "ai-1", sp("ai"), yes)
	ts.seed(t, "ai-2", sp("ai"), yes)
	ts.seed(t, "dev-filtered", sp("dev"), no)
	ts.seed(t, "unmatched", nil, yes)
	ts.seed(t, "orphan", sp("retired-key"), yes)
	ts.seed(t, "pending", nil, nil)

	groups := decode[[]DigestGroup](t, ts.do(t, "GET", "/digest", nil))
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(groups), groups)
	}
	if groups[0].InterestKey == nil || *groups[0].InterestKey != "ai" || groups[0].Count != 2 || groups[0].InterestLabel != "AI" {
		t.Errorf("first group = %+v", groups[0])
	}
	other := groups[1]
	if other.InterestKey != nil || other.InterestLabel != "Other" || other.Count != 2 {
		t.Errorf("other group = %+v", other)
	}

	t.Run("include_all adds filtered entries", func(t *testing.T) {
		groups := decode[[]DigestGroup](t, ts.do(t, "GET", "/digest?include_all=true", nil))
		var labels []string
		for _, g := range groups {
			labels = append(labels, g.InterestLabel)
		}
		if strings.Join(labels, ",") != "AI,Dev,Other" {
			t.Errorf("labels = %v", labels)
		}
	})

	t.Run("limit per interest", func(t *testing.T) {
		groups := decode[[]DigestGroup](t, ts.do(t, "GET", "/digest?limit_per_interest=1", nil))
		for _, g := range groups {
			if g.Count != 1 || len(g.Entries) != 1 {
				t.Errorf("group %s has %d entries, want 1", g.InterestLabel, len(g.Entries))
			}
		}
	})

	t.Run("date outside window", func(t *testing.T) {
		rr := ts.do(t, "GET", "/digest?date=2001-01-01", nil)
		if strings.TrimSpace(rr.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", rr.Body.String())
		}
	})
}

func TestHandleStats(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.seed(t, "a", sp("ai"), yes)
	ts.seed(t, "b", nil, nil)

	stats := decode[database.Stats](t, ts.do(t, "GET", "/stats?since_hours=24", nil))
	if stats.TotalEntries != 2 || stats.Unprocessed != 1 || stats.Signal != 1 || stats.ByInterest["ai"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleConfig(t *testing.T) {
	ts := newTestServer(t, Config{})

	cfg := decode[ConfigResponse](t, ts.do(t, "GET", "/config", nil))
	if cfg.Model != database.DefaultModel || cfg.SyncInterval != 15 || cfg.ProcessAfter == "" {
		t.Errorf("config = %+v", cfg)
	}

	rr := ts.do(t, "PUT", "/config", map[string]any{"key": "sync_interval", "value": 30})
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT sync_interval status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := decode[ConfigUpdateResponse](t, rr); got.Value != "30" {
		t.Errorf("stored value = %q", got.Value)
	}
	if every := ts.app.Scheduler.SyncEvery(); every != 30*time.Minute {
		t.Errorf("scheduler interval = %v, want 30m", every)
	}

	rr = ts.do(t, "PUT", "/config", map[string]any{"key": "model", "value": "  gpt-test  "})
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT model status = %d", rr.Code)
	}
	if cfg := decode[ConfigResponse](t, ts.do(t, "GET", "/config", nil)); cfg.Model != "gpt-test" {
		t.Errorf("model = %q", cfg.Model)
	}

	bad := []map[string]any{
		{"key": "user_context", "value": "x"},
		{"key": "sync_interval", "value": "-5"},
		{"key": "model", "value": nil},
	}
	for _, body := range bad {
		if rr := ts.do(t, "PUT", "/config", body); rr.Code != http.StatusBadRequest {
			t.Errorf("PUT %v status = %d, want 400", body, rr.Code)
		}
	}
}

func TestHandleInterests(t *testing.T) {
	ts := newTestServer(t, Config{})

	interests := decode[[]database.Interest](t, ts.do(t, "GET", "/interests", nil))
	if len(interests) == 0 || interests[0].Key != "ai" {
		t.Fatalf("seeded interests = %+v", interests)
	}

	rr := ts.do(t, "POST", "/interests", map[string]any{"key": " rust ", "label": "Rust", "description": "Rust language news"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	if in := decode[database.Interest](t, rr); in.Key != "rust" {
		t.Errorf("created key = %q", in.Key)
	}
	if rr := ts.do(t, "POST", "/interests", map[string]any{"key": "rust", "label": "Again"}); rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rr.Code)
	}
	if rr := ts.do(t, "POST", "/interests", map[string]any{"key": "go"}); rr.Code != http.StatusBadRequest {
		t.Errorf("missing label status = %d, want 400", rr.Code)
	}

	rr = ts.do(t, "PUT", "/interests/rust", map[string]any{"label": "Rust Lang"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d", rr.Code)
	}
	in := decode[database.Interest](t, rr)
	if in.Label != "Rust Lang" || in.Description == nil || *in.Description != "Rust language news" {
		t.Errorf("updated = %+v", in)
	}
	if rr := ts.do(t, "PUT", "/interests/missing", map[string]any{"label": "X"}); rr.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", rr.Code)
	}

	if rr := ts.do(t, "DELETE", "/interests/rust", nil); rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
	if rr := ts.do(t, "DELETE", "/interests/rust", nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestHandleSync(t *testing.T) {
	published := time.Now().UTC().Add(-time.Hour)
	good := &fakeSource{entries: []database.Entry{
		{ExternalID: "1", Title: sp("One"), PublishedAt: &published},
		{ExternalID: "2", Title: sp("Two"), PublishedAt: &published},
	}}
	broken := &fakeSource{err: errors.New("upstream down")}

	t.Run("ok", func(t *testing.T) {
		ts := newTestServer(t, Config{}, good)
		rr := ts.do(t, "POST", "/sync", nil)
		got := decode[SyncResponse](t, rr)
		if rr.Code != http.StatusOK || got.Status != "ok" || got.Synced != 2 {
			t.Errorf("sync = %d %+v", rr.Code, got)
		}
	})

	t.Run("partial", func(t *testing.T) {
		ts := newTestServer(t, Config{}, good, broken)
		got := decode[SyncResponse](t, ts.do(t, "POST", "/sync", nil))
		if got.Status != "partial" || got.Synced != 2 || !strings.Contains(got.Error, "upstream down") {
			t.Errorf("sync = %+v", got)
		}
	})

	t.Run("failed", func(t *testing.T) {
		ts := newTestServer(t, Config{}, broken)
		if rr := ts.do(t, "POST", "/sync", nil); rr.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rr.Code)
		}
	})
}

func TestHandleClassify(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.seed(t, "a", nil, nil)
	ts.seed(t, "b", nil, nil)
	ts.seed(t, "c", nil, nil)

	got := decode[ClassifyResponse](t, ts.do(t, "POST", "/classify?limit=2", nil))
	if got.Processed != 2 || ts.oracle.calls.Load() != 2 {
		t.Errorf("processed = %d, oracle calls = %d", got.Processed, ts.oracle.calls.Load())
	}
	got = decode[ClassifyResponse](t, ts.do(t, "POST", "/classify", nil))
	if got.Processed != 1 {
		t.Errorf("second batch processed = %d, want 1", got.Processed)
	}
}

func TestHandleRSS(t *testing.T) {
	ts := newTestServer(t, Config{ServerURL: "https://wiresum.example.com/"})
	ts.seed(t, "a", sp("ai"), yes)
	ts.seed(t, "b", nil, no)

	rr := ts.do(t, "GET", "/feed.xml", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"<title>Title a</title>", "<category>AI</category>", `href="https://wiresum.example.com/feed.xml"`} {
		if !strings.Contains(body, want) {
			t.Errorf("feed missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Title b") {
		t.Error("filtered entry published in feed")
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, Config{})
	rr := ts.do(t, "GET", "/nope", nil)
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), `"error"`) {
		t.Errorf("GET /nope = %d %s", rr.Code, rr.Body.String())
	}
	if rr := ts.do(t, "DELETE", "/stats", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /stats = %d, want 405", rr.Code)
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
