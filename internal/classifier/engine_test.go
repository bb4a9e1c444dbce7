package classifier

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wiresum/internal/database"
)

type oracleCall struct {
	model, system, user string
}

// scriptedOracle answers with replies keyed by a substring of the user text.
type scriptedOracle struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []oracleCall
}

func (o *scriptedOracle) Complete(_ context.Context, model, system, user string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, oracleCall{model, system, user})
	for key, err := range o.errs {
		if strings.Contains(user, key) {
			return "", err
		}
	}
	for key, reply := range o.replies {
		if strings.Contains(user, key) {
			return reply, nil
		}
	}
	return `{"interest": null, "is_signal": false, "reasoning": "default"}`, nil
}

type stubEnricher struct {
	store   *database.DB
	content string
	seen    []int64
}

func (s *stubEnricher) Enrich(ctx context.Context, e database.Entry) database.Entry {
	s.seen = append(s.seen, e.ID)
	if e.URL == nil || e.EnrichedAt != nil {
		return e
	}
	if err := s.store.UpdateEntryContent(ctx, e.ID, s.content); err != nil {
		return e
	}
	e.Content = &s.content
	return e
}

func newTestStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), database.DefaultConfig())
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.SetConfig(context.Background(), "process_after", ""); err != nil {
		t.Fatal(err)
	}
	return db
}

func addEntry(t *testing.T, db *database.DB, externalID, title string) database.Entry {
	t.Helper()
	ctx := context.Background()
	pub := time.Now().Add(-time.Hour)
	id, err := db.UpsertEntry(ctx, database.Entry{ExternalID: externalID, Title: &title, PublishedAt: &pub})
	if err != nil {
		t.Fatalf("UpsertEntry() error = %v", err)
	}
	e, err := db.GetEntry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return *e
}

func quietLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestClassifyAndStore_PersistsDecision(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	if _, err := db.SetConfig(ctx, "model", "test-model"); err != nil {
		t.Fatal(err)
	}

	oracle := &scriptedOracle{replies: map[string]string{
		"Big launch": "```json\n{\"interest\": \"ai\", \"is_signal\": true, \"reasoning\": [\"one\"]}\n```",
	}}
	engine := NewEngine(db, oracle, nil, quietLogger())

	entry := addEntry(t, db, "1", "Big launch")
	d, err := engine.ClassifyAndStore(ctx, entry)
	if err != nil {
		t.Fatalf("ClassifyAndStore() error = %v", err)
	}
	if d.Interest == nil || *d.Interest != "ai" || !d.IsSignal {
		t.Errorf("decision = %+v", d)
	}

	stored, _ := db.GetEntry(ctx, entry.ID)
	if stored.ProcessedAt == nil || *stored.Interest != "ai" || !*stored.IsSignal || *stored.Reasoning != "• one" {
		t.Errorf("stored = %+v", stored)
	}

	if len(oracle.calls) != 1 {
		t.Fatalf("oracle called %d times", len(oracle.calls))
	}
	call := oracle.calls[0]
	if call.model != "test-model" {
		t.Errorf("model = %q", call.model)
	}
	if !strings.Contains(call.system, "- ai: AI") || !strings.Contains(call.user, "Title: Big launch") {
		t.Errorf("unexpected prompt: system=%q user=%q", call.system[:60], call.user)
	}
}

func TestClassifyAndStore_FailuresArePersisted(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	oracle := &scriptedOracle{
		replies: map[string]string{"Refuse": "I cannot comply."},
		errs:    map[string]error{"Timeout": errors.New("deadline exceeded")},
	}
	engine := NewEngine(db, oracle, nil, quietLogger())

	refuse := addEntry(t, db, "r", "Refuse")
	timeout := addEntry(t, db, "t", "Timeout")

	for _, tc := range []struct {
		entry  database.Entry
		prefix string
	}{
		{refuse, ParseErrorPrefix},
		{timeout, ClassificationErrorPrefix},
	} {
		if _, err := engine.ClassifyAndStore(ctx, tc.entry); err != nil {
			t.Fatalf("ClassifyAndStore() error = %v", err)
		}
		stored, _ := db.GetEntry(ctx, tc.entry.ID)
		if stored.ProcessedAt == nil {
			t.Errorf("entry %s left unprocessed", tc.entry.ExternalID)
		}
		if stored.Interest != nil || stored.IsSignal == nil || *stored.IsSignal {
			t.Errorf("failed entry stored as %+v", stored)
		}
		if !strings.HasPrefix(*stored.Reasoning, tc.prefix) {
			t.Errorf("reasoning %q lacks marker %q", *stored.Reasoning, tc.prefix)
		}
	}

	pending, _ := db.UnprocessedEntries(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("failed entries are still pending: %d", len(pending))
	}
}

func TestProcessUnclassified_OldestFetchedFirstAndIsolated(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return clock })
	var ids []int64
	for i, title := range []string{"first Timeout", "second", "third"} {
		clock = clock.Add(time.Second)
		pub := clock.Add(time.Duration(-i) * time.Minute)
		id, err := db.UpsertEntry(ctx, database.Entry{ExternalID: title, Title: sp(title), PublishedAt: &pub})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	oracle := &scriptedOracle{errs: map[string]error{"Timeout": errors.New("boom")}}
	engine := NewEngine(db, oracle, nil, quietLogger())

	n, err := engine.ProcessUnclassified(ctx, 2)
	if err != nil {
		t.Fatalf("ProcessUnclassified() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("attempted = %d, want 2", n)
	}

	for i, id := range ids {
		e, _ := db.GetEntry(ctx, id)
		processed := e.ProcessedAt != nil
		if want := i < 2; processed != want {
			t.Errorf("entry %d processed = %v, want %v", i, processed, want)
		}
	}
	first, _ := db.GetEntry(ctx, ids[0])
	if !IsFailure(*first.Reasoning) {
		t.Errorf("first entry should carry failure marker, got %q", *first.Reasoning)
	}

	n, _ = engine.ProcessUnclassified(ctx, 10)
	if n != 1 {
		t.Errorf("second batch attempted %d, want 1", n)
	}
}

func TestReprocess(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	oracle := &scriptedOracle{}
	engine := NewEngine(db, oracle, nil, quietLogger())

	entry := addEntry(t, db, "x", "Anything")
	if err := db.SetClassification(ctx, entry.ID, sp("dev"), true, "• old"); err != nil {
		t.Fatal(err)
	}

	got, err := engine.Reprocess(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if got.Interest != nil || *got.IsSignal || *got.Reasoning != "• default" {
		t.Errorf("Reprocess() = %+v, want new outcome", got)
	}

	if _, err := engine.Reprocess(ctx, 12345); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Reprocess(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestClassify_EnrichesBeforeFormatting(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	oracle := &scriptedOracle{}
	enricher := &stubEnricher{store: db, content: "full article body"}
	engine := NewEngine(db, oracle, enricher, quietLogger())

	id, _ := db.UpsertEntry(ctx, database.Entry{ExternalID: "e", URL: sp("https://example.com/post"), Content: sp("teaser")})
	entry, _ := db.GetEntry(ctx, id)

	if _, err := engine.ClassifyAndStore(ctx, *entry); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(oracle.calls[0].user, "Content: full article body") {
		t.Errorf("oracle saw %q", oracle.calls[0].user)
	}
	stored, _ := db.GetEntry(ctx, id)
	if *stored.Content != "full article body" || stored.EnrichedAt == nil {
		t.Errorf("enriched content not persisted: %+v", stored)
	}

	if _, err := engine.Reprocess(ctx, id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(oracle.calls[1].user, "Content: full article body") {
		t.Errorf("reprocess did not reuse enriched content: %q", oracle.calls[1].user)
	}
}

func TestClassify_BrokenCustomPromptFallsBack(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	if _, err := db.SetConfig(ctx, "classification_prompt", "{{.Broken"); err != nil {
		t.Fatal(err)
	}
	oracle := &scriptedOracle{}
	engine := NewEngine(db, oracle, nil, quietLogger())

	if _, err := engine.Classify(ctx, addEntry(t, db, "p", "Prompt")); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !strings.HasPrefix(oracle.calls[0].system, "You are a smart assistant") {
		t.Errorf("built-in template not used: %q", oracle.calls[0].system[:40])
	}
}
