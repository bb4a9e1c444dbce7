package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wiresum/internal/config"
)

type nopOracle struct{}

func (nopOracle) Complete(context.Context, string, string, string) (string, error) {
	return `{"interest": null, "is_signal": false, "reasoning": "skip"}`, nil
}

func baseConfig(t *testing.T) config.Config {
	return config.Config{
		DBPath:        filepath.Join(t.TempDir(), "nested", "wiresum.db"),
		ClassifyBatch: 10,
		ClassifyEvery: time.Minute,
		HTTPTimeout:   time.Second,
	}
}

func TestNew_BuildsSourcesFromConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg.FeedbinEmail, cfg.FeedbinPassword = "me@example.com", "pw"
	cfg.FeedURLs = []string{"https://example.com/feed.xml"}

	a, err := New(cfg, zerolog.New(io.Discard), WithOracle(nopOracle{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	got := a.Syncer.Sources()
	if len(got) != 2 || got[0] != "feedbin" || got[1] != "rss" {
		t.Errorf("sources = %v", got)
	}
	if a.Enricher.Enabled() {
		t.Error("enrichment enabled without an extractor")
	}
}

func TestNew_Extractors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		enabled bool
	}{
		{name: "firecrawl", mutate: func(c *config.Config) { c.FirecrawlAPIKey = "fc-key" }, enabled: true},
		{name: "local", mutate: func(c *config.Config) { c.LocalExtract = true }, enabled: true},
		{name: "none", mutate: func(*config.Config) {}, enabled: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tt.mutate(&cfg)
			a, err := New(cfg, zerolog.New(io.Discard), WithOracle(nopOracle{}), WithSources())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Close()
			if a.Enricher.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", a.Enricher.Enabled(), tt.enabled)
			}
		})
	}
}

func TestNew_RejectsInvalidFeedURL(t *testing.T) {
	cfg := baseConfig(t)
	cfg.FeedURLs = []string{"ftp://example.com/feed"}
	if a, err := New(cfg, zerolog.New(io.Discard), WithOracle(nopOracle{})); err == nil {
		a.Close()
		t.Fatal("invalid feed URL accepted")
	}
}

func TestStartAndClose(t *testing.T) {
	a, err := New(baseConfig(t), zerolog.New(io.Discard), WithOracle(nopOracle{}), WithSources())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
