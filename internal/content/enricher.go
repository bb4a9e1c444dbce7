// Package content fetches full article text for entries whose feed only
// carries a summary.
package content

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wiresum/internal/database"
	"wiresum/internal/metrics"
)

// Extractor returns readable text for a URL.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, url string) (string, error)
}

// ContentStore persists extracted text.
type ContentStore interface {
	UpdateEntryContent(ctx context.Context, id int64, content string) error
}

// Enricher upgrades entry content once, before classification. Extraction
// failures are logged and leave the entry untouched.
type Enricher struct {
	store     ContentStore
	extractor Extractor
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewEnricher returns an enricher. A nil extractor disables enrichment.
func NewEnricher(store ContentStore, extractor Extractor, timeout time.Duration, logger zerolog.Logger) *Enricher {
	return &Enricher{
		store:     store,
		extractor: extractor,
		timeout:   timeout,
		logger:    logger.With().Str("component", "enricher").Logger(),
	}
}

// Enabled reports whether an extractor is configured.
func (e *Enricher) Enabled() bool {
	return e != nil && e.extractor != nil
}

// Enrich returns entry with fetched content when extraction succeeds.
// Entries without a URL or already enriched are returned as is.
func (e *Enricher) Enrich(ctx context.Context, entry database.Entry) database.Entry {
	if !e.Enabled() || entry.URL == nil || *entry.URL == "" || entry.EnrichedAt != nil {
		return entry
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	log := e.logger.With().Int64("entry_id", entry.ID).Str("extractor", e.extractor.Name()).Logger()
	text, err := e.extractor.Extract(ctx, *entry.URL)
	if err != nil {
		metrics.Enrichments.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("url", *entry.URL).Msg("content extraction failed")
		return entry
	}
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.Enrichments.WithLabelValues("empty").Inc()
		log.Debug().Str("url", *entry.URL).Msg("extractor returned no text")
		return entry
	}

	// The fetched text is used for this classification even if saving it fails.
	entry.Content = &text
	if err := e.store.UpdateEntryContent(ctx, entry.ID, text); err != nil {
		metrics.Enrichments.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("error saving extracted content")
		return entry
	}
	metrics.Enrichments.WithLabelValues("success").Inc()
	log.Debug().Int("chars", len(text)).Msg("entry content enriched")

	now := time.Now().UTC()
	entry.EnrichedAt = &now
	return entry
}
