// Package classifier turns entries into classification decisions using a
// language model oracle.
package classifier

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wiresum/internal/database"
	"wiresum/internal/metrics"
)

// Oracle is the language model: system and user text in, raw text out.
type Oracle interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}

// Enricher replaces entry content with fetched article text when it can.
type Enricher interface {
	Enrich(ctx context.Context, entry database.Entry) database.Entry
}

// Store is the subset of the entry store the engine needs.
type Store interface {
	GetEntry(ctx context.Context, id int64) (*database.Entry, error)
	UnprocessedEntries(ctx context.Context, limit int) ([]database.Entry, error)
	SetClassification(ctx context.Context, id int64, interest *string, isSignal bool, reasoning string) error
	ClearClassification(ctx context.Context, id int64) error
	Interests(ctx context.Context) ([]database.Interest, error)
	ConfigValue(ctx context.Context, key, fallback string) (string, error)
}

// Engine classifies entries and persists the outcomes.
type Engine struct {
	store    Store
	oracle   Oracle
	enricher Enricher
	logger   zerolog.Logger
}

// NewEngine wires an engine. enricher may be nil.
func NewEngine(store Store, oracle Oracle, enricher Enricher, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		oracle:   oracle,
		enricher: enricher,
		logger:   logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify runs one entry through enrichment, the oracle and the parser.
// Errors cover everything before a reply is obtained; malformed replies are
// reported inside the Decision.
func (e *Engine) Classify(ctx context.Context, entry database.Entry) (Decision, error) {
	model, err := e.store.ConfigValue(ctx, "model", database.DefaultModel)
	if err != nil {
		return Decision{}, fmt.Errorf("load model: %w", err)
	}
	system, err := e.systemPrompt(ctx)
	if err != nil {
		return Decision{}, err
	}

	if e.enricher != nil {
		entry = e.enricher.Enrich(ctx, entry)
	}

	raw, err := e.oracle.Complete(ctx, model, system, FormatEntry(entry))
	if err != nil {
		return Decision{}, err
	}
	return ParseResponse(raw), nil
}

func (e *Engine) systemPrompt(ctx context.Context) (string, error) {
	interests, err := e.store.Interests(ctx)
	if err != nil {
		return "", fmt.Errorf("load interests: %w", err)
	}
	userContext, err := e.store.ConfigValue(ctx, "user_context", "")
	if err != nil {
		return "", fmt.Errorf("load user context: %w", err)
	}
	override, err := e.store.ConfigValue(ctx, "classification_prompt", "")
	if err != nil {
		return "", fmt.Errorf("load classification prompt: %w", err)
	}

	prompt, err := RenderPrompt(interests, userContext, override)
	if err != nil && override != "" {
		e.logger.Warn().Err(err).Msg("custom classification prompt unusable, using built-in template")
		return RenderPrompt(interests, userContext, "")
	}
	return prompt, err
}

// ClassifyAndStore classifies entry and always persists an outcome. Call or
// prompt failures are stored as a failed decision so the entry is not picked
// up again on every tick.
func (e *Engine) ClassifyAndStore(ctx context.Context, entry database.Entry) (Decision, error) {
	d, err := e.Classify(ctx, entry)
	if err != nil {
		e.logger.Warn().Err(err).Int64("entry_id", entry.ID).Msg("classification failed")
		d = failure(ClassificationErrorPrefix, err)
	}

	if err := e.store.SetClassification(ctx, entry.ID, d.Interest, d.IsSignal, d.Reasoning); err != nil {
		return d, fmt.Errorf("store classification for entry %d: %w", entry.ID, err)
	}

	metrics.Classifications.WithLabelValues(outcome(d)).Inc()
	if d.Failed() {
		e.logger.Warn().Int64("entry_id", entry.ID).Str("reasoning", d.Reasoning).Msg("stored failed classification")
		return d, nil
	}
	ev := e.logger.Debug().Int64("entry_id", entry.ID).Bool("is_signal", d.IsSignal)
	if d.Interest != nil {
		ev = ev.Str("interest", *d.Interest)
	}
	ev.Msg("entry classified")
	return d, nil
}

// ProcessUnclassified classifies up to limit pending entries, oldest fetched
// first, one at a time. It returns how many were attempted; per-entry
// failures are stored as outcomes and do not stop the batch.
func (e *Engine) ProcessUnclassified(ctx context.Context, limit int) (int, error) {
	entries, err := e.store.UnprocessedEntries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load unprocessed entries: %w", err)
	}

	for _, entry := range entries {
		if _, err := e.ClassifyAndStore(ctx, entry); err != nil {
			e.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("could not persist classification")
		}
	}
	return len(entries), nil
}

// Reprocess clears and reclassifies one entry synchronously and returns it
// as stored afterwards.
func (e *Engine) Reprocess(ctx context.Context, id int64) (*database.Entry, error) {
	entry, err := e.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.store.ClearClassification(ctx, id); err != nil {
		return nil, err
	}
	if _, err := e.ClassifyAndStore(ctx, *entry); err != nil {
		return nil, err
	}
	return e.store.GetEntry(ctx, id)
}

func outcome(d Decision) string {
	switch {
	case d.Failed():
		return metrics.OutcomeFailed
	case d.IsSignal:
		return metrics.OutcomeSignal
	default:
		return metrics.OutcomeFiltered
	}
}
