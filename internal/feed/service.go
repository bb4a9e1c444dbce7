// internal/feed/service.go
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wiresum/internal/metrics"
)

// Syncer pulls entries from every source into the store.
type Syncer struct {
	store   Store
	sources []Source
	logger  zerolog.Logger
}

// NewSyncer returns a syncer over sources, queried in order.
func NewSyncer(store Store, logger zerolog.Logger, sources ...Source) *Syncer {
	return &Syncer{
		store:   store,
		sources: sources,
		logger:  logger.With().Str("component", "sync").Logger(),
	}
}

// Sources lists the configured source names.
func (s *Syncer) Sources() []string {
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name()
	}
	return names
}

// Sync fetches entries since the process_after watermark and upserts them.
// It returns the number of entries upserted. Source failures are joined into
// the returned error after the remaining sources have been stored.
func (s *Syncer) Sync(ctx context.Context) (count int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSync(count, err) }()

	since, err := s.store.ProcessAfter(ctx)
	if err != nil {
		return 0, fmt.Errorf("error reading watermark: %w", err)
	}

	var errs []error
	for _, src := range s.sources {
		log := s.logger.With().Str("source", src.Name()).Logger()
		entries, ferr := src.Fetch(ctx, since)
		if ferr != nil {
			log.Error().Err(ferr).Msg("source fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), ferr))
			continue
		}

		stored := 0
		for _, e := range entries {
			if e.FeedName == nil || *e.FeedName == "" {
				name := UnknownFeed
				e.FeedName = &name
			}
			if _, uerr := s.store.UpsertEntry(ctx, e); uerr != nil {
				log.Error().Err(uerr).Str("external_id", e.ExternalID).Msg("error storing entry")
				continue
			}
			stored++
		}
		log.Debug().Int("fetched", len(entries)).Int("stored", stored).Msg("source synced")
		count += stored
	}

	s.logger.Info().Int("synced", count).Dur("took", time.Since(start)).Msg("sync finished")
	return count, errors.Join(errs...)
}
