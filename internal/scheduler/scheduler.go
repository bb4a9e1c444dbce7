// Package scheduler runs ingestion and classification in the background.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Syncer ingests new entries.
type Syncer interface {
	Sync(ctx context.Context) (int, error)
}

// Classifier classifies a batch of pending entries.
type Classifier interface {
	ProcessUnclassified(ctx context.Context, limit int) (int, error)
}

// IntervalSource reports the stored sync interval.
type IntervalSource interface {
	SyncInterval(ctx context.Context) (time.Duration, error)
}

// Options tunes the background jobs. Zero values select the defaults.
type Options struct {
	ClassifyEvery   time.Duration
	ClassifyBatch   int
	SyncTimeout     time.Duration
	ClassifyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClassifyEvery <= 0 {
		o.ClassifyEvery = time.Minute
	}
	if o.ClassifyBatch <= 0 {
		o.ClassifyBatch = 10
	}
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = 10 * time.Minute
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = 10 * time.Minute
	}
	return o
}

// Scheduler owns the sync and classify cron entries.
type Scheduler struct {
	cron       *cron.Cron
	syncer     Syncer
	classifier Classifier
	intervals  IntervalSource
	opts       Options
	logger     zerolog.Logger

	mu        sync.Mutex
	syncID    cron.EntryID
	syncEvery time.Duration
	started   bool
	initial   sync.WaitGroup
}

// New returns a stopped scheduler.
func New(syncer Syncer, classifier Classifier, intervals IntervalSource, opts Options, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		syncer:     syncer,
		classifier: classifier,
		intervals:  intervals,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// Start registers both jobs, starts the cron loop and kicks off an initial
// sync without waiting for it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	every, err := s.intervals.SyncInterval(ctx)
	if err != nil {
		return fmt.Errorf("error reading sync interval: %w", err)
	}
	if err := s.scheduleSync(every); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(everySpec(s.opts.ClassifyEvery), s.classifyTick); err != nil {
		return fmt.Errorf("cron.AddFunc classify: %w", err)
	}

	s.cron.Start()
	s.started = true
	s.logger.Info().
		Dur("sync_every", every).
		Dur("classify_every", s.opts.ClassifyEvery).
		Int("classify_batch", s.opts.ClassifyBatch).
		Msg("scheduler started")

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.syncTick()
	}()
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// RunSync runs one ingestion pass synchronously.
func (s *Scheduler) RunSync(ctx context.Context) (int, error) {
	return s.syncer.Sync(ctx)
}

// RunClassify classifies up to limit entries synchronously. A non-positive
// limit uses the configured batch size.
func (s *Scheduler) RunClassify(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.opts.ClassifyBatch
	}
	return s.classifier.ProcessUnclassified(ctx, limit)
}

// SetSyncInterval replaces the live sync entry when the interval changed.
func (s *Scheduler) SetSyncInterval(every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("sync interval must be positive, got %v", every)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if every == s.syncEvery && s.syncID != 0 {
		return nil
	}
	previous := s.syncEvery
	if err := s.scheduleSync(every); err != nil {
		return err
	}
	s.logger.Info().Dur("from", previous).Dur("to", every).Msg("sync interval changed")
	return nil
}

// SyncEvery reports the interval of the live sync entry.
func (s *Scheduler) SyncEvery() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncEvery
}

// scheduleSync must be called with mu held.
func (s *Scheduler) scheduleSync(every time.Duration) error {
	id, err := s.cron.AddFunc(everySpec(every), s.syncTick)
	if err != nil {
		return fmt.Errorf("cron.AddFunc sync: %w", err)
	}
	if s.syncID != 0 {
		s.cron.Remove(s.syncID)
	}
	s.syncID = id
	s.syncEvery = every
	return nil
}

func (s *Scheduler) syncTick() {
	runID := uuid.NewString()
	log := s.logger.With().Str("job", "sync").Str("run_id", runID).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SyncTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.syncer.Sync(ctx)
	if err != nil {
		log.Error().Err(err).Int("synced", n).Msg("sync job failed")
	} else if n > 0 {
		log.Info().Int("synced", n).Dur("took", time.Since(start)).Msg("sync job finished")
	}

	// Pick up interval edits made outside SetSyncInterval.
	every, err := s.intervals.SyncInterval(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("error re-reading sync interval")
		return
	}
	if err := s.SetSyncInterval(every); err != nil {
		log.Error().Err(err).Msg("error rescheduling sync")
	}
}

func (s *Scheduler) classifyTick() {
	runID := uuid.NewString()
	log := s.logger.With().Str("job", "classify").Str("run_id", runID).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ClassifyTimeout)
	defer cancel()

	n, err := s.classifier.ProcessUnclassified(ctx, s.opts.ClassifyBatch)
	if err != nil {
		log.Error().Err(err).Msg("classify job failed")
		return
	}
	if n > 0 {
		log.Info().Int("classified", n).Msg("classify job finished")
	}
}

func everySpec(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
