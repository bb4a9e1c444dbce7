// internal/server/handlers.go
package server

import (
	"context"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"wiresum/internal/database"
	"wiresum/internal/rss"
)

const (
	defaultDigestLimit = 10
	defaultDigestHours = 48
	defaultRequeueHrs  = 24
	feedItemLimit      = 50
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error().Err(err).Msg("health check failed: db ping error")
		s.respondJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "error", Version: s.config.Version})
		return
	}
	s.respondJSON(w, http.StatusOK, StatusResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{r: r}
	f := database.EntryFilter{
		Processed:  q.OptionalBool("processed"),
		Interest:   q.OptionalString("interest"),
		IsSignal:   q.OptionalBool("is_signal"),
		SinceHours: q.OptionalInt("since_hours"),
		Date:       q.OptionalString("date"),
		Limit:      q.Int("limit", 100),
		Offset:     q.Int("offset", 0),
	}
	if q.err != nil {
		s.respondStoreError(w, r, q.err)
		return
	}

	entries, err := s.db.QueryEntries(r.Context(), f)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	entry, err := s.db.GetEntry(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	entry, err := s.engine.Reprocess(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if err := s.db.MarkEntryRead(r.Context(), id); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{r: r}
	hours := q.Int("since_hours", defaultRequeueHrs)
	if q.err != nil {
		s.respondStoreError(w, r, q.err)
		return
	}
	n, err := s.db.RequeueEntries(r.Context(), hours)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.logger.Info().Int("requeued", n).Int("since_hours", hours).Msg("entries requeued")
	s.respondJSON(w, http.StatusOK, RequeueResponse{Status: "ok", Requeued: n})
}

// handleDigest groups processed entries by interest in taxonomy order, with
// unmatched entries last under "Other". Empty groups are omitted.
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{r: r}
	limit := q.Int("limit_per_interest", defaultDigestLimit)
	hours := q.Int("since_hours", defaultDigestHours)
	date := q.OptionalString("date")
	includeAll := q.Bool("include_all", false)
	if q.err != nil {
		s.respondStoreError(w, r, q.err)
		return
	}
	if limit <= 0 {
		limit = defaultDigestLimit
	}

	ctx := r.Context()
	interests, err := s.db.Interests(ctx)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}

	processed := true
	base := database.EntryFilter{Processed: &processed, Limit: limit}
	if !includeAll {
		signal := true
		base.IsSignal = &signal
	}
	if date != nil {
		base.Date = date
	} else {
		base.SinceHours = &hours
	}

	groups := []DigestGroup{}
	for _, in := range interests {
		f := base
		key := in.Key
		f.Interest = &key
		entries, err := s.db.QueryEntries(ctx, f)
		if err != nil {
			s.respondStoreError(w, r, err)
			return
		}
		if len(entries) > 0 {
			groups = append(groups, DigestGroup{InterestKey: &key, InterestLabel: in.Label, Count: len(entries), Entries: entries})
		}
	}

	other := base
	other.Unmatched = true
	entries, err := s.db.QueryEntries(ctx, other)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if len(entries) > 0 {
		groups = append(groups, DigestGroup{InterestLabel: "Other", Count: len(entries), Entries: entries})
	}
	s.respondJSON(w, http.StatusOK, groups)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{r: r}
	hours := q.OptionalInt("since_hours")
	if q.err != nil {
		s.respondStoreError(w, r, q.err)
		return
	}
	stats, err := s.db.Stats(r.Context(), hours)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	n, err := s.scheduler.RunSync(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Int("synced", n).Msg("manual sync failed")
		if n == 0 {
			s.respondError(w, http.StatusBadGateway, "sync failed: "+err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, SyncResponse{Status: "partial", Synced: n, Error: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, SyncResponse{Status: "ok", Synced: n})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := &queryParams{r: r}
	limit := q.Int("limit", 0)
	if q.err != nil {
		s.respondStoreError(w, r, q.err)
		return
	}
	n, err := s.scheduler.RunClassify(r.Context(), limit)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ClassifyResponse{Status: "ok", Processed: n})
}

// handleRSS publishes recent signal entries for feed readers.
func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processed, signal := true, true
	entries, err := s.db.QueryEntries(ctx, database.EntryFilter{
		Processed: &processed,
		IsSignal:  &signal,
		Limit:     feedItemLimit,
	})
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	interests, err := s.db.Interests(ctx)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	labels := make(map[string]string, len(interests))
	for _, in := range interests {
		labels[in.Key] = in.Label
	}

	siteURL := s.config.ServerURL
	if siteURL == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		siteURL = scheme + "://" + r.Host
	}

	doc := rss.Build(rss.Meta{
		Title:       "wiresum",
		Link:        siteURL,
		Description: "Signal entries selected by wiresum",
		SelfURL:     siteURL + "/feed.xml",
	}, entries, labels, s.now())

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if err := rss.Write(w, doc); err != nil {
		s.logger.Error().Err(err).Msg("error writing RSS response")
	}
}

func nonNil(entries []database.Entry) []database.Entry {
	if entries == nil {
		return []database.Entry{}
	}
	return entries
}
