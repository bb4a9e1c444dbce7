// internal/server/settings.go
package server

import (
	"net/http"
	"strconv"
	"time"

	"wiresum/internal/database"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := s.db.AllConfig(ctx)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	interval, err := s.db.SyncInterval(ctx)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	model := all["model"]
	if model == "" {
		model = database.DefaultModel
	}
	s.respondJSON(w, http.StatusOK, ConfigResponse{
		ClassificationPrompt: all["classification_prompt"],
		Model:                model,
		SyncInterval:         int(interval / time.Minute),
		ProcessAfter:         all["process_after"],
		UserContext:          all["user_context"],
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	value, ok := req.StringValue()
	if !ok {
		s.respondError(w, http.StatusBadRequest, "value must be a string or number")
		return
	}

	stored, err := s.db.SetConfig(r.Context(), req.Key, value)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}

	if req.Key == "sync_interval" {
		minutes, _ := strconv.Atoi(stored)
		if err := s.scheduler.SetSyncInterval(time.Duration(minutes) * time.Minute); err != nil {
			s.logger.Error().Err(err).Msg("error rescheduling sync")
		} else {
			s.logger.Info().Int("minutes", minutes).Msg("updated sync interval")
		}
	}
	s.respondJSON(w, http.StatusOK, ConfigUpdateResponse{Status: "ok", Key: req.Key, Value: stored})
}
