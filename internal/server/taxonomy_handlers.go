// internal/server/taxonomy_handlers.go
package server

import (
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"
)

func (s *Server) handleListInterests(w http.ResponseWriter, r *http.Request) {
	interests, err := s.db.Interests(r.Context())
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, interests)
}

func (s *Server) handleCreateInterest(w http.ResponseWriter, r *http.Request) {
	var req InterestCreate
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	req.Label = strings.TrimSpace(req.Label)
	if req.Key == "" || req.Label == "" {
		s.respondError(w, http.StatusBadRequest, "key and label are required")
		return
	}
	if strings.ContainsAny(req.Key, " \t\n") {
		s.respondError(w, http.StatusBadRequest, "key must not contain whitespace")
		return
	}

	interest, err := s.db.CreateInterest(r.Context(), req.Key, req.Label, req.Description)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.logger.Info().Str("key", interest.Key).Msg("interest created")
	s.respondJSON(w, http.StatusCreated, interest)
}

func (s *Server) handleUpdateInterest(w http.ResponseWriter, r *http.Request) {
	var req InterestUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if req.Label != nil && strings.TrimSpace(*req.Label) == "" {
		s.respondError(w, http.StatusBadRequest, "label must not be empty")
		return
	}
	interest, err := s.db.UpdateInterest(r.Context(), chi.URLParam(r, "key"), req.Label, req.Description)
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, interest)
}

func (s *Server) handleDeleteInterest(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.db.DeleteInterest(r.Context(), key); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	s.logger.Info().Str("key", key).Msg("interest deleted")
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "deleted": key})
}
