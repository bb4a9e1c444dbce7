package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wiresum/internal/database"
)

const maxBodyBytes = 1 << 20

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, map[string]string{"error": message})
}

// respondJSON sends payload as JSON with the given status code. A nil payload
// sends headers only. Payloads are marshalled before the header is written so
// an encoding failure can still be reported as a 500.
func (s *Server) respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		w.WriteHeader(code)
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Int("status", code).Msg("error encoding response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
		return
	}
	w.WriteHeader(code)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug().Err(err).Msg("error writing response")
	}
}

// respondStoreError maps store sentinels to status codes. Anything else is
// logged and reported as a 500 without detail.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConflict):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", database.ErrInvalidInput, err)
	}
	return nil
}

// queryParams parses optional query values, collecting the first error.
type queryParams struct {
	r   *http.Request
	err error
}

func (q *queryParams) fail(name, want string) {
	if q.err == nil {
		q.err = fmt.Errorf("%w: %s must be %s", database.ErrInvalidInput, name, want)
	}
}

func (q *queryParams) raw(name string) (string, bool) {
	v := strings.TrimSpace(q.r.URL.Query().Get(name))
	return v, v != ""
}

func (q *queryParams) Int(name string, def int) int {
	v, ok := q.raw(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		q.fail(name, "a non-negative integer")
		return def
	}
	return n
}

func (q *queryParams) OptionalInt(name string) *int {
	if _, ok := q.raw(name); !ok {
		return nil
	}
	n := q.Int(name, 0)
	return &n
}

func (q *queryParams) OptionalBool(name string) *bool {
	v, ok := q.raw(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(name, "true or false")
		return nil
	}
	return &b
}

func (q *queryParams) Bool(name string, def bool) bool {
	if b := q.OptionalBool(name); b != nil {
		return *b
	}
	return def
}

func (q *queryParams) OptionalString(name string) *string {
	v, ok := q.raw(name)
	if !ok {
		return nil
	}
	return &v
}

func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid entry id %q", database.ErrInvalidInput, raw)
	}
	return id, nil
}
