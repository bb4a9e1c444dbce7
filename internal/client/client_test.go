package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendsTokenAndQuery(t *testing.T) {
	var gotAuth, gotQuery, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id": 7, "external_id": "x", "fetched_at": "2025-01-02T03:04:05Z"}]`)
	}))
	defer srv.Close()

	signal := true
	entries, err := New(srv.URL+"/", "tok").Entries(context.Background(), EntryQuery{IsSignal: &signal, SinceHours: 48, Limit: 50})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 7 {
		t.Errorf("entries = %+v", entries)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/entries" || gotQuery != "is_signal=true&limit=50&since_hours=48" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error": "record not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Entry(context.Background(), 42)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want 404 APIError", err)
	}
	if err.Error() != "server returned 404: record not found" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestClient_SetSettingAndInterestBodies(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		bodies = append(bodies, body)
		switch r.URL.Path {
		case "/config":
			_, _ = io.WriteString(w, `{"status": "ok", "key": "sync_interval", "value": "30"}`)
		default:
			_, _ = io.WriteString(w, `{"id": 1, "key": "go", "label": "Go"}`)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "")
	ctx := context.Background()

	stored, err := c.SetSetting(ctx, "sync_interval", " 30 ")
	if err != nil || stored != "30" {
		t.Fatalf("SetSetting = %q, %v", stored, err)
	}
	label := "Go"
	if _, err := c.UpdateInterest(ctx, "go", &label, nil); err != nil {
		t.Fatalf("UpdateInterest: %v", err)
	}

	if bodies[0]["key"] != "sync_interval" || bodies[0]["value"] != " 30 " {
		t.Errorf("config body = %v", bodies[0])
	}
	if _, ok := bodies[1]["description"]; ok || bodies[1]["label"] != "Go" {
		t.Errorf("update body = %v", bodies[1])
	}
}
