package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestComplete_SendsPromptAndReturnsContent(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"interest\":null}"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL+"/", 5*time.Second)
	out, err := c.Complete(context.Background(), "test-model", "system text", "user text")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"interest":null}` {
		t.Errorf("Complete() = %q", out)
	}
	if got.Model != "test-model" || got.Temperature != Temperature || got.MaxTokens != MaxTokens {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem || got.Messages[0].Content != "system text" ||
		got.Messages[1].Role != RoleUser || got.Messages[1].Content != "user text" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error message", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, "rate limited"},
		{"bare status", http.StatusBadGateway, `oops`, "unexpected status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "empty response"},
		{"bad json", http.StatusOK, `{"choices":`, "decode response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", srv.URL, time.Second).Complete(context.Background(), "m", "s", "u")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Complete() error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestComplete_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient("", "http://unused", time.Second).Complete(context.Background(), "m", "s", "u"); err == nil {
		t.Fatal("Complete() without key should fail")
	}
}
