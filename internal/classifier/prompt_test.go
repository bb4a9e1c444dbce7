package classifier

import (
	"strings"
	"testing"

	"wiresum/internal/database"
)

func TestRenderPrompt_DefaultTemplate(t *testing.T) {
	interests := []database.Interest{
		{Key: "ai", Label: "AI", Description: sp("Models and research")},
		{Key: "dev", Label: "Dev"},
	}
	got, err := RenderPrompt(interests, "  I build iOS apps.  ", "")
	if err != nil {
		t.Fatalf("RenderPrompt() error = %v", err)
	}

	for _, want := range []string{
		"I build iOS apps.",
		"- ai: AI - Models and research\n",
		"- dev: Dev\n",
		`{"interest": "key_or_null", "is_signal": true/false, "reasoning": "bullet points"}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "{{") {
		t.Errorf("unrendered template action in prompt")
	}
}

func TestRenderPrompt_ReflectsTaxonomyChanges(t *testing.T) {
	before, _ := RenderPrompt([]database.Interest{{Key: "ai", Label: "AI"}}, "", "")
	after, _ := RenderPrompt([]database.Interest{{Key: "ai", Label: "AI"}, {Key: "rust", Label: "Rust"}}, "", "")
	if strings.Contains(before, "rust") || !strings.Contains(after, "- rust: Rust") {
		t.Errorf("prompt does not track the taxonomy")
	}
}

func TestRenderPrompt_Override(t *testing.T) {
	override := "Reader: {{.UserContext}}\n{{range .Interests}}{{.Key}},{{end}} ({{.Version}})"
	got, err := RenderPrompt([]database.Interest{{Key: "ai"}, {Key: "apps"}}, "me", override)
	if err != nil {
		t.Fatalf("RenderPrompt() error = %v", err)
	}
	if want := "Reader: me\nai,apps, (" + PromptVersion + ")"; got != want {
		t.Errorf("RenderPrompt() = %q, want %q", got, want)
	}

	plain, err := RenderPrompt(nil, "", "Just classify it.")
	if err != nil || plain != "Just classify it." {
		t.Errorf("plain override = %q, %v", plain, err)
	}
}

func TestRenderPrompt_BrokenOverride(t *testing.T) {
	for _, override := range []string{"{{.Missing", "{{.NoSuchField}}"} {
		if _, err := RenderPrompt(nil, "", override); err == nil {
			t.Errorf("RenderPrompt(%q) should fail", override)
		}
	}
}
