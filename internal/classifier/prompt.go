package classifier

import (
	"fmt"
	"strings"
	"text/template"

	"wiresum/internal/database"
)

// PromptVersion identifies the built-in template. Bump it when the output
// contract or guidance changes.
const PromptVersion = "v2"

// DefaultPromptTemplate is the built-in system prompt. A stored
// classification_prompt replaces it and sees the same data.
const DefaultPromptTemplate = `You are a smart assistant helping filter RSS feeds. You know your reader well:

{{.UserContext}}

Your job: Classify each article and extract key insights tailored to this reader.

## Output Format (JSON)

Respond with a single JSON object and nothing else:

{"interest": "key_or_null", "is_signal": true/false, "reasoning": "bullet points"}

## Fields

**interest**: Match to one of these keys, or null if none fit:
{{range .Interests}}- {{.Key}}: {{.Label}}{{if .Description}} - {{.Description}}{{end}}
{{end}}
**is_signal**: true ONLY if genuinely valuable. Filter out:
- Marketing, PR, corporate case studies
- "How X uses Y" fluff pieces
- Podcast/video promos without substance
- News without insight or implications

**reasoning**: Key takeaways as bullet points. Write for your reader specifically.
- What's the actual insight? (not just "this article discusses X")
- Why would this matter to this reader?
- Any tactical takeaway or implication?

Keep each bullet punchy, one clear thought. 1-3 bullets depending on substance.

Good:
• Regulatory moat took 4 years to build, competitors effectively locked out
• Swift 6 ownership approach worth adopting for a local-first data layer

Bad:
• This article discusses the importance of regulatory compliance (too vague)
• Interesting insights about the startup ecosystem (says nothing)`

// PromptInterest is the view of an interest exposed to templates.
type PromptInterest struct {
	Key         string
	Label       string
	Description string
}

// PromptData is the data a prompt template is executed with.
type PromptData struct {
	UserContext string
	Interests   []PromptInterest
	Version     string
}

var defaultPrompt = template.Must(template.New("classification").Parse(DefaultPromptTemplate))

// RenderPrompt builds the system prompt from the current taxonomy and user
// context. A non-empty override is used as the template instead of
// DefaultPromptTemplate; an override that fails to parse or execute is an
// error and callers fall back to the built-in template.
func RenderPrompt(interests []database.Interest, userContext, override string) (string, error) {
	data := PromptData{
		UserContext: strings.TrimSpace(userContext),
		Interests:   make([]PromptInterest, 0, len(interests)),
		Version:     PromptVersion,
	}
	for _, in := range interests {
		pi := PromptInterest{Key: in.Key, Label: in.Label}
		if in.Description != nil {
			pi.Description = strings.TrimSpace(*in.Description)
		}
		data.Interests = append(data.Interests, pi)
	}

	tmpl := defaultPrompt
	if strings.TrimSpace(override) != "" {
		var err error
		tmpl, err = template.New("override").Option("missingkey=error").Parse(override)
		if err != nil {
			return "", fmt.Errorf("parse classification prompt: %w", err)
		}
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render classification prompt: %w", err)
	}
	return b.String(), nil
}
