// Package eval scores the classification prompt against a golden set.
//
// The config file is YAML:
//
//	model: llama-3.3-70b-versatile
//	user_context: "Engineer at a support-automation startup."
//	interests:
//	  - key: ai
//	    label: AI
//	    description: New models and research.
//
// The golden file is JSONL with one case per line. "expected" is an
// interest key, or "filtered" for entries that should not be signal.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"wiresum/internal/classifier"
	"wiresum/internal/database"
)

// Filtered is the expected outcome for entries that are not signal.
const Filtered = "filtered"

// noInterest labels signal replies that named no interest.
const noInterest = "none"

type InterestConfig struct {
	Key         string `yaml:"key"`
	Label       string `yaml:"label"`
	Description string `yaml:"description"`
}

type Config struct {
	Model       string           `yaml:"model"`
	UserContext string           `yaml:"user_context"`
	Prompt      string           `yaml:"prompt"`
	Interests   []InterestConfig `yaml:"interests"`
}

type Case struct {
	FeedName string `json:"feed_name"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Author   string `json:"author"`
	Content  string `json:"content"`
	Expected string `json:"expected"`
}

func (c Case) entry() database.Entry {
	opt := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	return database.Entry{
		FeedName: opt(c.FeedName),
		Title:    opt(c.Title),
		URL:      opt(c.URL),
		Author:   opt(c.Author),
		Content:  opt(c.Content),
	}
}

type Result struct {
	Title     string `json:"title"`
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Correct   bool   `json:"correct"`
	Reasoning string `json:"reasoning"`
}

type Report struct {
	Model   string   `json:"model"`
	Correct int      `json:"correct"`
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

func (r Report) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total)
}

// Failures returns the incorrect results in input order.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Correct {
			out = append(out, res)
		}
	}
	return out
}

// LoadConfig reads and validates a YAML eval config.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read eval config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse eval config %s: %w", path, err)
	}
	if cfg.Model == "" {
		cfg.Model = database.DefaultModel
	}
	if len(cfg.Interests) == 0 {
		return Config{}, fmt.Errorf("eval config %s: no interests defined", path)
	}
	for i, in := range cfg.Interests {
		if in.Key == "" || in.Label == "" {
			return Config{}, fmt.Errorf("eval config %s: interest %d needs key and label", path, i+1)
		}
	}
	return cfg, nil
}

// LoadGolden reads golden cases from a JSONL file.
func LoadGolden(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open golden set: %w", err)
	}
	defer f.Close()
	return ReadGolden(f)
}

// ReadGolden parses JSONL cases, skipping blank lines.
func ReadGolden(r io.Reader) ([]Case, error) {
	var cases []Case
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("golden line %d: %w", line, err)
		}
		if c.Expected == "" {
			return nil, fmt.Errorf("golden line %d: missing expected", line)
		}
		cases = append(cases, c)
	}
	return cases, scanner.Err()
}

func (cfg Config) interests() []database.Interest {
	out := make([]database.Interest, 0, len(cfg.Interests))
	for _, in := range cfg.Interests {
		i := database.Interest{Key: in.Key, Label: in.Label}
		if in.Description != "" {
			desc := in.Description
			i.Description = &desc
		}
		out = append(out, i)
	}
	return out
}

// Runner classifies each case and prints PASS/FAIL lines to Out.
type Runner struct {
	Oracle  classifier.Oracle
	Out     io.Writer
	Verbose bool
}

// Run evaluates every case sequentially. Oracle call errors count as
// failures and do not stop the run; a context cancellation does.
func (r Runner) Run(ctx context.Context, cfg Config, cases []Case) (Report, error) {
	out := r.Out
	if out == nil {
		out = io.Discard
	}
	system, err := classifier.RenderPrompt(cfg.interests(), cfg.UserContext, cfg.Prompt)
	if err != nil {
		return Report{}, fmt.Errorf("render prompt: %w", err)
	}

	report := Report{Model: cfg.Model, Total: len(cases)}
	fmt.Fprintf(out, "\nRunning %d evals (model: %s)...\n\n", len(cases), cfg.Model)
	fmt.Fprintln(out, strings.Repeat("-", 80))

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d := classify(ctx, r.Oracle, cfg.Model, system, c)
		res := Result{
			Title:     c.Title,
			Expected:  c.Expected,
			Actual:    actual(d),
			Reasoning: d.Reasoning,
		}
		res.Correct = res.Actual == res.Expected
		if res.Correct {
			report.Correct++
		}
		report.Results = append(report.Results, res)

		status := "FAIL"
		if res.Correct {
			status = "PASS"
		}
		fmt.Fprintf(out, "  [%s] %s\n", status, truncate(c.Title, 40))
		fmt.Fprintf(out, "         Expected: %-12s | Actual: %s\n", res.Expected, res.Actual)
		if r.Verbose {
			fmt.Fprintf(out, "         Reasoning: %s\n", truncate(strings.ReplaceAll(d.Reasoning, "\n", " "), 70))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "\nAccuracy: %d/%d (%.0f%%)\n", report.Correct, report.Total, report.Accuracy()*100)
	if failures := report.Failures(); len(failures) > 0 {
		fmt.Fprintf(out, "\nFailures (%d):\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(out, "  - %s: expected %s, got %s\n", truncate(f.Title, 50), f.Expected, f.Actual)
		}
	}
	return report, nil
}

func classify(ctx context.Context, oracle classifier.Oracle, model, system string, c Case) classifier.Decision {
	raw, err := oracle.Complete(ctx, model, system, classifier.FormatEntry(c.entry()))
	if err != nil {
		return classifier.Decision{Reasoning: classifier.ClassificationErrorPrefix + err.Error()}
	}
	return classifier.ParseResponse(raw)
}

func actual(d classifier.Decision) string {
	if !d.IsSignal {
		return Filtered
	}
	if d.Interest == nil {
		return noInterest
	}
	return *d.Interest
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
