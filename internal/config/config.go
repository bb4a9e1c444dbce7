// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds settings fixed for the lifetime of the process. Settings the
// user changes at runtime live in the store's config table instead.
type Config struct {
	DBPath    string `envconfig:"WIRESUM_DB_PATH"`
	Port      int    `envconfig:"WIRESUM_PORT" default:"8000"`
	ServerURL string `envconfig:"WIRESUM_SERVER_URL" default:"http://localhost:8000"`
	LogLevel  string `envconfig:"WIRESUM_LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"WIRESUM_LOG_PRETTY" default:"false"`

	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	GroqAPIKey string `envconfig:"GROQ_API_KEY"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:"https://api.groq.com/openai/v1"`

	FeedbinEmail    string   `envconfig:"FEEDBIN_EMAIL"`
	FeedbinPassword string   `envconfig:"FEEDBIN_PASSWORD"`
	FeedbinAPIURL   string   `envconfig:"FEEDBIN_API_URL" default:"https://api.feedbin.com/v2"`
	FeedURLs        []string `envconfig:"WIRESUM_FEED_URLS"`

	FirecrawlAPIKey string `envconfig:"FIRECRAWL_API_KEY"`
	FirecrawlURL    string `envconfig:"FIRECRAWL_API_URL" default:"https://api.firecrawl.dev/v1"`
	LocalExtract    bool   `envconfig:"WIRESUM_LOCAL_EXTRACT" default:"false"`

	ClassifyBatch int           `envconfig:"WIRESUM_CLASSIFY_BATCH" default:"10"`
	ClassifyEvery time.Duration `envconfig:"WIRESUM_CLASSIFY_EVERY" default:"1m"`
	HTTPTimeout   time.Duration `envconfig:"WIRESUM_HTTP_TIMEOUT" default:"30s"`

	APITokenHash string `envconfig:"WIRESUM_API_TOKEN_HASH"`
	APIToken     string `envconfig:"WIRESUM_API_TOKEN"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env values.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("error reading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config: %w", err)
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("error resolving home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".wiresum", "wiresum.db")
	}
	cfg.FeedURLs = compact(cfg.FeedURLs)
	return cfg, nil
}

// APIKey returns the oracle credential, preferring LLM_API_KEY.
func (c Config) APIKey() string {
	if c.LLMAPIKey != "" {
		return c.LLMAPIKey
	}
	return c.GroqAPIKey
}

// FeedbinEnabled reports whether Feedbin credentials are configured.
func (c Config) FeedbinEnabled() bool {
	return c.FeedbinEmail != "" && c.FeedbinPassword != ""
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.APIKey() == "" {
		missing = append(missing, "LLM_API_KEY (or GROQ_API_KEY)")
	}
	if !c.FeedbinEnabled() && len(c.FeedURLs) == 0 {
		missing = append(missing, "FEEDBIN_EMAIL and FEEDBIN_PASSWORD (or WIRESUM_FEED_URLS)")
	}
	if (c.FeedbinEmail == "") != (c.FeedbinPassword == "") {
		missing = append(missing, "both FEEDBIN_EMAIL and FEEDBIN_PASSWORD")
	}
	if c.ClassifyBatch <= 0 {
		return fmt.Errorf("WIRESUM_CLASSIFY_BATCH must be positive")
	}
	if c.ClassifyEvery < time.Second {
		return fmt.Errorf("WIRESUM_CLASSIFY_EVERY must be at least 1s")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Address is the listen address for the HTTP server.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
