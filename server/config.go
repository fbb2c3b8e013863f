// Package server exposes the portfolio analysis pipeline over HTTP: a
// streaming SSE endpoint, a non-streaming JSON endpoint, a bulk reference
// lookup endpoint, and health plumbing.
package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the HTTP layer needs, loaded from environment
// variables with sensible defaults for local development.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string `env:"FOLIOLENS_ADDR" envDefault:":8080"`

	// Model and Provider select the generative backend used for analysis.
	// Empty values fall back to the llm client's defaults.
	Model    string `env:"FOLIOLENS_MODEL"`
	Provider string `env:"FOLIOLENS_PROVIDER"`

	// MaxOutputTokens caps each backend completion. This same value feeds
	// the truncation heuristic in the result extractor.
	MaxOutputTokens int `env:"FOLIOLENS_MAX_OUTPUT_TOKENS" envDefault:"8192"`

	// Temperature, when set, overrides the backend's default sampling
	// temperature.
	Temperature float64 `env:"FOLIOLENS_TEMPERATURE" envDefault:"-1"`

	// RequestTimeout bounds one full analysis request, covering every
	// backend turn and tool call within it.
	RequestTimeout time.Duration `env:"FOLIOLENS_REQUEST_TIMEOUT" envDefault:"10m"`

	// MaxDocumentBytes and MaxDocuments bound caller-supplied attachments.
	MaxDocumentBytes int `env:"FOLIOLENS_MAX_DOCUMENT_BYTES" envDefault:"10485760"`
	MaxDocuments     int `env:"FOLIOLENS_MAX_DOCUMENTS" envDefault:"5"`

	// StreamGraceDelay is the pause after the terminal event before the
	// stream is closed.
	StreamGraceDelay time.Duration `env:"FOLIOLENS_STREAM_GRACE" envDefault:"100ms"`

	// BatchWindow is the concurrency window for the bulk lookup endpoint.
	BatchWindow int `env:"FOLIOLENS_BATCH_WINDOW" envDefault:"2"`

	// EnableWebSearch controls whether the live search tool is offered to
	// the backend. Off by default so a bare deployment stays fully static.
	EnableWebSearch bool `env:"FOLIOLENS_ENABLE_WEB_SEARCH" envDefault:"false"`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.MaxOutputTokens <= 0 {
		return Config{}, fmt.Errorf("FOLIOLENS_MAX_OUTPUT_TOKENS must be positive, got %d", cfg.MaxOutputTokens)
	}
	if cfg.MaxDocuments <= 0 {
		return Config{}, fmt.Errorf("FOLIOLENS_MAX_DOCUMENTS must be positive, got %d", cfg.MaxDocuments)
	}
	return cfg, nil
}

// TemperatureSet reports whether an explicit temperature was configured.
// The default sentinel -1 means "let the backend decide".
func (c Config) TemperatureSet() bool {
	return c.Temperature >= 0
}
