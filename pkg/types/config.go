// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout. Zero leaves the transport default.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "litbrief/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the external paper index.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL overrides the arXiv query endpoint.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// MaxResults is the page size requested per search term (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// MinInterval is the minimum gap between consecutive dispatches (default 3s).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" mapstructure:"min_interval"`

	// MaxRetries bounds retries on HTTP 429/503 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AIConfig holds shared settings for components that call an LLM.
type AIConfig struct {
	// Provider is the active vendor (openai, anthropic, gemini, openrouter).
	Provider ProviderName `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model overrides the provider's selected model.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxRetries is the number of attempts for key validation (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens caps completion length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature applies to models that accept one.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// Referer and Title are sent as attribution headers to OpenRouter.
	Referer string `json:"referer" yaml:"referer" mapstructure:"referer"`
	Title   string `json:"title" yaml:"title" mapstructure:"title"`
}

// RelevancyConfig holds settings for batch relevancy scoring.
type RelevancyConfig struct {
	// BatchFraction is the share of the unscored backlog scored per call
	// (default 0.25). At least one paper is always scored.
	BatchFraction float64 `json:"batch_fraction" yaml:"batch_fraction" mapstructure:"batch_fraction"`
}

// StoreDriver selects the database engine.
type StoreDriver string

const (
	DriverSQLite   StoreDriver = "sqlite3"
	DriverPostgres StoreDriver = "postgres"
)

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver StoreDriver `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string `json:"dsn" yaml:"dsn" mapstructure:"dsn"`
}

// Config groups every component's settings.
type Config struct {
	Search     SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	AI         AIConfig        `json:"ai" yaml:"ai" mapstructure:"ai"`
	Relevancy  RelevancyConfig `json:"relevancy" yaml:"relevancy" mapstructure:"relevancy"`
	Store      StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	SecretsDir string          `json:"secrets_dir" yaml:"secrets_dir" mapstructure:"secrets_dir"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			HTTPConfig:  HTTPConfig{UserAgent: "litbrief/0.1"},
			BaseURL:     "https://export.arxiv.org/api/query",
			MaxResults:  20,
			MinInterval: 3 * time.Second,
			MaxRetries:  3,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			MaxRetries:  3,
			MaxTokens:   4096,
			Temperature: 0.2,
			Title:       "litbrief",
		},
		Relevancy:  RelevancyConfig{BatchFraction: 0.25},
		Store:      StoreConfig{Driver: DriverSQLite, DSN: "litbrief.db"},
		SecretsDir: ".secrets/",
	}
}
