package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete riskpilot configuration.
// Loaded from defaults, then ~/.riskpilot/config.yaml, then RISKPILOT_* env, then flags.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding" mapstructure:"embedding"`
	Index        IndexConfig        `yaml:"index" mapstructure:"index"`
	Prompt       PromptConfig       `yaml:"prompt" mapstructure:"prompt"`
	Normalize    NormalizeConfig    `yaml:"normalize" mapstructure:"normalize"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Ledger       LedgerConfig       `yaml:"ledger" mapstructure:"ledger"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Cost         CostConfig         `yaml:"cost" mapstructure:"cost"`
	Analysis     AnalysisConfig     `yaml:"analysis" mapstructure:"analysis"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// LLMConfig configures the remote text-generation endpoint
type LLMConfig struct {
	Provider       string        `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai huggingface fallback"`
	Model          string        `yaml:"model" mapstructure:"model"`
	APIKey         string        `yaml:"-" mapstructure:"api_key"` // Prefer HUGGINGFACE_API_KEY / OPENAI_API_KEY
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Timeout        int           `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds per attempt
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BackoffBase    time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`
	MaxTokens      int           `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	Temperature    float32       `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	JSONMode       bool          `yaml:"json_mode" mapstructure:"json_mode"`
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"gte=0"`

	// Proxy settings
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// EmbeddingConfig selects the embedding backend for the context index
type EmbeddingConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=hash openai ollama"`
	Model     string `yaml:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension" validate:"gt=0"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
}

// IndexConfig configures the per-program vector index
type IndexConfig struct {
	Dir      string  `yaml:"dir" mapstructure:"dir"`
	TopK     int     `yaml:"top_k" mapstructure:"top_k" validate:"gt=0"`
	MinScore float64 `yaml:"min_score" mapstructure:"min_score" validate:"gte=-1,lte=1"`
}

// PromptConfig bounds the serialized prompt
type PromptConfig struct {
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars" validate:"gte=256"`
}

// NormalizeConfig bounds segment sizes
type NormalizeConfig struct {
	MaxSegmentChars int `yaml:"max_segment_chars" mapstructure:"max_segment_chars" validate:"gte=32"`
	MaxCSVRows      int `yaml:"max_csv_rows" mapstructure:"max_csv_rows" validate:"gte=0"`
}

// CacheConfig configures the embedding cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig bounds parallel input analysis
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
}

// RateLimitingConfig throttles requests per endpoint host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"gte=0"`
}

// LedgerConfig locates the signal/override/cost database
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// FetchConfig controls inputs given as http(s) URLs
type FetchConfig struct {
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	Timeout       int    `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
	MaxBytes      int64  `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gt=0"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// ModelPrice is a per-1K-token price pair, kept as decimal strings
type ModelPrice struct {
	InputPer1K  string `yaml:"input_per_1k" mapstructure:"input_per_1k" validate:"numeric"`
	OutputPer1K string `yaml:"output_per_1k" mapstructure:"output_per_1k" validate:"numeric"`
}

// CostConfig is the static price table
type CostConfig struct {
	Default ModelPrice            `yaml:"default" mapstructure:"default"`
	Models  map[string]ModelPrice `yaml:"models" mapstructure:"models" validate:"dive"`
}

// AnalysisConfig forces a fixed set of signal types (empty = route by document kind)
type AnalysisConfig struct {
	SignalTypes []string `yaml:"signal_types,omitempty" mapstructure:"signal_types" validate:"dive,oneof=delivery_risk cost_risk ai_efficiency"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".riskpilot")

	return &Config{
		LLM: LLMConfig{
			Provider:       "", // Chosen from the available credential
			Model:          "mistralai/Mistral-7B-Instruct-v0.2",
			Timeout:        60,
			MaxRetries:     3,
			BackoffBase:    500 * time.Millisecond,
			BackoffMax:     8 * time.Second,
			MaxTokens:      500,
			Temperature:    0.3,
			MaxConcurrency: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			Model:     "all-MiniLM-L6-v2",
			Dimension: 384,
			Timeout:   30,
		},
		Index: IndexConfig{
			Dir:      filepath.Join(base, "index"),
			TopK:     3,
			MinScore: 0.25,
		},
		Prompt: PromptConfig{
			MaxChars: 6000,
		},
		Normalize: NormalizeConfig{
			MaxSegmentChars: 500,
			MaxCSVRows:      200,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(base, "cache"),
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Ledger: LedgerConfig{
			Path: filepath.Join(base, "riskpilot.db"),
		},
		Fetch: FetchConfig{
			UserAgent:     "riskpilot/0.1 (+https://github.com/ppiankov/riskpilot)",
			Timeout:       30,
			MaxBytes:      5 << 20,
			RespectRobots: true,
		},
		Cost: CostConfig{
			Default: ModelPrice{InputPer1K: "0.0001", OutputPer1K: "0.0002"},
			Models: map[string]ModelPrice{
				"mistralai/Mistral-7B-Instruct-v0.2": {InputPer1K: "0.0001", OutputPer1K: "0.0002"},
				"gpt-4o-mini":                        {InputPer1K: "0.00015", OutputPer1K: "0.0006"},
				"gpt-4o":                             {InputPer1K: "0.0025", OutputPer1K: "0.01"},
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for impossible values
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Types returns the configured signal types, or nil to route by document kind
func (c AnalysisConfig) Types() []SignalType {
	if len(c.SignalTypes) == 0 {
		return nil
	}
	out := make([]SignalType, 0, len(c.SignalTypes))
	for _, s := range c.SignalTypes {
		if t, ok := ParseSignalType(s); ok {
			out = append(out, t)
		}
	}
	return out
}
