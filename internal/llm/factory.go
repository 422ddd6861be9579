package llm

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/score"
)

// Credential environment variables, checked when llm.api_key is unset
const (
	EnvHuggingFaceKey = "HUGGINGFACE_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
)

// Deps are the shared collaborators of a model client
type Deps struct {
	HTTPClient *http.Client
	Limiter    RateLimiter
	Logger     logger.Logger
	Scorer     *score.Scorer
}

// ResolveConfig fills provider, API key and base URL from the environment.
// An empty provider picks Hugging Face when its key is present, then OpenAI.
func ResolveConfig(cfg model.LLMConfig, getenv func(string) string) model.LLMConfig {
	if getenv == nil {
		getenv = os.Getenv
	}
	provider := strings.ToLower(cfg.Provider)

	if provider == "" {
		switch {
		case cfg.APIKey != "":
			provider = "huggingface"
		case getenv(EnvHuggingFaceKey) != "":
			provider = "huggingface"
		case getenv(EnvOpenAIKey) != "":
			provider = "openai"
		default:
			provider = "fallback"
		}
	}

	if cfg.APIKey == "" {
		switch provider {
		case "huggingface":
			cfg.APIKey = getenv(EnvHuggingFaceKey)
		case "openai":
			cfg.APIKey = getenv(EnvOpenAIKey)
		}
	}
	if cfg.BaseURL == "" && provider == "huggingface" {
		cfg.BaseURL = HuggingFaceBaseURL
	}
	cfg.Provider = provider
	return cfg
}

// NewRemoteFromConfig builds the remote client. It returns
// model.ErrNoCredential for the fallback provider or a missing key.
func NewRemoteFromConfig(cfg model.LLMConfig, deps Deps) (*RemoteClient, error) {
	switch cfg.Provider {
	case "fallback":
		return nil, model.ErrNoCredential
	case "openai", "huggingface":
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: huggingface, openai, fallback)", cfg.Provider)
	}

	return NewRemoteClient(RemoteOptions{
		Model:          cfg.Model,
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Timeout:        time.Duration(cfg.Timeout) * time.Second,
		MaxRetries:     cfg.MaxRetries,
		BackoffBase:    cfg.BackoffBase,
		BackoffMax:     cfg.BackoffMax,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		JSONMode:       cfg.JSONMode,
		MaxConcurrency: cfg.MaxConcurrency,
		HTTPClient:     deps.HTTPClient,
		Limiter:        deps.Limiter,
		Logger:         deps.Logger,
	})
}

// NewClient builds the resilient client for a resolved configuration.
// Without a credential every call goes to the rule-based generator.
func NewClient(cfg model.LLMConfig, deps Deps) (*ResilientClient, error) {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	var remote Client
	rc, err := NewRemoteFromConfig(cfg, deps)
	switch {
	case errors.Is(err, model.ErrNoCredential):
		log.Info("no model credential configured, using rule-based generation")
	case err != nil:
		return nil, err
	default:
		remote = rc
	}
	return NewResilientClient(remote, NewFallbackClient(deps.Scorer), log), nil
}
