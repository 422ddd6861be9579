package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/riskpilot/internal/cost"
	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/validate"
)

// HuggingFaceBaseURL is the OpenAI-compatible Hugging Face router
const HuggingFaceBaseURL = "https://router.huggingface.co/v1"

// RateLimiter throttles requests per endpoint
type RateLimiter interface {
	Wait(ctx context.Context, endpoint string) error
}

// RemoteOptions configures a RemoteClient
type RemoteOptions struct {
	Model          string
	APIKey         string
	BaseURL        string
	Timeout        time.Duration // per attempt
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxTokens      int
	Temperature    float32
	JSONMode       bool
	MaxConcurrency int

	HTTPClient *http.Client
	Limiter    RateLimiter
	Logger     logger.Logger
}

// RemoteClient calls an OpenAI-compatible chat completions endpoint
// (OpenAI, the Hugging Face router, vLLM, Ollama's /v1 ...)
type RemoteClient struct {
	client  *openai.Client
	opts    RemoteOptions
	sem     *semaphore.Weighted
	log     logger.Logger
	baseURL string
}

// NewRemoteClient returns model.ErrNoCredential when no API key is set
func NewRemoteClient(opts RemoteOptions) (*RemoteClient, error) {
	if opts.APIKey == "" {
		return nil, model.ErrNoCredential
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("remote client: model is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 8 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &RemoteClient{
		client:  openai.NewClientWithConfig(cfg),
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		log:     opts.Logger.With("client", "remote", "model", opts.Model),
		baseURL: cfg.BaseURL,
	}, nil
}

// Name returns the model identifier
func (c *RemoteClient) Name() string {
	return c.opts.Model
}

// Generate sends the prompt, retrying transient failures with exponential
// backoff. The returned error is a *model.TransientEndpointError once
// retries are exhausted, or a *model.PermanentEndpointError.
func (c *RemoteClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	chatReq := c.chatRequest(req)
	start := time.Now()
	attempts := 0

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx, c.baseURL); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		r, err := c.client.CreateChatCompletion(attemptCtx, chatReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wrapped := classifyError(err)
			if Classify(wrapped) == ClassTransient {
				c.log.Warn("transient endpoint failure", "attempt", attempts, "input_id", req.InputID, "err", err)
				return retry.RetryableError(wrapped)
			}
			return wrapped
		}
		if len(r.Choices) == 0 {
			return &model.PermanentEndpointError{Err: errors.New("reply has no choices")}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &GenerateResponse{
		Text:     strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:    c.opts.Model,
		Latency:  time.Since(start),
		Attempts: attempts,
	}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		out.Usage = &cost.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// backoff is exponential from BackoffBase, each delay capped at BackoffMax,
// stopping after MaxRetries retries
func (c *RemoteClient) backoff() retry.Backoff {
	b := retry.NewExponential(c.opts.BackoffBase)
	b = retry.WithCappedDuration(c.opts.BackoffMax, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(uint64(c.opts.MaxRetries), b) // #nosec G115 -- validated 0..10
}

func (c *RemoteClient) chatRequest(req GenerateRequest) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
	if c.opts.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "signal_reply",
				Schema: validate.ReplySchema(),
				Strict: true,
			},
		}
	}
	return chatReq
}
