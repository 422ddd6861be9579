package llm

import (
	"context"
	"time"

	"github.com/ppiankov/riskpilot/internal/cost"
	"github.com/ppiankov/riskpilot/internal/model"
)

// SystemPrompt frames every remote invocation
const SystemPrompt = "You are an assistant that analyzes program data for risk, costs, and efficiency signals. " +
	"Respond in a concise and professional manner."

// Client generates a model reply for one input
type Client interface {
	// Name identifies the client in logs and metrics
	Name() string

	// Generate runs one invocation. Implementations honour ctx cancellation.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is one invocation over one normalized input
type GenerateRequest struct {
	ProgramID   string
	InputID     string
	SignalTypes []model.SignalType

	// Prompt is the rendered prompt context
	Prompt string

	// Segments are the input's normalized segments; the rule-based
	// generator scores these instead of the prompt
	Segments []string
}

// GenerateResponse is a raw model reply plus invocation bookkeeping
type GenerateResponse struct {
	Text     string
	Model    string
	Usage    *cost.Usage // nil when the endpoint did not report usage
	Latency  time.Duration
	Attempts int

	// Fallback is set when the rule-based generator produced Text.
	// FallbackReason is the note appended to explanations; FallbackCause
	// is "no_credential" or the endpoint error class.
	Fallback       bool
	FallbackReason string
	FallbackCause  string
}
