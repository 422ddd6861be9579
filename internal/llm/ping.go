package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/riskpilot/internal/model"
)

// PingStatus is the outcome of a connectivity check
type PingStatus string

const (
	PingOnline         PingStatus = "online"
	PingConfiguredDemo PingStatus = "configured-demo"
	PingAuthError      PingStatus = "auth-error"
	PingLoading        PingStatus = "loading"
	PingAPIError       PingStatus = "api-error"
	PingNetworkError   PingStatus = "network-error"
)

// PingResult reports endpoint reachability
type PingResult struct {
	Connected bool          `json:"connected"`
	Status    PingStatus    `json:"status"`
	Details   string        `json:"details"`
	Model     string        `json:"model,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
}

const pingTimeout = 10 * time.Second

// Ping sends a one-token completion. A nil remote means no credential is
// configured and every invocation runs in demo mode.
func Ping(ctx context.Context, remote *RemoteClient) PingResult {
	if remote == nil {
		return PingResult{
			Status:  PingConfiguredDemo,
			Details: "No API key configured. Operating in rule-based demo mode.",
			Model:   model.FallbackModelName,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	_, err := remote.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     remote.opts.Model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	res := PingResult{Model: remote.opts.Model, Latency: time.Since(start)}
	if err == nil {
		res.Connected = true
		res.Status = PingOnline
		res.Details = fmt.Sprintf("Connected to %s: %s", remote.baseURL, remote.opts.Model)
		return res
	}

	switch code := statusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		res.Status = PingAuthError
		res.Details = fmt.Sprintf("Credential rejected (HTTP %d). Check the token's inference permissions.", code)
	case code == http.StatusServiceUnavailable:
		res.Status = PingLoading
		res.Details = "Model is currently loading on the endpoint."
	case code != 0:
		res.Status = PingAPIError
		res.Details = fmt.Sprintf("Endpoint error: HTTP %d: %s", code, truncate(err.Error(), 100))
	default:
		res.Status = PingNetworkError
		res.Details = "Network error: " + err.Error()
	}
	return res
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
