package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/score"
	"github.com/ppiankov/riskpilot/internal/validate"
)

// FallbackConfidence is the fixed confidence of rule-based signals
const FallbackConfidence = 0.6

// fallbackLatency is the nominal latency recorded for rule-based replies
const fallbackLatency = 50 * time.Millisecond

const demoReason = "Demo mode: No API key configured"

// CauseNoCredential is the FallbackCause when no endpoint is configured
const CauseNoCredential = "no_credential"

// FallbackClient produces deterministic replies from keyword scoring. It
// never fails and never calls out.
type FallbackClient struct {
	scorer *score.Scorer
}

// NewFallbackClient creates a fallback client over scorer (nil = default lexicon)
func NewFallbackClient(scorer *score.Scorer) *FallbackClient {
	if scorer == nil {
		scorer = score.NewScorer()
	}
	return &FallbackClient{scorer: scorer}
}

// Name returns the fallback model name
func (f *FallbackClient) Name() string {
	return model.FallbackModelName
}

// Generate scores the request in demo mode (no endpoint configured)
func (f *FallbackClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return f.generate(ctx, req, demoReason, CauseNoCredential)
}

// Recover scores the request after the remote endpoint failed with cause
func (f *FallbackClient) Recover(ctx context.Context, req GenerateRequest, cause error) (*GenerateResponse, error) {
	return f.generate(ctx, req, "Fallback mode: "+cause.Error(), Classify(cause).String())
}

func (f *FallbackClient) generate(ctx context.Context, req GenerateRequest, reason, cause string) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	types := req.SignalTypes
	if len(types) == 0 {
		types = []model.SignalType{model.SignalDeliveryRisk}
	}

	reply := validate.Reply{Signals: make([]validate.ReplySignal, 0, len(types))}
	for _, st := range types {
		a := f.scorer.Assess(st, req.Segments)
		reply.Signals = append(reply.Signals, validate.ReplySignal{
			SignalType:  string(st),
			SignalValue: a.Value,
			Confidence:  FallbackConfidence,
			Explanation: fmt.Sprintf("%s [%s]", a.Explanation, reason),
		})
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("encode fallback reply: %w", err)
	}
	return &GenerateResponse{
		Text:           string(data),
		Model:          model.FallbackModelName,
		Latency:        fallbackLatency,
		Fallback:       true,
		FallbackReason: reason,
		FallbackCause:  cause,
	}, nil
}
