package llm

import (
	"context"
	"errors"

	"github.com/ppiankov/riskpilot/internal/logger"
)

// ResilientClient tries the remote endpoint and falls back to rule-based
// generation when it is missing, exhausts its retries or fails permanently.
// Generate only returns an error when ctx is done.
type ResilientClient struct {
	remote   Client // nil when no credential is configured
	fallback *FallbackClient
	log      logger.Logger
}

// NewResilientClient composes remote (may be nil) with fallback
func NewResilientClient(remote Client, fallback *FallbackClient, log logger.Logger) *ResilientClient {
	if fallback == nil {
		fallback = NewFallbackClient(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResilientClient{remote: remote, fallback: fallback, log: log}
}

// Name reports the remote model, or the fallback when running offline
func (r *ResilientClient) Name() string {
	if r.remote == nil {
		return r.fallback.Name()
	}
	return r.remote.Name()
}

// Offline reports whether every call goes to the rule-based generator
func (r *ResilientClient) Offline() bool {
	return r.remote == nil
}

func (r *ResilientClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if r.remote == nil {
		return r.fallback.Generate(ctx, req)
	}

	resp, err := r.remote.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil, err
	}

	r.log.Warn("endpoint failed, using rule-based fallback",
		"input_id", req.InputID, "class", Classify(err).String(), "err", err)
	return r.fallback.Recover(ctx, req, err)
}
