package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/ppiankov/riskpilot/internal/llm"
	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/metrics"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/normalize"
	"github.com/ppiankov/riskpilot/internal/validate"
	"github.com/ppiankov/riskpilot/internal/worker"
)

// inputJob analyzes one raw input on a pool worker
type inputJob struct {
	p   *Pipeline
	raw normalize.RawInput
	log logger.Logger
}

func (j *inputJob) Execute(ctx context.Context) worker.Result {
	res := &InputResult{InputID: j.raw.InputID, Filename: j.raw.Filename}
	j.run(ctx, res)
	if res.failure != nil {
		j.log.Warn("input failed", "status", res.Status, "err", res.failure)
	}
	return res
}

func (j *inputJob) fail(res *InputResult, status Status, err error) {
	res.Status = status
	res.failure = err
}

func (j *inputJob) run(ctx context.Context, res *InputResult) {
	p := j.p

	in, err := p.normalizer.Normalize(j.raw)
	if err != nil {
		j.fail(res, StatusError, err)
		return
	}
	res.DocumentKind = in.DocumentKind

	if err := p.ledger.SaveInput(ctx, in); err != nil {
		res.PersistenceFailed = true
		j.fail(res, StatusError, fmt.Errorf("save input: %w", err))
		return
	}
	p.indexAsync(ctx, in, j.log)

	types := p.opts.SignalTypes
	if len(types) == 0 {
		types = in.DocumentKind.SignalTypes()
	}
	res.SignalTypes = types

	retrieved := j.retrieve(ctx, in, types)
	res.Retrieved = len(retrieved)

	instruction := llm.Instruction(types, in.DocumentKind, p.opts.JSONMode)
	pc, err := llm.BuildPromptContext(instruction, in.Segments, retrieved, p.opts.PromptMaxChars)
	if err != nil {
		j.fail(res, StatusError, err)
		return
	}
	res.TruncationApplied = pc.TruncationApplied
	prompt := pc.Render()

	resp, err := p.client.Generate(ctx, llm.GenerateRequest{
		ProgramID:   in.ProgramID,
		InputID:     in.InputID,
		SignalTypes: types,
		Prompt:      prompt,
		Segments:    in.Segments,
	})
	if err != nil {
		p.opts.Metrics.ObserveInvocation(p.client.Name(), metrics.OutcomeError, 0, 0, 0)
		j.fail(res, StatusError, fmt.Errorf("generate: %w", err))
		return
	}
	res.Fallback = resp.Fallback
	res.FallbackReason = resp.FallbackReason
	if resp.Fallback {
		p.opts.Metrics.Fallback(resp.FallbackCause)
	}

	metric := p.accountant.Estimate(prompt, resp.Text, resp.Model, resp.Usage)
	metric.ID = uuid.NewString()
	metric.LatencyMS = resp.Latency.Milliseconds()

	parsed, parseErr := validate.Parse(resp.Text, validate.DraftDefaults{
		Requested: types,
		ModelUsed: resp.Model,
		TokensIn:  metric.TokensIn,
		TokensOut: metric.TokensOut,
	})
	res.Strategy = parsed.Strategy
	res.Rejected = parsed.Rejected
	for _, r := range parsed.Rejected {
		j.log.Warn("draft rejected", "draft", r.Index, "signal_type", r.SignalType, "value", r.Value, "reason", r.Reason)
	}
	if len(parsed.Rejected) > 0 {
		p.opts.Metrics.Rejected(string(parsed.Strategy), len(parsed.Rejected))
	}

	outcome := metrics.OutcomeOK
	if parseErr != nil {
		outcome = metrics.OutcomeParseFailure
	}
	p.opts.Metrics.ObserveInvocation(resp.Model, outcome, resp.Latency, metric.TokensIn, metric.TokensOut)

	// The invocation is paid for even when nothing usable came back
	signals, err := p.accountant.Record(ctx, metric, parsed.Drafts, in.ProgramID, in.InputID)
	if err != nil {
		res.PersistenceFailed = true
		j.fail(res, StatusError, err)
		return
	}
	res.CostMetric = &metric
	res.Signals = signals
	for _, s := range signals {
		p.opts.Metrics.Signal(string(s.SignalType), s.SignalValue)
	}

	if parseErr != nil {
		j.fail(res, StatusParseFailure, parseErr)
		return
	}
	res.Status = StatusOK
	j.log.Debug("input analyzed", "signals", len(signals), "model", resp.Model, "tokens", metric.TokensTotal)
}

// retrieve gathers context for every requested type, keeping the best score
// per segment and leaving out the input's own segments. An unavailable
// embedding backend disables augmentation for this input.
func (j *inputJob) retrieve(ctx context.Context, in model.NormalizedInput, types []model.SignalType) []model.ScoredSegment {
	k := j.p.opts.TopK
	best := make(map[string]model.ScoredSegment)
	for _, st := range types {
		hits, err := j.p.index.Retrieve(ctx, in.ProgramID, llm.QueryFor(st), k+len(in.Segments))
		if err != nil {
			if errors.Is(err, model.ErrEmbeddingUnavailable) {
				j.log.Warn("retrieval unavailable, continuing without context", "err", err)
			} else {
				j.log.Warn("retrieval failed, continuing without context", "err", err)
			}
			return nil
		}
		for _, h := range hits {
			if h.SourceInputID == in.InputID {
				continue
			}
			if prev, ok := best[h.ID]; !ok || h.Score > prev.Score {
				best[h.ID] = h
			}
		}
	}

	out := make([]model.ScoredSegment, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Seq > out[b].Seq
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
