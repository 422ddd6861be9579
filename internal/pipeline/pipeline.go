package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ppiankov/riskpilot/internal/cost"
	"github.com/ppiankov/riskpilot/internal/llm"
	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/metrics"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/normalize"
	"github.com/ppiankov/riskpilot/internal/worker"
)

// Ledger is the persistence the pipeline writes through
type Ledger interface {
	cost.Ledger
	SaveInput(ctx context.Context, in model.NormalizedInput) error
}

// Index is the per-program context index
type Index interface {
	Insert(ctx context.Context, programID string, segments []model.Segment) error
	Retrieve(ctx context.Context, programID, query string, k int) ([]model.ScoredSegment, error)
}

// Options tune one pipeline
type Options struct {
	Workers        int
	TopK           int
	PromptMaxChars int
	JSONMode       bool

	// SignalTypes forces the analyzed types; empty routes by document kind
	SignalTypes []model.SignalType

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Pipeline runs normalize → retrieve → generate → parse → account → persist
// for each input of a program
type Pipeline struct {
	normalizer *normalize.Normalizer
	index      Index
	client     llm.Client
	accountant *cost.Accountant
	ledger     Ledger
	opts       Options
	log        logger.Logger

	// background index inserts, awaited by Close
	inserts sync.WaitGroup
}

// New wires a pipeline. The accountant must record through ledger.
func New(normalizer *normalize.Normalizer, index Index, client llm.Client, accountant *cost.Accountant, ledger Ledger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Pipeline{
		normalizer: normalizer,
		index:      index,
		client:     client,
		accountant: accountant,
		ledger:     ledger,
		opts:       opts,
		log:        opts.Logger,
	}
}

// Analyze processes inputs concurrently and reports per-input outcomes.
// Inputs fail independently; the returned error is non-nil only when every
// input failed to persist or ctx was cancelled.
func (p *Pipeline) Analyze(ctx context.Context, programID string, inputs []normalize.RawInput) (*AnalyzeResult, error) {
	if programID == "" {
		return nil, &model.ValidationError{Field: "program_id", Reason: "must not be empty"}
	}

	log := p.log.With("program_id", programID)
	log.Info("analyzing inputs", "inputs", len(inputs), "client", p.client.Name())

	raws := make([]normalize.RawInput, len(inputs))
	for i, raw := range inputs {
		raw.ProgramID = programID
		if raw.InputID == "" {
			raw.InputID = uuid.NewString()
		}
		raws[i] = raw
	}

	pool := worker.NewPool(ctx, p.opts.Workers)
	pool.Start()
	for _, raw := range raws {
		if err := pool.Submit(&inputJob{p: p, raw: raw, log: log.With("input_id", raw.InputID)}); err != nil {
			break
		}
	}
	results := pool.Wait()

	out := &AnalyzeResult{ProgramID: programID, TotalCostUSD: decimal.Zero}
	persistFailures := 0
	for i, r := range results {
		ir, ok := r.(*InputResult)
		if !ok {
			ir = &InputResult{InputID: raws[i].InputID, Filename: raws[i].Filename, Status: StatusError, failure: r.Err()}
		}
		if ir.PersistenceFailed {
			persistFailures++
		}
		out.add(ir)
	}

	log.Info("analysis finished",
		"ok", out.Count(StatusOK),
		"parse_failures", out.Count(StatusParseFailure),
		"errors", out.Count(StatusError),
		"signals", len(out.Signals),
		"cost_usd", out.TotalCostUSD.String())

	if err := ctx.Err(); err != nil {
		return out, err
	}
	if len(results) > 0 && persistFailures == len(results) {
		return out, fmt.Errorf("%w: %v", ErrPersistence, out.Inputs[0].Err())
	}
	return out, nil
}

// ErrPersistence means no input could be written to the ledger
var ErrPersistence = errors.New("every input failed to persist")

// Close waits for background index inserts to finish
func (p *Pipeline) Close() {
	p.inserts.Wait()
}

// indexAsync inserts segments in the background. Failures are logged; the
// index can always be rebuilt with Reindex.
func (p *Pipeline) indexAsync(ctx context.Context, in model.NormalizedInput, log logger.Logger) {
	p.inserts.Add(1)
	go func() {
		defer p.inserts.Done()
		if err := p.index.Insert(context.WithoutCancel(ctx), in.ProgramID, model.SegmentsOf(in)); err != nil {
			log.Warn("index insert failed", "err", err)
		}
	}()
}
