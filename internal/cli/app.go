package cli

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/riskpilot/internal/cost"
	"github.com/ppiankov/riskpilot/internal/index"
	"github.com/ppiankov/riskpilot/internal/ledger"
	"github.com/ppiankov/riskpilot/internal/llm"
	"github.com/ppiankov/riskpilot/internal/loader"
	"github.com/ppiankov/riskpilot/internal/logger"
	"github.com/ppiankov/riskpilot/internal/metrics"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/normalize"
	"github.com/ppiankov/riskpilot/internal/pipeline"
	"github.com/ppiankov/riskpilot/internal/util"
	"github.com/ppiankov/riskpilot/internal/worker"
)

// app holds the components a command needs, built once from config
type app struct {
	cfg     *model.Config
	log     logger.Logger
	ledger  *ledger.Ledger
	index   *index.Index
	metrics *metrics.Metrics
	limiter *worker.Limiter
}

// newApp loads config and opens the ledger and index
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.LLM = llm.ResolveConfig(cfg.LLM, os.Getenv)

	log := logger.New(logger.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	if err := os.MkdirAll(filepath.Dir(cfg.Ledger.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	embedder, err := index.NewEmbedder(cfg.Embedding, cfg.LLM, cfg.Cache)
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		ledger:  l,
		index:   index.New(embedder, index.Options{Dir: cfg.Index.Dir, MinScore: cfg.Index.MinScore, Logger: log}),
		metrics: metrics.New(),
		limiter: worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
	}, nil
}

func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.log.Warn("close ledger", "err", err)
	}
}

// httpClient honours the configured proxy settings
func (a *app) httpClient(timeoutSeconds int) *http.Client {
	proxy := util.ProxyConfig{HTTPProxy: a.cfg.LLM.HTTPProxy, HTTPSProxy: a.cfg.LLM.HTTPSProxy, NoProxy: a.cfg.LLM.NoProxy}
	return util.NewHTTPClient(time.Duration(timeoutSeconds)*time.Second, proxy)
}

// remote builds the configured remote client; model.ErrNoCredential when none is configured
func (a *app) remote() (*llm.RemoteClient, error) {
	return llm.NewRemoteFromConfig(a.cfg.LLM, a.deps())
}

func (a *app) client() (*llm.ResilientClient, error) {
	return llm.NewClient(a.cfg.LLM, a.deps())
}

func (a *app) deps() llm.Deps {
	return llm.Deps{
		HTTPClient: a.httpClient(a.cfg.LLM.Timeout),
		Limiter:    a.limiter,
		Logger:     a.log,
	}
}

func (a *app) fetcher() *loader.Fetcher {
	return loader.NewFetcher(a.cfg.Fetch, a.httpClient(a.cfg.Fetch.Timeout))
}

func (a *app) accountant() (*cost.Accountant, error) {
	prices, err := cost.NewPriceTable(a.cfg.Cost)
	if err != nil {
		return nil, err
	}
	return cost.NewAccountant(prices, a.ledger), nil
}

func (a *app) pipeline(client llm.Client, types []model.SignalType) (*pipeline.Pipeline, error) {
	acct, err := a.accountant()
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		types = a.cfg.Analysis.Types()
	}
	return pipeline.New(
		normalize.NewNormalizer(a.cfg.Normalize.MaxSegmentChars, a.cfg.Normalize.MaxCSVRows),
		a.index,
		client,
		acct,
		a.ledger,
		pipeline.Options{
			Workers:        a.cfg.Concurrency.Workers,
			TopK:           a.cfg.Index.TopK,
			PromptMaxChars: a.cfg.Prompt.MaxChars,
			JSONMode:       a.cfg.LLM.JSONMode,
			SignalTypes:    types,
			Logger:         a.log,
			Metrics:        a.metrics,
		},
	), nil
}
