// Demo program: analyzes a small sample program offline with the rule-based
// generator, then records an analyst override and prints the cost summary
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/riskpilot/internal/cost"
	"github.com/ppiankov/riskpilot/internal/index"
	"github.com/ppiankov/riskpilot/internal/ledger"
	"github.com/ppiankov/riskpilot/internal/llm"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/normalize"
	"github.com/ppiankov/riskpilot/internal/pipeline"
)

var samples = []normalize.RawInput{
	{
		Filename:    "status_week12.md",
		ContentType: model.ContentText,
		Text: `# Weekly Status - Week 12

Milestone 3 is 6 weeks delayed due to staffing shortfall.
The vendor integration is blocked pending security review.`,
	},
	{
		Filename:    "cloud_costs.csv",
		ContentType: model.ContentCSV,
		Text: `category,planned,actual
compute,12000,25800
storage,3000,3100
licenses,5000,5000`,
	},
	{
		Filename:    "ai_usage.txt",
		ContentType: model.ContentText,
		Text:        "Prompt caching cut token usage by 40% this sprint. Automation now covers ticket triage.",
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fmt.Println("=== riskpilot offline demo ===")
	fmt.Println()

	dir, err := os.MkdirTemp("", "riskpilot-demo")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	l, err := ledger.Open(filepath.Join(dir, "demo.db"))
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	cfg := model.DefaultConfig()
	prices, err := cost.NewPriceTable(cfg.Cost)
	if err != nil {
		return err
	}
	acct := cost.NewAccountant(prices, l)

	p := pipeline.New(
		normalize.NewNormalizer(cfg.Normalize.MaxSegmentChars, cfg.Normalize.MaxCSVRows),
		index.New(index.NewHashEmbedder(cfg.Embedding.Dimension), index.Options{MinScore: cfg.Index.MinScore}),
		llm.NewResilientClient(nil, llm.NewFallbackClient(nil), nil),
		acct,
		l,
		pipeline.Options{Workers: 2, TopK: cfg.Index.TopK, PromptMaxChars: cfg.Prompt.MaxChars},
	)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := p.Analyze(ctx, "program_demo", samples)
	if err != nil {
		return err
	}

	for _, in := range res.Inputs {
		fmt.Printf("%s (%s): %s\n", in.Filename, in.DocumentKind, in.Status)
		fmt.Println(strings.Repeat("-", 60))
		for _, s := range in.Signals {
			fmt.Printf("  %-14s %-9s %.2f\n", s.SignalType, s.SignalValue, s.ConfidenceScore)
			fmt.Printf("    %s\n", s.Explanation)
		}
		fmt.Println()
	}

	for _, target := range res.Signals {
		if target.SignalType != model.SignalDeliveryRisk {
			continue
		}
		o, err := l.Override(ctx, ledger.OverrideRequest{
			SignalID:      target.ID,
			Value:         "MEDIUM",
			Justification: "Recovery plan approved; two contractors start Monday.",
			AnalystName:   "demo analyst",
		})
		if err != nil {
			return err
		}
		effective, err := l.EffectiveValue(ctx, target.ID)
		if err != nil {
			return err
		}
		fmt.Printf("Override: %s %s → %s (effective now %s)\n\n", target.SignalType, o.OriginalValue, o.OverrideValue, effective)
		break
	}

	summary, err := acct.Summary(ctx, "program_demo")
	if err != nil {
		return err
	}
	fmt.Printf("Invocations: %d, signals: %d, tokens: %d, cost: $%s\n",
		summary.TotalInvocations, summary.TotalSignals, summary.TotalTokens, summary.TotalCostUSD.StringFixed(6))
	fmt.Println()
	fmt.Println("Note: no model credential is used here; every signal comes from the")
	fmt.Println("rule-based generator and is marked as demo mode in its explanation.")
	return nil
}
