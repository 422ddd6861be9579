package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskpilot/internal/loader"
	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/normalize"
	"github.com/ppiankov/riskpilot/internal/pipeline"
	"github.com/ppiankov/riskpilot/internal/worker"
)

var (
	manifestPath   string
	analyzeTypes   []string
	declaredType   string
	analyzeJSON    bool
	showMetrics    bool
	offline        bool
	analyzeTimeout time.Duration
	workers        int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <program-id> [file|url]...",
	Short: "Analyze program inputs and record signals",
	Long: `Analyze loads each input (text, markdown, HTML, CSV, PDF, or an http(s) URL),
normalizes it, retrieves related context from earlier inputs of the same
program, and asks the model for signals. Signals, their cost and the input
are recorded in the ledger.

Inputs are analyzed in parallel and fail independently. Without a model
credential, or when the endpoint keeps failing, the rule-based generator
answers instead and the explanation says so.

Example:
  riskpilot analyze apollo status-week12.md costs.csv
  riskpilot analyze apollo --manifest inputs.txt --type delivery_risk
  riskpilot analyze apollo https://wiki.example.com/Apollo/Status --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&manifestPath, "manifest", "", "file listing inputs, one per line (optionally followed by a content type)")
	analyzeCmd.Flags().StringSliceVar(&analyzeTypes, "type", nil, "signal types to produce (default: chosen by document kind)")
	analyzeCmd.Flags().StringVar(&declaredType, "content-type", "", "content type of the listed files: text, csv, pdf, manual (default: detect)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().BoolVar(&showMetrics, "show-metrics", false, "print invocation metrics after the run")
	analyzeCmd.Flags().BoolVar(&offline, "offline", false, "use the rule-based generator even when a credential is configured")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 10*time.Minute, "overall timeout")
	analyzeCmd.Flags().IntVar(&workers, "workers", 0, "inputs analyzed in parallel (default: concurrency.workers)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	programID := args[0]

	types, err := parseTypes(analyzeTypes)
	if err != nil {
		return err
	}
	declared := model.ContentType(strings.ToLower(declaredType))
	if declared != "" && !declared.Valid() {
		return fmt.Errorf("unknown content type %q (supported: text, csv, pdf, manual)", declaredType)
	}

	sources := make([]worker.ManifestEntry, 0, len(args)-1)
	for _, src := range args[1:] {
		sources = append(sources, worker.ManifestEntry{Path: src, ContentType: declared})
	}
	if manifestPath != "" {
		entries, err := worker.ReadManifest(manifestPath)
		if err != nil {
			return err
		}
		sources = append(sources, entries...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no inputs: pass files or URLs, or --manifest")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if offline {
		a.cfg.LLM.Provider = "fallback"
	}
	if workers > 0 {
		a.cfg.Concurrency.Workers = workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, analyzeTimeout)
	defer cancel()

	client, err := a.client()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  riskpilot analyze\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Program:   %s\n", programID)
	fmt.Fprintf(os.Stderr, "  Inputs:    %d\n", len(sources))
	fmt.Fprintf(os.Stderr, "  Model:     %s\n", client.Name())
	if client.Offline() {
		fmt.Fprintf(os.Stderr, "  Mode:      rule-based (no credential)\n")
	}
	fmt.Fprintf(os.Stderr, "\n")

	fetcher := a.fetcher()
	raws := make([]normalize.RawInput, 0, len(sources))
	for _, src := range sources {
		var doc loader.Document
		if loader.IsURL(src.Path) {
			doc, err = fetcher.Fetch(ctx, src.Path, src.ContentType)
		} else {
			doc, err = loader.Load(src.Path, src.ContentType)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", src.Path, err)
			continue
		}
		raws = append(raws, normalize.RawInput{ContentType: doc.ContentType, Text: doc.Text, Filename: doc.Filename})
	}
	if len(raws) == 0 {
		return fmt.Errorf("no input could be loaded")
	}

	p, err := a.pipeline(client, types)
	if err != nil {
		return err
	}
	result, err := p.Analyze(ctx, programID, raws)
	p.Close()
	if result == nil {
		return err
	}

	if analyzeJSON {
		if jerr := printJSON(result); jerr != nil {
			return jerr
		}
	} else {
		printAnalyzeResult(result)
	}

	if showMetrics {
		if merr := printMetrics(a); merr != nil {
			return merr
		}
	}

	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	if result.Count(pipeline.StatusError) == len(result.Inputs) {
		return fmt.Errorf("no input was analyzed")
	}
	return nil
}

func parseTypes(values []string) ([]model.SignalType, error) {
	var out []model.SignalType
	for _, v := range values {
		t, ok := model.ParseSignalType(v)
		if !ok {
			return nil, fmt.Errorf("unknown signal type %q (supported: delivery_risk, cost_risk, ai_efficiency)", v)
		}
		out = append(out, t)
	}
	return out, nil
}

func printAnalyzeResult(r *pipeline.AnalyzeResult) {
	for _, in := range r.Inputs {
		name := in.Filename
		if name == "" {
			name = in.InputID
		}
		switch in.Status {
		case pipeline.StatusOK:
			fmt.Fprintf(os.Stderr, "✓ %s (%s, %d signals)\n", name, in.DocumentKind, len(in.Signals))
		case pipeline.StatusParseFailure:
			fmt.Fprintf(os.Stderr, "⚠ %s: %s\n", name, in.Error)
		default:
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", name, in.Error)
		}
		if in.Fallback {
			fmt.Fprintf(os.Stderr, "    fallback: %s\n", in.FallbackReason)
		}
		if in.TruncationApplied {
			fmt.Fprintf(os.Stderr, "    prompt truncated to fit the budget\n")
		}
		for _, rej := range in.Rejected {
			fmt.Fprintf(os.Stderr, "    rejected %s\n", rej)
		}
	}
	fmt.Fprintln(os.Stderr)

	for _, s := range r.Signals {
		fmt.Printf("%s  %-14s %-9s %.2f  %s\n", s.ID, s.SignalType, s.SignalValue, s.ConfidenceScore, s.Explanation)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Signals:    %d\n", len(r.Signals))
	fmt.Fprintf(os.Stderr, "  Tokens:     %d\n", r.TotalTokens)
	fmt.Fprintf(os.Stderr, "  Cost (USD): %s\n", r.TotalCostUSD.StringFixed(6))
	if r.Fallbacks > 0 {
		fmt.Fprintf(os.Stderr, "  Fallbacks:  %d\n", r.Fallbacks)
	}
	fmt.Fprintf(os.Stderr, "\n")
}

func printMetrics(a *app) error {
	snap, err := a.metrics.Snapshot()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(os.Stderr, "Metrics:\n")
	for _, k := range keys {
		fmt.Fprintf(os.Stderr, "  %-70s %g\n", k, snap[k])
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
