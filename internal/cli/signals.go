package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskpilot/internal/ledger"
	"github.com/ppiankov/riskpilot/internal/model"
)

var (
	listProgram string
	listInput   string
	listType    string
	listValue   string
	listLimit   int
	listJSON    bool
	showJSON    bool

	overrideValue         string
	overrideJustification string
	overrideAnalyst       string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Inspect recorded signals",
}

var signalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signals with their effective values",
	Long: `List signals in creation order. The effective value is the latest analyst
override, or the generated value when there is none; --value filters on it.

Example:
  riskpilot signals list --program apollo --type delivery_risk --value HIGH`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := ledger.Filter{ProgramID: listProgram, InputID: listInput, EffectiveValue: model.CanonicalValue(listValue), Limit: listLimit}
		if listType != "" {
			t, ok := model.ParseSignalType(listType)
			if !ok {
				return fmt.Errorf("unknown signal type %q", listType)
			}
			f.SignalType = t
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		views, err := a.ledger.List(context.Background(), f)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(views)
		}
		if len(views) == 0 {
			fmt.Fprintln(os.Stderr, "No signals found")
			return nil
		}
		for _, v := range views {
			marker := " "
			if v.Overridden {
				marker = "*"
			}
			fmt.Printf("%s  %-12s %-14s %-9s%s %.2f  %s\n",
				v.ID, v.ProgramID, v.SignalType, v.EffectiveValue, marker, v.ConfidenceScore, v.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(os.Stderr, "\n%d signals (* = overridden)\n", len(views))
		return nil
	},
}

var signalsShowCmd = &cobra.Command{
	Use:   "show <signal-id>",
	Short: "Show one signal with its override history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		view, err := a.ledger.Get(ctx, args[0])
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("signal %s not found", args[0])
		}
		if err != nil {
			return err
		}
		history, err := a.ledger.Overrides(ctx, view.ID)
		if err != nil {
			return err
		}

		if showJSON {
			return printJSON(struct {
				model.SignalView
				Overrides []model.Override `json:"overrides"`
			}{view, history})
		}

		fmt.Printf("Signal:      %s\n", view.ID)
		fmt.Printf("Program:     %s\n", view.ProgramID)
		fmt.Printf("Input:       %s\n", view.InputID)
		fmt.Printf("Type:        %s\n", view.SignalType)
		fmt.Printf("Value:       %s\n", view.SignalValue)
		fmt.Printf("Effective:   %s\n", view.EffectiveValue)
		fmt.Printf("Confidence:  %.2f\n", view.ConfidenceScore)
		fmt.Printf("Model:       %s\n", view.ModelUsed)
		fmt.Printf("Created:     %s\n", view.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("\n%s\n", view.Explanation)

		if len(history) > 0 {
			fmt.Printf("\nOverrides:\n")
			for _, o := range history {
				fmt.Printf("  %s  %s → %s by %s\n    %s\n",
					o.CreatedAt.Format("2006-01-02 15:04"), o.OriginalValue, o.OverrideValue, o.AnalystName, o.Justification)
			}
		}
		return nil
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override <signal-id>",
	Short: "Record an analyst override for a signal",
	Long: `Override replaces a signal's effective value without touching the signal
itself. Overrides are append-only; the latest one wins.

Example:
  riskpilot override 6f1c... --value MEDIUM --analyst "J. Rivera" \
    --justification "Vendor confirmed the revised delivery date"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		o, err := a.ledger.Override(context.Background(), ledger.OverrideRequest{
			SignalID:      args[0],
			Value:         overrideValue,
			Justification: overrideJustification,
			AnalystName:   overrideAnalyst,
		})
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			return fmt.Errorf("override rejected: %s", verr.Error())
		case errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("signal %s not found", args[0])
		case err != nil:
			return err
		}

		fmt.Printf("✓ %s: %s → %s (override %s)\n", o.SignalID, o.OriginalValue, o.OverrideValue, o.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd, overrideCmd)
	signalsCmd.AddCommand(signalsListCmd, signalsShowCmd)

	signalsListCmd.Flags().StringVar(&listProgram, "program", "", "only this program")
	signalsListCmd.Flags().StringVar(&listInput, "input", "", "only this input")
	signalsListCmd.Flags().StringVar(&listType, "type", "", "only this signal type")
	signalsListCmd.Flags().StringVar(&listValue, "value", "", "only this effective value")
	signalsListCmd.Flags().IntVar(&listLimit, "limit", 0, "at most this many signals")
	signalsListCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")

	signalsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print JSON")

	overrideCmd.Flags().StringVar(&overrideValue, "value", "", "new value from the signal type's vocabulary")
	overrideCmd.Flags().StringVar(&overrideJustification, "justification", "", "why the value changes (at least 10 characters)")
	overrideCmd.Flags().StringVar(&overrideAnalyst, "analyst", strings.TrimSpace(os.Getenv("USER")), "analyst name")
	_ = overrideCmd.MarkFlagRequired("value")
	_ = overrideCmd.MarkFlagRequired("justification")
}
