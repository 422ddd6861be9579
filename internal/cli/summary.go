package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	summaryProgram string
	summaryJSON    bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize token usage and spend",
	Long: `Summary totals the recorded cost metrics for one program, or for the whole
ledger when --program is omitted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		acct, err := a.accountant()
		if err != nil {
			return err
		}
		s, err := acct.Summary(context.Background(), summaryProgram)
		if err != nil {
			return err
		}
		if summaryJSON {
			return printJSON(s)
		}

		scope := s.ProgramID
		if scope == "" {
			scope = "all programs"
		}
		fmt.Printf("Cost summary: %s\n\n", scope)
		fmt.Printf("  Invocations:          %d\n", s.TotalInvocations)
		fmt.Printf("  Signals:              %d\n", s.TotalSignals)
		fmt.Printf("  Tokens:               %d\n", s.TotalTokens)
		fmt.Printf("  Cost (USD):           %s\n", s.TotalCostUSD.StringFixed(6))
		fmt.Printf("  Avg cost / signal:    %s\n", s.AvgCostPerSignal.StringFixed(6))
		fmt.Printf("  Avg tokens / signal:  %.1f\n", s.AvgTokensPerSignal)

		if len(s.ModelBreakdown) > 0 {
			models := make([]string, 0, len(s.ModelBreakdown))
			for m := range s.ModelBreakdown {
				models = append(models, m)
			}
			sort.Strings(models)
			fmt.Printf("\n  By model:\n")
			for _, m := range models {
				u := s.ModelBreakdown[m]
				fmt.Printf("    %-40s %4d calls %8d tokens  $%s\n", m, u.Invocations, u.Tokens, u.CostUSD.StringFixed(6))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringVar(&summaryProgram, "program", "", "only this program")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "print JSON")
}
