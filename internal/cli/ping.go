package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskpilot/internal/llm"
	"github.com/ppiankov/riskpilot/internal/model"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the configured model endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		remote, err := a.remote()
		if err != nil && !errors.Is(err, model.ErrNoCredential) {
			return err
		}

		res := llm.Ping(context.Background(), remote)
		mark := "✓"
		if !res.Connected {
			mark = "✗"
		}
		fmt.Printf("%s %s\n", mark, res.Status)
		if res.Model != "" {
			fmt.Printf("  Model:    %s\n", res.Model)
		}
		if a.cfg.LLM.BaseURL != "" {
			fmt.Printf("  Endpoint: %s\n", a.cfg.LLM.BaseURL)
		}
		if res.Latency > 0 {
			fmt.Printf("  Latency:  %s\n", res.Latency)
		}
		if res.Details != "" {
			fmt.Printf("  Details:  %s\n", res.Details)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
