package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the per-program context index",
}

var indexReindexCmd = &cobra.Command{
	Use:   "reindex <program-id>",
	Short: "Rebuild a program's index from the inputs stored in the ledger",
	Long: `Reindex re-embeds every stored input of the program. Use it after changing
the embedding provider or model.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		inputs, err := a.ledger.Inputs(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.index.Reindex(ctx, args[0], inputs); err != nil {
			return err
		}
		fmt.Printf("✓ Reindexed %d inputs for %s\n", len(inputs), args[0])
		return nil
	},
}

var indexClearCmd = &cobra.Command{
	Use:   "clear <program-id>",
	Short: "Drop a program's index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.index.Clear(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Cleared index for %s\n", args[0])
		return nil
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats <program-id>",
	Short: "Show index size for a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.index.Stats(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Program:    %s\n", st.ProgramID)
		fmt.Printf("Inputs:     %d\n", st.Inputs)
		fmt.Printf("Segments:   %d\n", st.Segments)
		fmt.Printf("Dimension:  %d\n", st.Dimension)
		fmt.Printf("Embedder:   %s\n", st.Model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexReindexCmd, indexClearCmd, indexStatsCmd)
}
