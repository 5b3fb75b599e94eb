package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdfrag/src/core/rag"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure retrieval quality over a JSONL evaluation set",
	Long: `Each line of the input is a JSON object with tenant, namespace, query and a list
of expected snippets. A case scores the fraction of expected snippets found in the
passages that pass the relevance gate.`,
	RunE: Evaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("input", "i", "", "Evaluation JSONL file path")
	evaluateCmd.MarkFlagRequired("input")
}

func Evaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	inputPath, _ := cmd.Flags().GetString("input")

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := rag.Evaluate(ctx, a.pipeline, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cases: %d (skipped %d)\n", report.Cases, report.Skipped)
	fmt.Fprintf(out, "Average score: %.4f\n", report.AverageScore)
	for _, q := range report.Misses {
		fmt.Fprintf(out, "Miss: %s\n", q)
	}
	return nil
}
