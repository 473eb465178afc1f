package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"askhc/src/core/rag"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure retrieval quality against a JSONL evaluation set",
	Long: `Each line of the input file is a JSON object with a "query" and the
"expected_sources" that should be retrieved for it. The command reports the
hit rate and the mean recall at k.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringP("input", "i", "", "Input JSONL file path")
	evaluateCmd.MarkFlagRequired("input")
	evaluateCmd.Flags().IntP("k", "k", 0, "number of chunks to retrieve (default retriever.k)")
	evaluateCmd.Flags().Bool("json", false, "print the report as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	k, _ := cmd.Flags().GetInt("k")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if k <= 0 {
		k = cfg.Retriever.K
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.Default(-1, "evaluating")
	report, err := rag.Evaluate(ctx, f, a.chain, k, func() {
		bar.Add(1)
	})
	bar.Finish()
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("\nCases:       %d (%d skipped)\n", report.Total, report.Skipped)
	fmt.Printf("Hits:        %d\n", report.Hits)
	fmt.Printf("Hit rate@%d:  %.3f\n", k, report.HitRate)
	fmt.Printf("Recall@%d:    %.3f\n", k, report.MeanRecall)
	return nil
}
