package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/ai"
	"github.com/kozaktomas/vision-assist/internal/config"
	"github.com/kozaktomas/vision-assist/internal/constants"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a text document",
	Long: `Summarize a text document with an AI model. The document is read from
the file, or from stdin when no file is given.

The provider defaults to Gemini when GEMINI_API_KEY is set, then OpenAI when
OPENAI_TOKEN is set, and a local Ollama otherwise.

Examples:
  vision-assist summarize letter.txt
  vision-assist summarize letter.txt --instruction "What do I need to pay and when?"
  cat notes.txt | vision-assist summarize --provider ollama --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().StringP("instruction", "i", "", "What the summary should focus on")
	summarizeCmd.Flags().String("provider", "", "AI provider: gemini, openai or ollama")
	summarizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func readDocument(args []string) (string, error) {
	r := io.Reader(os.Stdin)
	name := "stdin"
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		r, name = f, args[0]
	}

	data, err := io.ReadAll(io.LimitReader(r, constants.MaxSummaryDocumentSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	document, err := readDocument(args)
	if err != nil {
		return err
	}
	if err := ai.ValidateDocument(document); err != nil {
		return err
	}

	summarizer, err := ai.New(ctx, mustGetString(cmd, "provider"), cfg)
	if err != nil {
		return err
	}

	summary, err := summarizer.Summarize(ctx, document, mustGetString(cmd, "instruction"))
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Println(summary.Text)
	if len(summary.KeyPoints) > 0 {
		fmt.Println()
		for _, p := range summary.KeyPoints {
			fmt.Printf("  - %s\n", p)
		}
	}

	usage := summarizer.GetUsage()
	fmt.Printf("\n%s via %s: %d input / %d output tokens, $%.4f\n",
		summary.Model, summarizer.Name(), usage.InputTokens, usage.OutputTokens, usage.TotalCost)
	return nil
}
