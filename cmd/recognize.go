package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
	"github.com/kozaktomas/vision-assist/internal/source"
	"github.com/kozaktomas/vision-assist/internal/web/handlers"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Identify the faces in image files",
	Long: `Run face detection and identification on one or more image files
and print the summary and per-face results.

Examples:
  # Identify faces in a photo
  vision-assist recognize family.jpg

  # Save the annotated image next to the original
  vision-assist recognize family.jpg --output-dir ./annotated

  # Stricter matching, JSON output
  vision-assist recognize family.jpg --threshold 0.8 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Match distance threshold (default MATCH_THRESHOLD)")
	recognizeCmd.Flags().String("output-dir", "", "Write annotated images to this directory")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput := mustGetBool(cmd, "json")
	outputDir := mustGetString(cmd, "output-dir")

	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.checkModel(ctx); err != nil {
		return err
	}

	g, err := svc.loadGallery(ctx, jsonOutput)
	if err != nil {
		return err
	}
	p := svc.newPipeline(g, mustGetFloat64(cmd, "threshold"))

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", outputDir, err)
		}
	}

	results := make(map[string]handlers.RecognizeResponse, len(args))
	for _, path := range args {
		frame, err := loadImageFile(path)
		if err != nil {
			return err
		}

		result, err := p.Process(ctx, frame)
		if err != nil {
			return fmt.Errorf("failed to process %s: %w", path, err)
		}

		if outputDir != "" {
			out := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+"_annotated.jpg")
			if err := writeJPEGFile(out, result.Image); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Printf("Annotated image saved to %s\n", out)
			}
		}

		if jsonOutput {
			results[path] = handlers.NewRecognizeResponse(result)
			continue
		}
		printRecognition(path, result)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

func printRecognition(path string, result *pipeline.AnnotatedResult) {
	fmt.Printf("\n%s\n", path)
	if result.DetectionFailed {
		fmt.Printf("  Face detection failed: %v\n", result.Err)
		return
	}
	fmt.Printf("  %s\n", strings.ReplaceAll(result.Summary, "\n", "\n  "))
	if len(result.Boxes) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  FACE\tBOX\tNAME\tDISTANCE\tCONFIDENCE")
	for _, b := range result.Boxes {
		name, distance, confidence := "-", "-", "-"
		switch {
		case b.Err != nil:
			name = "error: " + b.Err.Error()
		case b.Recognized():
			name = b.Outcome.Name
			confidence = fmt.Sprintf("%.2f%%", b.Outcome.Confidence)
			distance = fmt.Sprintf("%.4f", b.Outcome.Distance)
		case b.Outcome != nil:
			name = "unknown"
			if !math.IsInf(b.Outcome.Distance, 0) {
				distance = fmt.Sprintf("%.4f", b.Outcome.Distance)
			}
		}
		fmt.Fprintf(w, "  %s\t%v\t%s\t%s\t%s\n", b.Label, b.Rect, name, distance, confidence)
	}
	w.Flush()
}

func loadImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := source.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func writeJPEGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: constants.AnnotatedJPEGQuality}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
