package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/monitor"
	"github.com/kozaktomas/vision-assist/internal/web/handlers"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the camera monitor in the terminal",
	Long: `Process camera frames one at a time and print the summary of each frame.

Examples:
  # Poll a network camera snapshot endpoint
  vision-assist watch --url http://camera.local/snapshot.jpg

  # Capture from a local webcam, printing only changed summaries
  vision-assist watch --device /dev/video0 --changes-only

  # Replay a directory of images and keep the annotated frames
  vision-assist watch --dir ./frames --save-dir ./annotated`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addSourceFlags(watchCmd)
	watchCmd.Flags().Float64("threshold", 0, "Match distance threshold (default MATCH_THRESHOLD)")
	watchCmd.Flags().Duration("delay", -1, "Delay between frames (default CAMERA_POLL_DELAY)")
	watchCmd.Flags().Bool("skip-unchanged", false, "Skip frames that look like the previous one")
	watchCmd.Flags().Bool("changes-only", false, "Print a summary only when it differs from the previous one")
	watchCmd.Flags().String("save-dir", "", "Write annotated frames to this directory")
	watchCmd.Flags().Bool("json", false, "Print one JSON object per frame")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	cfg := svc.cfg

	if err := svc.checkModel(ctx); err != nil {
		return err
	}

	src, err := openSource(cmd, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	jsonOutput := mustGetBool(cmd, "json")
	g, err := svc.loadGallery(ctx, jsonOutput)
	if err != nil {
		return err
	}

	saveDir := mustGetString(cmd, "save-dir")
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", saveDir, err)
		}
	}

	sinks := monitor.MultiSink{monitor.SinkFunc(func(_ context.Context, frame monitor.Frame) error {
		return printFrame(frame, jsonOutput)
	})}
	if saveDir != "" {
		sinks = append(sinks, monitor.SinkFunc(func(_ context.Context, frame monitor.Frame) error {
			return saveFrame(saveDir, frame)
		}))
	}

	var sink monitor.Sink = sinks
	if mustGetBool(cmd, "changes-only") && !jsonOutput {
		announcer := monitor.NewAnnouncer(true)
		ch := announcer.AddListener()
		defer announcer.RemoveListener(ch)
		go func() {
			for ann := range ch {
				fmt.Printf("[%s] %s\n", ann.At.Format("15:04:05"), ann.Text)
			}
		}()
		sink = announcer
		if saveDir != "" {
			sink = monitor.MultiSink{announcer, sinks[1]}
		}
	}

	delay := cfg.Camera.PollDelay
	if d := mustGetDuration(cmd, "delay"); d >= 0 {
		delay = d
	}

	mon := monitor.New(src, svc.newPipeline(g, mustGetFloat64(cmd, "threshold")), sink, monitor.Options{
		PollDelay:     delay,
		SkipUnchanged: cfg.Camera.SkipUnchanged || mustGetBool(cmd, "skip-unchanged"),
	})

	if !jsonOutput {
		fmt.Printf("Watching with %d enrolled faces, press Ctrl+C to stop\n\n", g.Load().Len())
	}

	err = mon.Run(ctx)
	if !jsonOutput {
		stats := mon.Stats()
		fmt.Printf("\nFrames: %d fetched, %d processed, %d unchanged, %d fetch errors\n",
			stats.Fetched, stats.Delivered, stats.Unchanged, stats.FetchErrors)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printFrame(frame monitor.Frame, jsonOutput bool) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"id":          frame.ID,
			"seq":         frame.Seq,
			"captured_at": frame.CapturedAt,
			"duration_ms": frame.Duration.Milliseconds(),
			"result":      handlers.NewRecognizeResponse(frame.Result),
		})
	}

	summary := frame.Result.Summary
	if frame.Result.DetectionFailed {
		summary = fmt.Sprintf("detection failed: %v", frame.Result.Err)
	}
	fmt.Printf("#%d [%s] %s\n", frame.Seq, frame.Duration.Round(time.Millisecond), summary)
	return nil
}

func saveFrame(dir string, frame monitor.Frame) error {
	return writeJPEGFile(filepath.Join(dir, fmt.Sprintf("frame-%06d.jpg", frame.Seq)), frame.Result.Image)
}
