package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/ai"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/monitor"
	"github.com/kozaktomas/vision-assist/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and the camera monitor",
	Long: `Start the Vision Assist web server.

The server exposes the enrollment and recognition API and a browser viewer.
When a camera is configured (CAMERA_URL or CAMERA_DEVICE, or --url/--device/--dir)
its frames are processed one at a time and streamed to the viewer.

The gallery is rebuilt whenever the enrolled faces change, including changes
made by other processes sharing the same PostgreSQL database.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-camera", false, "Do not start the camera monitor")
	addSourceFlags(serveCmd)
}

// watchStoreChanges keeps feed up to date. Stores observing their own
// storage publish every committed change; other stores are wrapped so that
// writes through this process are published.
func watchStoreChanges(ctx context.Context, store database.FaceStore, feed *database.Feed) database.FaceStore {
	cs, ok := store.(database.ChangeSource)
	if !ok {
		return database.NewNotifyingStore(store, feed)
	}

	go func() {
		err := cs.WatchChanges(ctx, func() {
			if err := feed.Publish(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("failed to publish face list", "error", err)
			}
		})
		if err != nil {
			slog.Error("face change listener stopped", "error", err)
		}
	}()
	return store
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cmd)
	if err != nil {
		return err
	}
	defer svc.Close()
	cfg := svc.cfg

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	if err := svc.checkModel(ctx); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}

	// Gallery follows the store through the change feed.
	feed := database.NewFeed(svc.store, slog.Default())
	store := watchStoreChanges(ctx, svc.store, feed)

	updates, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to face changes: %w", err)
	}
	g, err := svc.buildGallery(ctx, <-updates, false)
	if err != nil {
		return err
	}
	go func() {
		if err := g.Watch(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("gallery watcher stopped", "error", err)
		}
	}()
	fmt.Printf("Gallery ready with %d faces\n", g.Load().Len())

	p := svc.newPipeline(g, 0)
	hub := monitor.NewHub()
	announcer := monitor.NewAnnouncer(cfg.Camera.Announce)

	summarizer, err := ai.New(ctx, "", cfg)
	if err != nil {
		fmt.Printf("Document summarization disabled: %v\n", err)
		summarizer = nil
	}

	deps := web.Deps{
		Faces:      store,
		Enroll:     svc.enrollService(store),
		Gallery:    g,
		Processor:  p,
		Hub:        hub,
		Announcer:  announcer,
		Summarizer: summarizer,
	}

	var mon *monitor.Monitor
	if !mustGetBool(cmd, "no-camera") {
		src, err := openSource(cmd, cfg)
		switch {
		case errors.Is(err, errNoSource):
			fmt.Println("No camera configured, monitor disabled")
		case err != nil:
			return fmt.Errorf("failed to open frame source: %w", err)
		default:
			defer src.Close()
			mon = monitor.New(src, p, monitor.MultiSink{hub, announcer}, monitor.Options{
				PollDelay:     cfg.Camera.PollDelay,
				SkipUnchanged: cfg.Camera.SkipUnchanged,
				Logger:        slog.Default(),
			})
			deps.Stats = mon.Stats
		}
	}

	server := web.NewServer(cfg, deps)

	if mon != nil {
		go func() {
			err := mon.Run(ctx)
			switch {
			case err == nil:
				fmt.Println("Frame source finished")
			case errors.Is(err, context.Canceled):
			default:
				slog.Error("camera monitor stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Vision Assist on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
