package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/vision-assist/internal/config"
	"github.com/kozaktomas/vision-assist/internal/database"
	_ "github.com/kozaktomas/vision-assist/internal/database/memory"
	_ "github.com/kozaktomas/vision-assist/internal/database/postgres"
	"github.com/kozaktomas/vision-assist/internal/embedding"
	"github.com/kozaktomas/vision-assist/internal/enroll"
	"github.com/kozaktomas/vision-assist/internal/gallery"
	"github.com/kozaktomas/vision-assist/internal/inference"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
	"github.com/kozaktomas/vision-assist/internal/source"
)

// services are the collaborators shared by the commands.
type services struct {
	cfg       *config.Config
	store     database.FaceStore
	detector  *inference.DetectorClient
	runtime   *inference.RuntimeClient
	extractor *embedding.Extractor
}

// newServices opens the face store and creates the inference clients.
func newServices(ctx context.Context, cmd *cobra.Command) (*services, error) {
	cfg := config.Load()

	backend, _ := cmd.Flags().GetString("store")
	if backend == "" && cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL is not set, using the in-memory face store; enrolled faces are not persisted")
	}
	store, err := database.Open(ctx, backend, &cfg.Database)
	if err != nil {
		return nil, err
	}

	runtime := inference.NewRuntimeClient(cfg.Embedding.URL, cfg.Embedding.Model)
	return &services{
		cfg:       cfg,
		store:     store,
		detector:  inference.NewDetectorClient(cfg.Detector.URL, cfg.Detector.MinScore),
		runtime:   runtime,
		extractor: embedding.NewExtractor(runtime, cfg.Embedding.InputSize, cfg.Embedding.Dim),
	}, nil
}

func (s *services) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("failed to close face store", "error", err)
	}
	_ = s.runtime.Close()
}

// checkModel fails early when the embedding model is not being served.
func (s *services) checkModel(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.runtime.Ready(ctx); err != nil {
		return fmt.Errorf("embedding model %q is not available: %w", s.runtime.Model(), err)
	}
	return nil
}

func (s *services) enrollService(store enroll.Store) *enroll.Service {
	if store == nil {
		store = s.store
	}
	return enroll.NewService(s.detector, s.extractor, store, slog.Default())
}

func (s *services) galleryOptions() gallery.Options {
	return gallery.Options{
		UseHNSW: s.cfg.Recognition.UseHNSW(),
		Logger:  slog.Default(),
	}
}

// loadGallery builds a gallery from the current store contents.
func (s *services) loadGallery(ctx context.Context, quiet bool) (*gallery.Store, error) {
	records, err := s.store.ListFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list faces: %w", err)
	}
	return s.buildGallery(ctx, records, quiet)
}

// buildGallery builds a gallery from records, showing a progress bar unless
// quiet is set.
func (s *services) buildGallery(ctx context.Context, records []database.FaceRecord, quiet bool) (*gallery.Store, error) {
	opts := s.galleryOptions()
	if !quiet && len(records) > 0 {
		bar := progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Building gallery"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
		opts.Progress = func(done, _ int) { _ = bar.Set(done) }
		defer func() {
			_ = bar.Finish()
			fmt.Println()
		}()
	}

	g := gallery.NewStore(s.extractor, opts)
	if _, err := g.Rebuild(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to build gallery: %w", err)
	}
	return g, nil
}

// newPipeline creates the recognition pipeline. A positive threshold
// overrides the configured one.
func (s *services) newPipeline(g pipeline.Gallery, threshold float64) *pipeline.Pipeline {
	if threshold <= 0 {
		threshold = s.cfg.Recognition.Threshold
	}
	return pipeline.New(s.detector, s.extractor, g,
		pipeline.WithThreshold(threshold),
		pipeline.WithLogger(slog.Default()),
	)
}

var errNoSource = errors.New("no frame source: set CAMERA_URL or CAMERA_DEVICE, or pass --url, --device or --dir")

// openSource picks the frame source from flags, falling back to the camera config.
func openSource(cmd *cobra.Command, cfg *config.Config) (source.Source, error) {
	url := mustGetString(cmd, "url")
	device := mustGetString(cmd, "device")
	dir := mustGetString(cmd, "dir")

	switch {
	case dir != "":
		return source.NewDirSource(dir, mustGetBool(cmd, "loop"))
	case url != "":
		return source.NewHTTPSource(url, 0)
	case device != "":
		return source.NewWebcamSource(device, slog.Default())
	case cfg.Camera.URL != "":
		return source.NewHTTPSource(cfg.Camera.URL, 0)
	case cfg.Camera.Device != "":
		return source.NewWebcamSource(cfg.Camera.Device, slog.Default())
	}
	return nil, errNoSource
}

// addSourceFlags registers the flags read by openSource.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Poll frames from this image URL (overrides CAMERA_URL)")
	cmd.Flags().String("device", "", "Capture frames from this V4L2 device (overrides CAMERA_DEVICE)")
	cmd.Flags().String("dir", "", "Replay image files from this directory")
	cmd.Flags().Bool("loop", false, "Replay --dir forever")
}
