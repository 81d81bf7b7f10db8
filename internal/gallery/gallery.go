// Package gallery holds the in-memory set of known faces that probes are
// matched against. A gallery is an immutable snapshot; changes to the
// enrollment store produce a whole new snapshot.
package gallery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/database"
	"github.com/kozaktomas/vision-assist/internal/facematch"
)

// Entry is one face of the gallery.
type Entry = facematch.Entry

// Extractor computes the embedding of a cropped face image.
type Extractor interface {
	Extract(ctx context.Context, img image.Image) ([]float32, error)
}

// BuildError reports a record excluded from the gallery. It never aborts a rebuild.
type BuildError struct {
	RecordID int64
	Name     string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("face record %d (%s) excluded from gallery: %v", e.RecordID, e.Name, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Options control how snapshots are built.
type Options struct {
	// UseHNSW enables the approximate index for galleries of at least HNSWMinEntries.
	UseHNSW        bool
	HNSWMinEntries int
	// HNSWCandidates is how many approximate neighbours seed the exact scan.
	HNSWCandidates int
	Logger         *slog.Logger
	// Progress, when set, is called after each record with done and total counts.
	Progress func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.HNSWMinEntries <= 0 {
		o.HNSWMinEntries = constants.HNSWMinEntries
	}
	if o.HNSWCandidates <= 0 {
		o.HNSWCandidates = constants.HNSWCandidates
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Snapshot is an immutable gallery.
type Snapshot struct {
	entries    []Entry
	failures   []*BuildError
	index      *hnswIndex
	candidates int
	builtAt    time.Time
	version    uint64
}

// Empty returns a snapshot without entries.
func Empty() *Snapshot {
	return &Snapshot{builtAt: time.Now()}
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns a copy of the entries in record order.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Failures returns the records that were excluded during the build.
func (s *Snapshot) Failures() []*BuildError {
	if s == nil {
		return nil
	}
	out := make([]*BuildError, len(s.failures))
	copy(out, s.failures)
	return out
}

// BuiltAt returns when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.builtAt
}

// Version increases with every snapshot published by a Store.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Indexed reports whether the snapshot carries an approximate index.
func (s *Snapshot) Indexed() bool {
	return s != nil && s.index != nil
}

// Match finds the nearest entry to probe. The result is always exact. With
// an index, the nearest of the approximate neighbours bounds a linear scan
// that abandons farther entries early.
func (s *Snapshot) Match(probe []float32, threshold float64) facematch.MatchResult {
	if s == nil {
		return facematch.Match(probe, nil, threshold)
	}

	keys, ok := s.index.candidates(probe, s.candidates)
	if !ok {
		return facematch.Match(probe, s.entries, threshold)
	}

	bound := math.Inf(1)
	for _, k := range keys {
		if d, err := facematch.EuclideanDistance(probe, s.entries[k].Embedding); err == nil && d < bound {
			bound = d
		}
	}
	return facematch.MatchWithin(probe, s.entries, threshold, bound)
}

// Build decodes every usable record, extracts its embedding and returns a
// new snapshot. Records that fail are logged and excluded. Only context
// cancellation aborts the build.
func Build(ctx context.Context, records []database.FaceRecord, extractor Extractor, opts Options) (*Snapshot, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		entries:    make([]Entry, 0, len(records)),
		candidates: opts.HNSWCandidates,
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := &records[i]
		if rec.Image == "" {
			// Records without image data are not part of the gallery.
			reportProgress(opts, i+1, len(records))
			continue
		}

		entry, err := buildEntry(ctx, rec, extractor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			buildErr := &BuildError{RecordID: rec.ID, Name: rec.Name, Err: err}
			snap.failures = append(snap.failures, buildErr)
			opts.Logger.Warn("skipping face record", "id", rec.ID, "name", rec.Name, "error", err)
		} else {
			snap.entries = append(snap.entries, entry)
		}
		reportProgress(opts, i+1, len(records))
	}

	if opts.UseHNSW && len(snap.entries) >= opts.HNSWMinEntries {
		snap.index = buildIndex(snap.entries)
	}
	snap.builtAt = time.Now()

	opts.Logger.Info("gallery built",
		"entries", len(snap.entries), "skipped", len(snap.failures), "indexed", snap.index != nil)
	return snap, nil
}

func reportProgress(opts Options, done, total int) {
	if opts.Progress != nil {
		opts.Progress(done, total)
	}
}

var errEmptyName = errors.New("record has no name")

func buildEntry(ctx context.Context, rec *database.FaceRecord, extractor Extractor) (Entry, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return Entry{}, errEmptyName
	}

	img, err := DecodeImage(rec.Image)
	if err != nil {
		return Entry{}, err
	}

	emb, err := extractor.Extract(ctx, img)
	if err != nil {
		return Entry{}, err
	}

	return Entry{RecordID: rec.ID, Name: rec.Name, Embedding: emb}, nil
}

// DecodeImage decodes a base64 encoded JPEG, PNG or BMP image. Line breaks
// and other whitespace inside the text are ignored.
func DecodeImage(encoded string) (image.Image, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, encoded)

	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
