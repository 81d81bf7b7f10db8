// Package monitor runs the frame loop: fetch a frame, identify its faces,
// deliver the result, wait, repeat.
package monitor

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/fingerprint"
	"github.com/kozaktomas/vision-assist/internal/pipeline"
	"github.com/kozaktomas/vision-assist/internal/source"
)

// Processor identifies the faces of one frame.
type Processor interface {
	Process(ctx context.Context, frame image.Image) (*pipeline.AnnotatedResult, error)
}

// Frame is a processed frame ready for delivery.
type Frame struct {
	ID         string
	Seq        uint64
	CapturedAt time.Time
	Duration   time.Duration
	Result     *pipeline.AnnotatedResult
}

// Options configure a Monitor.
type Options struct {
	// PollDelay is the pause after each delivered frame.
	PollDelay time.Duration
	// SkipUnchanged drops frames that look the same as the previous processed one.
	SkipUnchanged bool
	Logger        *slog.Logger
}

// Stats are counters of a running monitor.
type Stats struct {
	Fetched     uint64 `json:"fetched"`
	Delivered   uint64 `json:"delivered"`
	Unchanged   uint64 `json:"unchanged"`
	FetchErrors uint64 `json:"fetch_errors"`
}

// Monitor processes frames of a single source one at a time.
type Monitor struct {
	source    source.Source
	processor Processor
	sink      Sink
	delay     time.Duration
	changes   *fingerprint.ChangeDetector
	logger    *slog.Logger

	seq         atomic.Uint64
	fetched     atomic.Uint64
	delivered   atomic.Uint64
	unchanged   atomic.Uint64
	fetchErrors atomic.Uint64
}

// New creates a monitor.
func New(src source.Source, processor Processor, sink Sink, opts Options) *Monitor {
	if opts.PollDelay <= 0 {
		opts.PollDelay = constants.DefaultPollDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Monitor{
		source:    src,
		processor: processor,
		sink:      sink,
		delay:     opts.PollDelay,
		logger:    opts.Logger,
	}
	if opts.SkipUnchanged {
		m.changes = fingerprint.NewChangeDetector(constants.UnchangedFrameDistance)
	}
	return m
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Fetched:     m.fetched.Load(),
		Delivered:   m.delivered.Load(),
		Unchanged:   m.unchanged.Load(),
		FetchErrors: m.fetchErrors.Load(),
	}
}

// Run processes frames until ctx is done or the source is exhausted. A new
// frame is fetched only after the previous result was delivered and the poll
// delay elapsed. Results of a cancelled iteration are never delivered.
func (m *Monitor) Run(ctx context.Context) error {
	if p, ok := m.source.(source.Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return err
		}
		m.logger.Info("camera reachable")
	}

	for {
		err := m.step(ctx)
		if errors.Is(err, source.ErrExhausted) {
			m.logger.Info("frame source exhausted")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := sleep(ctx, m.delay); err != nil {
			return err
		}
	}
}

// step runs one iteration. Recoverable failures are logged and swallowed.
func (m *Monitor) step(ctx context.Context) error {
	start := time.Now()
	img, err := m.source.Next(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, source.ErrExhausted) {
			return err
		}
		m.fetchErrors.Add(1)
		m.logger.Warn("failed to fetch frame", "error", err)
		return nil
	}
	m.fetched.Add(1)

	if m.changes != nil && !m.changes.Changed(img) {
		m.unchanged.Add(1)
		return nil
	}

	res, err := m.processor.Process(ctx, img)
	if err != nil {
		// Only cancellation surfaces from Process.
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	frame := Frame{
		ID:         uuid.NewString(),
		Seq:        m.seq.Add(1),
		CapturedAt: start,
		Duration:   time.Since(start),
		Result:     res,
	}
	if err := m.sink.Deliver(ctx, frame); err != nil {
		m.logger.Warn("failed to deliver frame", "frame", frame.ID, "error", err)
		return nil
	}
	m.delivered.Add(1)

	m.logger.Debug("frame processed",
		"frame", frame.ID, "seq", frame.Seq, "faces", res.Detected, "duration", frame.Duration)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
