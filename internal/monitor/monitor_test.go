package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/vision-assist/internal/pipeline"
	"github.com/kozaktomas/vision-assist/internal/source"
)

// eventLog records the order of loop stages.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeSource struct {
	log    *eventLog
	frames []image.Image
	errs   map[int]error
	probe  error
	calls  int
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	i := s.calls
	s.calls++
	if err, ok := s.errs[i]; ok {
		s.log.add("fetch-error")
		return nil, err
	}
	if len(s.frames) == 0 {
		return nil, source.ErrExhausted
	}
	img := s.frames[0]
	s.frames = s.frames[1:]
	s.log.add("fetch")
	return img, nil
}

func (s *fakeSource) Close() error { return nil }

type probingSource struct {
	fakeSource
}

func (s *probingSource) Probe(context.Context) error { return s.probe }

type fakeProcessor struct {
	log      *eventLog
	active   sync.Mutex
	calls    int
	onCall   func(n int)
	overlaps int
}

func (p *fakeProcessor) Process(ctx context.Context, _ image.Image) (*pipeline.AnnotatedResult, error) {
	if p.active.TryLock() {
		defer p.active.Unlock()
	} else {
		p.overlaps++
	}

	p.calls++
	p.log.add("process")
	if p.onCall != nil {
		p.onCall(p.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pipeline.AnnotatedResult{Summary: fmt.Sprintf("frame %d", p.calls), Detected: 1}, nil
}

type recordingSink struct {
	log    *eventLog
	frames []Frame
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, f Frame) error {
	s.log.add("deliver")
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func solid(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func gradient(flip bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			v := uint8(x * 8)
			if flip {
				v = uint8(255 - x*8)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestRunProcessesFramesInOrder(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{solid(1), solid(2), solid(3)}}
	proc := &fakeProcessor{log: log}
	sink := &recordingSink{log: log}

	m := New(src, proc, sink, Options{PollDelay: time.Millisecond})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"fetch", "process", "deliver", "fetch", "process", "deliver", "fetch", "process", "deliver"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if proc.overlaps != 0 {
		t.Errorf("processor ran concurrently %d times", proc.overlaps)
	}
	for i, f := range sink.frames {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d has seq %d", i, f.Seq)
		}
		if _, err := uuid.Parse(f.ID); err != nil {
			t.Errorf("frame %d has invalid id %q", i, f.ID)
		}
	}
	if s := m.Stats(); s.Delivered != 3 || s.Fetched != 3 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestRunWaitsBetweenFrames(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{solid(1), solid(2), solid(3)}}
	m := New(src, &fakeProcessor{log: log}, &recordingSink{log: log}, Options{PollDelay: 20 * time.Millisecond})

	start := time.Now()
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("Run() took %v, want at least three poll delays", elapsed)
	}
}

func TestRunRetriesFetchErrors(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{
		log:    log,
		frames: []image.Image{solid(1)},
		errs:   map[int]error{0: errors.New("timeout"), 1: errors.New("connection reset")},
	}
	sink := &recordingSink{log: log}
	m := New(src, &fakeProcessor{log: log}, sink, Options{PollDelay: time.Millisecond})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.frames) != 1 {
		t.Errorf("delivered %d frames, want 1", len(sink.frames))
	}
	if s := m.Stats(); s.FetchErrors != 2 {
		t.Errorf("FetchErrors = %d, want 2", s.FetchErrors)
	}
}

func TestRunCancelledDuringProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{solid(1), solid(2)}}
	proc := &fakeProcessor{log: log, onCall: func(int) { cancel() }}
	sink := &recordingSink{log: log}

	m := New(src, proc, sink, Options{PollDelay: time.Millisecond})
	if err := m.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(sink.frames) != 0 {
		t.Errorf("delivered %d frames after cancellation", len(sink.frames))
	}
}

func TestRunCancelledDuringDelay(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{solid(1), solid(2)}}
	sink := &recordingSink{log: log}
	m := New(src, &fakeProcessor{log: log}, sink, Options{PollDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := m.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if len(sink.frames) != 1 {
		t.Errorf("delivered %d frames, want 1", len(sink.frames))
	}
}

func TestRunSkipsUnchangedFrames(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{gradient(false), gradient(false), gradient(true)}}
	proc := &fakeProcessor{log: log}
	m := New(src, proc, &recordingSink{log: log}, Options{PollDelay: time.Millisecond, SkipUnchanged: true})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if proc.calls != 2 {
		t.Errorf("processed %d frames, want 2", proc.calls)
	}
	if s := m.Stats(); s.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", s.Unchanged)
	}
}

func TestRunProbeFailure(t *testing.T) {
	log := &eventLog{}
	src := &probingSource{fakeSource{log: log, probe: errors.New("host unreachable")}}
	m := New(src, &fakeProcessor{log: log}, &recordingSink{log: log}, Options{})

	if err := m.Run(context.Background()); err == nil {
		t.Fatal("expected probe error")
	}
	if len(log.snapshot()) != 0 {
		t.Errorf("loop ran after failed probe: %v", log.snapshot())
	}
}

func TestRunSinkFailureIsNotFatal(t *testing.T) {
	log := &eventLog{}
	src := &fakeSource{log: log, frames: []image.Image{solid(1), solid(2)}}
	proc := &fakeProcessor{log: log}
	m := New(src, proc, &recordingSink{log: log, err: errors.New("client gone")}, Options{PollDelay: time.Millisecond})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if proc.calls != 2 {
		t.Errorf("processed %d frames, want 2", proc.calls)
	}
	if m.Stats().Delivered != 0 {
		t.Errorf("Delivered = %d, want 0", m.Stats().Delivered)
	}
}
