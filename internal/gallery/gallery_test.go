package gallery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/vision-assist/internal/constants"
	"github.com/kozaktomas/vision-assist/internal/database"
)

// colorExtractor maps the red channel of the top-left pixel to a 2-dim embedding.
type colorExtractor struct {
	calls atomic.Int32
	fail  uint8 // red value that makes extraction fail, 0 disables
}

func (e *colorExtractor) Extract(_ context.Context, img image.Image) ([]float32, error) {
	e.calls.Add(1)
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	red := uint8(r >> 8)
	if e.fail != 0 && red == e.fail {
		return nil, errors.New("model failure")
	}
	return []float32{float32(red) / 100, 0}, nil
}

func encodeSolid(t *testing.T, red uint8) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, color.RGBA{R: red, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	records := []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: "!!!not base64!!!"},
		{ID: 3, Name: "Carol", Image: base64.StdEncoding.EncodeToString([]byte("not an image"))},
		{ID: 4, Name: "   ", Image: encodeSolid(t, 20)},
		{ID: 5, Name: "Dave", Image: ""},
		{ID: 6, Name: "Eve", Image: encodeSolid(t, 66)},
		{ID: 7, Name: "Frank", Image: encodeSolid(t, 30)},
	}

	ext := &colorExtractor{fail: 66}
	snap, err := Build(ctx, records, ext, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	entries := snap.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "Alice" || entries[1].Name != "Frank" {
		t.Errorf("entries out of record order: %q, %q", entries[0].Name, entries[1].Name)
	}
	if entries[0].RecordID != 1 || entries[1].RecordID != 7 {
		t.Errorf("unexpected record ids: %d, %d", entries[0].RecordID, entries[1].RecordID)
	}

	failures := snap.Failures()
	wantFailed := []int64{2, 3, 4, 6}
	if len(failures) != len(wantFailed) {
		t.Fatalf("got %d failures, want %d", len(failures), len(wantFailed))
	}
	for i, id := range wantFailed {
		if failures[i].RecordID != id {
			t.Errorf("failure %d: record %d, want %d", i, failures[i].RecordID, id)
		}
	}

	var buildErr *BuildError
	if !errors.As(failures[0], &buildErr) || buildErr.Name != "Bob" {
		t.Errorf("failure is not a BuildError for Bob: %v", failures[0])
	}
}

func TestBuildEntriesAreCopied(t *testing.T) {
	ext := &colorExtractor{}
	snap, err := Build(context.Background(), []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
	}, ext, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	entries := snap.Entries()
	entries[0].Name = "Mallory"
	if snap.Entries()[0].Name != "Alice" {
		t.Error("snapshot was modified through Entries()")
	}
}

func TestBuildIdempotent(t *testing.T) {
	ctx := context.Background()
	records := []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: "broken"},
		{ID: 3, Name: "Carol", Image: encodeSolid(t, 40)},
	}

	first, err := Build(ctx, records, &colorExtractor{}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := Build(ctx, records, &colorExtractor{}, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	a, b := first.Entries(), second.Entries()
	if len(a) != len(b) {
		t.Fatalf("entry count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].RecordID != b[i].RecordID {
			t.Errorf("entry %d differs: %+v vs %+v", i, a[i], b[i])
		}
		for j := range a[i].Embedding {
			if a[i].Embedding[j] != b[i].Embedding[j] {
				t.Errorf("entry %d embedding differs at %d", i, j)
			}
		}
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
	}, &colorExtractor{}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error = %v, want context.Canceled", err)
	}
}

func TestBuildProgress(t *testing.T) {
	var calls []int
	_, err := Build(context.Background(), []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: ""},
	}, &colorExtractor{}, Options{Progress: func(done, total int) {
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		calls = append(calls, done)
	}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(calls) != 2 || calls[0] != 1 || calls[1] != 2 {
		t.Errorf("progress calls = %v, want [1 2]", calls)
	}
}

func TestDecodeImageToleratesLineBreaks(t *testing.T) {
	encoded := encodeSolid(t, 10)
	var wrapped strings.Builder
	for i := 0; i < len(encoded); i += 20 {
		end := min(i+20, len(encoded))
		wrapped.WriteString(encoded[i:end])
		wrapped.WriteString("\n")
	}

	img, err := DecodeImage(wrapped.String())
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d, want 4", img.Bounds().Dx())
	}
}

func TestSnapshotMatch(t *testing.T) {
	snap := &Snapshot{entries: []Entry{
		{RecordID: 1, Name: "Alice", Embedding: []float32{0, 0}},
		{RecordID: 2, Name: "Bob", Embedding: []float32{3, 0}},
	}}

	res := snap.Match([]float32{2.5, 0}, 1.0)
	if !res.Matched || res.Name != "Bob" || res.RecordID != 2 {
		t.Errorf("Match() = %+v, want Bob", res)
	}

	res = Empty().Match([]float32{1, 2}, 1.0)
	if res.Matched || !math.IsInf(res.Distance, 1) {
		t.Errorf("empty snapshot Match() = %+v, want no match with +Inf", res)
	}

	var nilSnap *Snapshot
	if nilSnap.Match([]float32{1}, 1.0).Matched {
		t.Error("nil snapshot matched")
	}
}

// randomEntries returns n entries of dims gaussian components with the
// given spread, generated from a fixed seed.
func randomEntries(rng *rand.Rand, n, dims int, spread float64) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		emb := make([]float32, dims)
		for j := range emb {
			emb[j] = float32(rng.NormFloat64() * spread)
		}
		entries[i] = Entry{RecordID: int64(i + 1), Name: fmt.Sprintf("person-%d", i+1), Embedding: emb}
	}
	return entries
}

func TestSnapshotMatchWithIndex(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	entries := randomEntries(rng, 2000, 192, 0.1)

	linear := &Snapshot{entries: entries}
	indexed := &Snapshot{entries: entries, index: buildIndex(entries), candidates: constants.HNSWCandidates}
	if !indexed.Indexed() {
		t.Fatal("expected an indexed snapshot")
	}

	for i := 0; i < 200; i++ {
		target := entries[rng.IntN(len(entries))]
		probe := make([]float32, len(target.Embedding))
		for j := range probe {
			probe[j] = target.Embedding[j] + float32(rng.NormFloat64()*0.03)
		}

		got := indexed.Match(probe, 1.0)
		want := linear.Match(probe, 1.0)
		if got.Index != want.Index || got.Distance != want.Distance || got.Matched != want.Matched {
			t.Fatalf("probe %d: indexed Match() = %+v, linear = %+v", i, got, want)
		}
		if !got.Matched || got.RecordID != target.RecordID {
			t.Fatalf("probe %d: expected %s, got %+v", i, target.Name, got)
		}
	}

	// Probes far from every entry still report the exact nearest distance.
	far := make([]float32, 192)
	for j := range far {
		far[j] = 5
	}
	got, want := indexed.Match(far, 1.0), linear.Match(far, 1.0)
	if got.Matched || got.Index != want.Index || got.Distance != want.Distance {
		t.Errorf("far probe: indexed Match() = %+v, linear = %+v", got, want)
	}

	// A probe with another dimension falls back to the linear scan.
	res := indexed.Match([]float32{1, 2, 3}, 1.0)
	if res.Matched || res.Skipped != len(entries) {
		t.Errorf("mismatched probe: %+v", res)
	}
}

func TestSnapshotMatchWithIndex_Ties(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	entries := randomEntries(rng, 300, 192, 0.1)
	// A later duplicate of entry 10 must never win over it.
	dup := entries[10]
	dup.RecordID, dup.Name = 9999, "duplicate"
	entries = append(entries, dup)

	indexed := &Snapshot{entries: entries, index: buildIndex(entries), candidates: constants.HNSWCandidates}
	got := indexed.Match(entries[10].Embedding, 1.0)
	if got.Index != 10 || got.RecordID != entries[10].RecordID || got.Distance != 0 {
		t.Errorf("Match() = %+v, want the first of the duplicates", got)
	}
}

func TestBuildIndexThreshold(t *testing.T) {
	records := []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: encodeSolid(t, 20)},
	}

	snap, err := Build(context.Background(), records, &colorExtractor{}, Options{UseHNSW: true, HNSWMinEntries: 3})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if snap.Indexed() {
		t.Error("small gallery should not be indexed")
	}

	snap, err = Build(context.Background(), records, &colorExtractor{}, Options{UseHNSW: true, HNSWMinEntries: 2})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !snap.Indexed() {
		t.Error("gallery at the minimum size should be indexed")
	}
}

func TestStoreRebuild(t *testing.T) {
	store := NewStore(&colorExtractor{}, Options{})
	if store.Load().Len() != 0 {
		t.Fatal("new store should hold an empty snapshot")
	}

	snap, err := store.Rebuild(context.Background(), []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
	})
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if store.Load() != snap || snap.Version() != 1 {
		t.Errorf("Load() did not return the rebuilt snapshot (version %d)", snap.Version())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Rebuild(ctx, nil); err == nil {
		t.Error("expected error for cancelled rebuild")
	}
	if store.Load() != snap {
		t.Error("cancelled rebuild replaced the snapshot")
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	store := NewStore(&colorExtractor{}, Options{})
	small := []database.FaceRecord{{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)}}
	large := []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: encodeSolid(t, 20)},
		{ID: 3, Name: "Carol", Image: encodeSolid(t, 30)},
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := store.Load().Len()
				if n != 0 && n != 1 && n != 3 {
					t.Errorf("observed partial gallery of %d entries", n)
					return
				}
			}
		})
	}

	for i := range 50 {
		records := small
		if i%2 == 0 {
			records = large
		}
		if _, err := store.Rebuild(ctx, records); err != nil {
			t.Fatalf("Rebuild() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestStoreWatch(t *testing.T) {
	store := NewStore(&colorExtractor{}, Options{})
	feed := make(chan []database.FaceRecord, 1)

	done := make(chan error, 1)
	go func() { done <- store.Watch(context.Background(), feed) }()

	feed <- []database.FaceRecord{{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)}}
	feed <- []database.FaceRecord{
		{ID: 1, Name: "Alice", Image: encodeSolid(t, 10)},
		{ID: 2, Name: "Bob", Image: encodeSolid(t, 20)},
	}
	feed <- nil
	close(feed)

	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if store.Load().Len() != 0 {
		t.Errorf("gallery has %d entries after delete-all, want 0", store.Load().Len())
	}
	if store.Load().Version() != 3 {
		t.Errorf("version = %d, want 3", store.Load().Version())
	}
}

func TestStoreWatchCancelled(t *testing.T) {
	store := NewStore(&colorExtractor{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Watch(ctx, make(chan []database.FaceRecord)); !errors.Is(err, context.Canceled) {
		t.Errorf("Watch() error = %v, want context.Canceled", err)
	}
}
