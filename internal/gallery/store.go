package gallery

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/vision-assist/internal/database"
)

// Store publishes the current snapshot. Readers always see either the old or
// the new snapshot in full.
type Store struct {
	extractor Extractor
	opts      Options

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes rebuilds so versions follow feed order
	version uint64
}

// NewStore creates a store holding an empty snapshot.
func NewStore(extractor Extractor, opts Options) *Store {
	s := &Store{extractor: extractor, opts: opts.withDefaults()}
	s.current.Store(Empty())
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Rebuild builds a snapshot from records and swaps it in. The previous
// snapshot stays current when the build is cancelled.
func (s *Store) Rebuild(ctx context.Context, records []database.FaceRecord) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := Build(ctx, records, s.extractor, s.opts)
	if err != nil {
		return nil, err
	}

	s.version++
	snap.version = s.version
	s.current.Store(snap)
	return snap, nil
}

// Watch rebuilds the gallery for every list received from feed. It returns
// when ctx is done or feed is closed.
func (s *Store) Watch(ctx context.Context, feed <-chan []database.FaceRecord) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case records, ok := <-feed:
			if !ok {
				return nil
			}
			if _, err := s.Rebuild(ctx, records); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.opts.Logger.Error("gallery rebuild failed", "error", err)
			}
		}
	}
}
