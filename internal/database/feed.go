package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Feed publishes the full list of enrolled faces to subscribers whenever the
// collection changes. Every subscriber first receives the current list. A slow
// subscriber only ever sees the newest list; stale ones are dropped.
type Feed struct {
	reader FaceReader
	logger *slog.Logger

	mu   sync.Mutex // serializes list loading and delivery so lists arrive in commit order
	subs map[int]chan []FaceRecord
	next int
}

// NewFeed creates a feed reading lists from reader.
func NewFeed(reader FaceReader, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		reader: reader,
		logger: logger,
		subs:   make(map[int]chan []FaceRecord),
	}
}

// Subscribe returns a channel receiving the current list immediately and the
// latest list after each change. The channel is closed when ctx is done.
func (f *Feed) Subscribe(ctx context.Context) (<-chan []FaceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	faces, err := f.reader.ListFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("load faces: %w", err)
	}

	ch := make(chan []FaceRecord, 1)
	ch <- faces

	id := f.next
	f.next++
	f.subs[id] = ch

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch, nil
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish reloads the list and delivers it to all subscribers.
func (f *Feed) Publish(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs) == 0 {
		return nil
	}

	faces, err := f.reader.ListFaces(ctx)
	if err != nil {
		return fmt.Errorf("load faces: %w", err)
	}

	for _, ch := range f.subs {
		deliverLatest(ch, faces)
	}
	f.logger.Debug("face list published", "faces", len(faces), "subscribers", len(f.subs))
	return nil
}

// deliverLatest replaces any undelivered list in ch with faces.
func deliverLatest(ch chan []FaceRecord, faces []FaceRecord) {
	for {
		select {
		case ch <- faces:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// NotifyingStore wraps a store and publishes to a feed after every successful write.
type NotifyingStore struct {
	FaceStore
	feed *Feed
}

// NewNotifyingStore wraps store so that its writes are published on feed.
func NewNotifyingStore(store FaceStore, feed *Feed) *NotifyingStore {
	return &NotifyingStore{FaceStore: store, feed: feed}
}

func (s *NotifyingStore) publish(ctx context.Context) {
	// The write is already committed.
	if err := s.feed.Publish(context.WithoutCancel(ctx)); err != nil {
		s.feed.logger.Warn("failed to publish face list", "error", err)
	}
}

func (s *NotifyingStore) InsertFace(ctx context.Context, face *FaceRecord) error {
	if err := s.FaceStore.InsertFace(ctx, face); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

func (s *NotifyingStore) UpdateFace(ctx context.Context, face *FaceRecord) error {
	if err := s.FaceStore.UpdateFace(ctx, face); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

func (s *NotifyingStore) DeleteFace(ctx context.Context, id int64) error {
	if err := s.FaceStore.DeleteFace(ctx, id); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

func (s *NotifyingStore) DeleteAllFaces(ctx context.Context) (int64, error) {
	n, err := s.FaceStore.DeleteAllFaces(ctx)
	if err != nil {
		return 0, err
	}
	s.publish(ctx)
	return n, nil
}
