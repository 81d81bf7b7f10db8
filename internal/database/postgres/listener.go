package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ChangeChannel is the NOTIFY channel raised by the face_records trigger.
const ChangeChannel = "face_records_changed"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// WatchChanges listens for face_records notifications and calls onChange for
// each one, including writes made by other processes. After a reconnect
// onChange is called once as well, since notifications may have been missed.
// It blocks until ctx is done.
func (r *FaceRepository) WatchChanges(ctx context.Context, onChange func()) error {
	listener := pq.NewListener(r.pool.url, listenerMinReconnect, listenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("face change listener", "event", int(ev), "error", err)
			}
		})
	defer listener.Close()

	if err := listener.Listen(ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// A nil notification signals a re-established connection.
			if n == nil {
				slog.Info("face change listener reconnected")
			}
			onChange()
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				slog.Warn("face change listener ping failed", "error", err)
			}
		}
	}
}
