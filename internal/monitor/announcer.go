package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/vision-assist/internal/constants"
)

// Status texts announced when the toggle changes.
const (
	AnnouncementsOnText  = "Announcements enabled"
	AnnouncementsOffText = "Announcements disabled"
)

// Announcement is a text meant to be read out to the user.
type Announcement struct {
	Text    string    `json:"text"`
	FrameID string    `json:"frame_id,omitempty"`
	At      time.Time `json:"at"`
}

// Announcer is a sink turning frame summaries into announcements. A summary
// is announced when announcements are on and it differs from the previous one.
type Announcer struct {
	mu        sync.Mutex
	enabled   bool
	last      string
	listeners []chan Announcement
}

// NewAnnouncer creates an announcer with the given initial state.
func NewAnnouncer(enabled bool) *Announcer {
	return &Announcer{enabled: enabled}
}

// Enabled reports whether announcements are on.
func (a *Announcer) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled switches announcements on or off and announces the new state.
func (a *Announcer) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled == enabled {
		return
	}
	a.enabled = enabled
	a.last = ""

	text := AnnouncementsOffText
	if enabled {
		text = AnnouncementsOnText
	}
	a.emit(Announcement{Text: text, At: time.Now()})
}

// Deliver announces the frame summary if needed.
func (a *Announcer) Deliver(_ context.Context, frame Frame) error {
	if frame.Result == nil || frame.Result.Summary == "" {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled || frame.Result.Summary == a.last {
		return nil
	}
	a.last = frame.Result.Summary
	a.emit(Announcement{Text: frame.Result.Summary, FrameID: frame.ID, At: frame.CapturedAt})
	return nil
}

func (a *Announcer) emit(ann Announcement) {
	for _, listener := range a.listeners {
		select {
		case listener <- ann:
		default:
			// Listener buffer full, skip.
		}
	}
}

// AddListener adds an announcement listener.
func (a *Announcer) AddListener() chan Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan Announcement, constants.EventChannelBuffer)
	a.listeners = append(a.listeners, ch)
	return ch
}

// RemoveListener removes and closes an announcement listener.
func (a *Announcer) RemoveListener(ch chan Announcement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, listener := range a.listeners {
		if listener == ch {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}
