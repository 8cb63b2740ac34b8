package storage

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// EventKind names a journaled pipeline event.
type EventKind string

const (
	EventConversationStep EventKind = "conversation_step"
	EventRecommendation   EventKind = "recommendation"
	EventRating           EventKind = "rating"
	EventWatched          EventKind = "watched"
	EventEmbedding        EventKind = "embedding"
)

// Event is one journal line. Events are appended in chronological order.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Title     string    `json:"title,omitempty"`
	Rating    int       `json:"rating,omitempty"`
	Count     int       `json:"count,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
}

// Recorder abstracts persistence of journal events.
// Load should return events in chronological order.
// Append should atomically append a new event.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Append(event Event) error
	Load() ([]Event, error)
}

// Record appends ev to rec when rec is set, stamping the time if missing.
// Journal failures never fail the caller.
func Record(rec Recorder, ev Event) {
	if rec == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := rec.Append(ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"kind": ev.Kind, "user_id": ev.UserID}).Warn("⚠️ failed to journal event")
	}
}
