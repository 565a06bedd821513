package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/gift-exchange/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionRefreshed EventType = "session_refreshed"
	EventSessionErrored   EventType = "session_errored"
	EventSessionUpdated   EventType = "session_updated"
	EventSessionEnded     EventType = "session_ended"
)

// AllSessionEvents lists every session lifecycle event type.
var AllSessionEvents = []EventType{
	EventSessionStarted,
	EventSessionRefreshed,
	EventSessionErrored,
	EventSessionUpdated,
	EventSessionEnded,
}

// Event represents a session lifecycle event. It never carries tokens.
type Event struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	UserID    string               `json:"user_id,omitempty"`
	Error     domain.SessionError  `json:"error,omitempty"`
	Reason    domain.SignOutReason `json:"reason,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(eventType EventType, sessionID, userID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}
