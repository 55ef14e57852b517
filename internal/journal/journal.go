package journal

import (
	"context"
	"time"
)

// Event types written by the service.
const (
	TypeDownload      = "download"
	TypeBacktest      = "backtest"
	TypeHistoryDelete = "history_delete"
	TypeError         = "error"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Journaler stores events. GetEvents returns events in [start, end) ordered
// by time; an empty eventType matches every type.
type Journaler interface {
	LogEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error)
}

// New stamps an event with the current time.
func New(eventType, description string, data map[string]any) Event {
	return Event{Time: time.Now().UTC(), Type: eventType, Description: description, Data: data}
}
