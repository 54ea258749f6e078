package events

import (
	"time"

	"github.com/Pnishada/service-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionChanged       EventType = "session_changed"
	EventSessionCleared       EventType = "session_cleared"
	EventTicketUpdated        EventType = "ticket_updated"
	EventNotificationReceived EventType = "notification_received"
)

// Event is published whenever client-side state changes; UI-facing
// components subscribe to re-render from the caches.
type Event struct {
	Type         EventType
	TicketID     int64
	Session      *domain.Session
	Notification *domain.Notification
	Timestamp    time.Time
}

// SessionChanged builds a session mutation event.
func SessionChanged(session *domain.Session) Event {
	return Event{Type: EventSessionChanged, Session: session, Timestamp: time.Now()}
}

// SessionCleared builds a logout event.
func SessionCleared() Event {
	return Event{Type: EventSessionCleared, Timestamp: time.Now()}
}

// TicketUpdated builds a cache mutation event for one ticket.
func TicketUpdated(ticketID int64) Event {
	return Event{Type: EventTicketUpdated, TicketID: ticketID, Timestamp: time.Now()}
}

// NotificationReceived builds an incoming notification event.
func NotificationReceived(n domain.Notification) Event {
	return Event{Type: EventNotificationReceived, TicketID: n.TicketID, Notification: &n, Timestamp: time.Now()}
}
