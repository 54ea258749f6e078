package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// StatusSequence is the canonical lifecycle order used by progress displays.
var StatusSequence = []TicketStatus{
	TicketStatusOpen,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusCompleted,
	TicketStatusClosed,
}

// Valid reports whether the status is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	for _, known := range StatusSequence {
		if s == known {
			return true
		}
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Contact is the normalized creator identity for a ticket. The backend has
// shipped it both as a nested user object and as flat created_by_name /
// creator_email / creator_phone fields; both variants collapse into this one
// shape at the wire boundary.
type Contact struct {
	UserID   int64
	Name     string
	Email    string
	Phone    string
	Division string
}

// Ticket is the client-side snapshot of a helpdesk work item.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Branch      EntityRef
	Division    EntityRef
	Category    string
	Creator     Contact
	Assignee    *User
	FileURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	History     []HistoryEntry
}

// Clone returns a deep copy safe to hand out of the cache.
func (t Ticket) Clone() Ticket {
	out := t
	if t.Assignee != nil {
		assignee := *t.Assignee
		out.Assignee = &assignee
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	if t.History != nil {
		out.History = make([]HistoryEntry, len(t.History))
		copy(out.History, t.History)
		for i := range out.History {
			if actor := out.History[i].Actor; actor != nil {
				cp := *actor
				out.History[i].Actor = &cp
			}
		}
	}
	return out
}
