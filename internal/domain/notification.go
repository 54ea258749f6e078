package domain

import "time"

// Notification is a server-generated ticket event delivered via fetch or the
// live channel.
type Notification struct {
	ID           int64
	TicketID     int64
	TicketTitle  string
	TicketStatus TicketStatus
	Message      string
	Read         bool
	CreatedAt    time.Time
}
