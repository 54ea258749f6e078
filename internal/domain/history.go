package domain

import "time"

// HistoryEntry is an immutable record of one status change or comment on a
// ticket. Entries created locally before server confirmation carry a
// client-generated id and no server id.
type HistoryEntry struct {
	ID         int64
	ClientID   string
	TicketID   int64
	Action     string
	FromStatus TicketStatus
	ToStatus   TicketStatus
	Comment    string
	Actor      *User
	Timestamp  time.Time
}

// Confirmed reports whether the entry has been acknowledged by the server.
func (e HistoryEntry) Confirmed() bool {
	return e.ID != 0
}

// EquivalentTo reports whether two entries describe the same change. Used to
// deduplicate an optimistic local entry against the server entry that
// confirms it: same transition, same comment, same actor.
func (e HistoryEntry) EquivalentTo(other HistoryEntry) bool {
	if e.FromStatus != other.FromStatus || e.ToStatus != other.ToStatus {
		return false
	}
	if e.Comment != other.Comment {
		return false
	}
	return actorID(e.Actor) == actorID(other.Actor)
}

func actorID(u *User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
