package guard

import "github.com/Pnishada/service-desk/internal/domain"

// CanTransition validates a requested status change against the ticket's
// current status and the actor's role, before any request is issued.
//
// Staff and anonymous actors may comment but never change status. CLOSED is
// terminal for everyone. Beyond that the client does not enforce a
// forward-only order; sequencing judgement stays with the operator and the
// server keeps the final say.
func CanTransition(current, requested domain.TicketStatus, role domain.Role) bool {
	if !role.CanManageTickets() {
		return false
	}
	if current == domain.TicketStatusClosed {
		return false
	}
	if !requested.Valid() {
		return false
	}
	return true
}

// CompletedSteps derives the set of lifecycle steps to render as done on a
// progress tracker: every status the ticket has passed through before its
// current one, in canonical order. The history is assumed ordered by
// timestamp ascending; arbitrary jumps recorded by the server still render
// in whatever order the history shows.
func CompletedSteps(history []domain.HistoryEntry, current domain.TicketStatus) []domain.TicketStatus {
	seen := map[domain.TicketStatus]bool{domain.TicketStatusOpen: true}
	for _, entry := range history {
		if entry.FromStatus.Valid() {
			seen[entry.FromStatus] = true
		}
		if entry.ToStatus.Valid() {
			seen[entry.ToStatus] = true
		}
	}

	var completed []domain.TicketStatus
	for _, step := range domain.StatusSequence {
		if step == current {
			break
		}
		if seen[step] {
			completed = append(completed, step)
		}
	}
	return completed
}
