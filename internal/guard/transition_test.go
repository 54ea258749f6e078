package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Pnishada/service-desk/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name      string
		current   domain.TicketStatus
		requested domain.TicketStatus
		role      domain.Role
		want      bool
	}{
		{"technician picks up an open ticket", domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.RoleTechnician, true},
		{"technician moves assigned to in progress", domain.TicketStatusAssigned, domain.TicketStatusInProgress, domain.RoleTechnician, true},
		{"admin closes a completed ticket", domain.TicketStatusCompleted, domain.TicketStatusClosed, domain.RoleAdmin, true},
		{"backward move is allowed for managers", domain.TicketStatusCompleted, domain.TicketStatusInProgress, domain.RoleTechnician, true},
		{"skipping ahead is allowed for managers", domain.TicketStatusOpen, domain.TicketStatusCompleted, domain.RoleAdmin, true},
		{"staff may never change status", domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.RoleStaff, false},
		{"closed is terminal", domain.TicketStatusClosed, domain.TicketStatusOpen, domain.RoleAdmin, false},
		{"closed is terminal even for the same status", domain.TicketStatusClosed, domain.TicketStatusClosed, domain.RoleAdmin, false},
		{"unknown target status rejected", domain.TicketStatusOpen, domain.TicketStatus("ARCHIVED"), domain.RoleAdmin, false},
		{"empty target status rejected", domain.TicketStatusOpen, domain.TicketStatus(""), domain.RoleTechnician, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.current, tc.requested, tc.role))
		})
	}
}

func TestCompletedSteps(t *testing.T) {
	entry := func(from, to domain.TicketStatus) domain.HistoryEntry {
		return domain.HistoryEntry{FromStatus: from, ToStatus: to}
	}

	t.Run("fresh ticket has no completed steps", func(t *testing.T) {
		assert.Empty(t, CompletedSteps(nil, domain.TicketStatusOpen))
	})

	t.Run("linear progression", func(t *testing.T) {
		history := []domain.HistoryEntry{
			entry(domain.TicketStatusOpen, domain.TicketStatusAssigned),
			entry(domain.TicketStatusAssigned, domain.TicketStatusInProgress),
		}
		assert.Equal(t,
			[]domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusAssigned},
			CompletedSteps(history, domain.TicketStatusInProgress))
	})

	t.Run("skipped step is not rendered as done", func(t *testing.T) {
		history := []domain.HistoryEntry{
			entry(domain.TicketStatusOpen, domain.TicketStatusCompleted),
		}
		assert.Equal(t,
			[]domain.TicketStatus{domain.TicketStatusOpen},
			CompletedSteps(history, domain.TicketStatusCompleted))
	})

	t.Run("comment-only entries do not add steps", func(t *testing.T) {
		history := []domain.HistoryEntry{{Comment: "looking into it"}}
		assert.Empty(t, CompletedSteps(history, domain.TicketStatusOpen))
	})

	t.Run("backward move keeps earlier steps", func(t *testing.T) {
		history := []domain.HistoryEntry{
			entry(domain.TicketStatusOpen, domain.TicketStatusAssigned),
			entry(domain.TicketStatusAssigned, domain.TicketStatusInProgress),
			entry(domain.TicketStatusInProgress, domain.TicketStatusAssigned),
		}
		assert.Equal(t,
			[]domain.TicketStatus{domain.TicketStatusOpen},
			CompletedSteps(history, domain.TicketStatusAssigned))
	})
}
