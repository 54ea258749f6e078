package dto

import (
	"encoding/json"
	"time"

	"github.com/Pnishada/service-desk/internal/domain"
)

// TicketPayload is the wire shape of a ticket. The backend has shipped two
// divergent serializations of the creator over its lifetime: a nested
// created_by user object, and flat created_by_name / creator_email /
// creator_phone fields. Both are accepted here and collapsed into one
// domain.Contact; nested values win when both are present.
type TicketPayload struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Priority    string           `json:"priority"`
	Branch      domain.EntityRef `json:"branch"`
	Division    domain.EntityRef `json:"division"`
	Category    string           `json:"category,omitempty"`

	FullName string  `json:"full_name,omitempty"`
	Email    string  `json:"email,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	File     *string `json:"file"`

	CreatedBy     json.RawMessage `json:"created_by,omitempty"`
	CreatedByName string          `json:"created_by_name,omitempty"`
	CreatorEmail  string          `json:"creator_email,omitempty"`
	CreatorPhone  string          `json:"creator_phone,omitempty"`

	AssignedTo *UserPayload `json:"assigned_to"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`

	History []HistoryEntryPayload `json:"history,omitempty"`
}

// ToDomain normalizes the payload into the client's single ticket shape.
func (p TicketPayload) ToDomain() domain.Ticket {
	ticket := domain.Ticket{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      domain.TicketStatus(p.Status),
		Priority:    domain.TicketPriority(p.Priority),
		Branch:      p.Branch,
		Division:    p.Division,
		Category:    p.Category,
		Creator:     p.creator(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		CompletedAt: p.CompletedAt,
	}
	if p.File != nil {
		ticket.FileURL = *p.File
	}
	if p.AssignedTo != nil {
		assignee := p.AssignedTo.ToDomain()
		ticket.Assignee = &assignee
	}
	for _, entry := range p.History {
		ticket.History = append(ticket.History, entry.ToDomain(p.ID))
	}
	return ticket
}

// creator merges the flat and nested creator variants.
func (p TicketPayload) creator() domain.Contact {
	contact := domain.Contact{
		Name:     firstNonEmpty(p.CreatedByName, p.FullName),
		Email:    firstNonEmpty(p.CreatorEmail, p.Email),
		Phone:    firstNonEmpty(p.CreatorPhone, p.Phone),
		Division: p.Division.String(),
	}

	if len(p.CreatedBy) == 0 || string(p.CreatedBy) == "null" {
		return contact
	}

	var id int64
	if err := json.Unmarshal(p.CreatedBy, &id); err == nil {
		contact.UserID = id
		return contact
	}

	var nested UserPayload
	if err := json.Unmarshal(p.CreatedBy, &nested); err == nil {
		contact.UserID = nested.ID
		if nested.FullName != "" {
			contact.Name = nested.FullName
		} else if nested.Username != "" {
			contact.Name = nested.Username
		}
		if nested.Email != "" {
			contact.Email = nested.Email
		}
	}
	return contact
}

// HistoryEntryPayload is the wire shape of one audit trail entry.
type HistoryEntryPayload struct {
	ID          int64        `json:"id"`
	Ticket      int64        `json:"ticket"`
	Action      string       `json:"action,omitempty"`
	FromStatus  string       `json:"from_status,omitempty"`
	ToStatus    string       `json:"to_status,omitempty"`
	Comment     string       `json:"comment,omitempty"`
	PerformedBy *UserPayload `json:"performed_by"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ToDomain converts the payload; a nil performed_by means "system".
func (p HistoryEntryPayload) ToDomain(ticketID int64) domain.HistoryEntry {
	if p.Ticket != 0 {
		ticketID = p.Ticket
	}
	entry := domain.HistoryEntry{
		ID:         p.ID,
		TicketID:   ticketID,
		Action:     p.Action,
		FromStatus: domain.TicketStatus(p.FromStatus),
		ToStatus:   domain.TicketStatus(p.ToStatus),
		Comment:    p.Comment,
		Timestamp:  p.Timestamp,
	}
	if p.PerformedBy != nil {
		actor := p.PerformedBy.ToDomain()
		entry.Actor = &actor
	}
	return entry
}

// StatusUpdateRequest payload.
type StatusUpdateRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

// StatusUpdateResponse wraps the updated ticket.
type StatusUpdateResponse struct {
	Ticket TicketPayload `json:"ticket"`
}

// AssignRequest payload.
type AssignRequest struct {
	TechnicianID int64 `json:"technician_id"`
}

// CreateTicketRequest payload for JSON submissions; multipart submissions
// send the same fields as form values plus the file part.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Division    string `json:"division,omitempty"`
	Category    string `json:"category,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// NotificationPayload mirrors both the REST list shape and the live frame.
type NotificationPayload struct {
	ID           int64     `json:"id"`
	Ticket       int64     `json:"ticket"`
	TicketTitle  string    `json:"ticket_title"`
	TicketStatus string    `json:"ticket_status"`
	Message      string    `json:"message"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToDomain converts the payload.
func (p NotificationPayload) ToDomain() domain.Notification {
	return domain.Notification{
		ID:           p.ID,
		TicketID:     p.Ticket,
		TicketTitle:  p.TicketTitle,
		TicketStatus: domain.TicketStatus(p.TicketStatus),
		Message:      p.Message,
		Read:         p.Read,
		CreatedAt:    p.CreatedAt,
	}
}

// ErrorResponse is the backend's error envelope.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
