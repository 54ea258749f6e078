package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/api/dto"
	"github.com/Pnishada/service-desk/internal/cache"
	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/guard"
	"github.com/Pnishada/service-desk/internal/session"
	"github.com/Pnishada/service-desk/internal/transport"
	"github.com/Pnishada/service-desk/pkg/util"
)

// Client wraps the helpdesk REST surface. Every request passes through the
// refresh gate; every ticket response is folded into the cache so the UI
// always renders from one place.
type Client struct {
	gate     *transport.Gate
	sessions *session.Store
	cache    *cache.TicketCache
	logger   *zap.Logger
}

// Dependencies bundles collaborators for the client.
type Dependencies struct {
	Gate     *transport.Gate
	Sessions *session.Store
	Cache    *cache.TicketCache
	Logger   *zap.Logger
}

// NewClient constructs the client.
func NewClient(deps Dependencies) *Client {
	return &Client{
		gate:     deps.Gate,
		sessions: deps.Sessions,
		cache:    deps.Cache,
		logger:   deps.Logger,
	}
}

// CreateTicketInput describes a ticket submission. Attachment is optional;
// when present the request goes out as multipart form data.
type CreateTicketInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Branch      string
	Division    string
	Category    string
	FullName    string
	Email       string
	Phone       string
	Attachment  io.Reader
	FileName    string
}

// Login authenticates and stores the resulting session. A storage failure
// is non-fatal: the session stays usable in memory for this run.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	var out dto.LoginResponse
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(dto.LoginRequest{Username: username, Password: password}).
			SetResult(&out).
			Post("auth/login/")
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return nil, util.NewAuthInvalid("invalid credentials")
		}
		return nil, statusError(resp)
	}

	user := out.User.ToDomain()
	tokens := domain.Tokens{Access: out.Access, Refresh: out.Refresh}
	if err := c.sessions.Set(user, tokens); err != nil {
		c.logger.Warn("session not persisted", zap.Error(err))
	}
	return &domain.Session{User: user, Tokens: tokens}, nil
}

// Logout clears the stored session.
func (c *Client) Logout() {
	c.sessions.Clear()
}

// Tickets fetches every ticket visible to the caller.
func (c *Client) Tickets(ctx context.Context) ([]domain.Ticket, error) {
	return c.fetchTicketList(ctx, "tickets/")
}

// MyTickets fetches tickets the caller created (staff view).
func (c *Client) MyTickets(ctx context.Context) ([]domain.Ticket, error) {
	return c.fetchTicketList(ctx, "tickets/mine/")
}

// AssignedTickets fetches tickets assigned to the caller (technician view).
func (c *Client) AssignedTickets(ctx context.Context) ([]domain.Ticket, error) {
	return c.fetchTicketList(ctx, "tickets/assigned/")
}

// CompletedTickets fetches tickets in the COMPLETED state.
func (c *Client) CompletedTickets(ctx context.Context) ([]domain.Ticket, error) {
	return c.fetchTicketList(ctx, "tickets/completed/")
}

// Ticket fetches one ticket with its history and caches it.
func (c *Client) Ticket(ctx context.Context, ticketID int64) (domain.Ticket, error) {
	var out dto.TicketPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get(fmt.Sprintf("tickets/%d/", ticketID))
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	if !resp.IsSuccess() {
		return domain.Ticket{}, statusError(resp)
	}

	ticket := out.ToDomain()
	c.cache.Upsert(ticket)
	cached, _ := c.cache.Get(ticketID)
	return cached, nil
}

// RefreshTicket re-fetches a ticket into the cache. Used by the
// notification channel when a push references a cached ticket.
func (c *Client) RefreshTicket(ctx context.Context, ticketID int64) error {
	_, err := c.Ticket(ctx, ticketID)
	return err
}

// History fetches the ordered audit trail for a ticket and folds it into
// the cached snapshot.
func (c *Client) History(ctx context.Context, ticketID int64) ([]domain.HistoryEntry, error) {
	var out []dto.HistoryEntryPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get(fmt.Sprintf("tickets/%d/history/", ticketID))
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	entries := make([]domain.HistoryEntry, 0, len(out))
	for _, payload := range out {
		entries = append(entries, payload.ToDomain(ticketID))
	}

	if cached, ok := c.cache.Get(ticketID); ok {
		cached.History = entries
		c.cache.Upsert(cached)
		cached, _ = c.cache.Get(ticketID)
		return cached.History, nil
	}
	return entries, nil
}

// CreateTicket submits a new ticket; the server assigns OPEN status.
func (c *Client) CreateTicket(ctx context.Context, input CreateTicketInput) (domain.Ticket, error) {
	var out dto.TicketPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		req.SetResult(&out)
		if input.Attachment != nil {
			return req.
				SetFileReader("file", input.FileName, input.Attachment).
				SetFormData(createForm(input)).
				Post("tickets/")
		}
		return req.SetBody(createBody(input)).Post("tickets/")
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	if !resp.IsSuccess() {
		return domain.Ticket{}, statusError(resp)
	}

	ticket := out.ToDomain()
	c.cache.Upsert(ticket)
	return ticket, nil
}

// UpdateStatus validates the transition locally, records an optimistic
// history entry, issues the PATCH, and reconciles or rolls back. The whole
// update path runs through here: guard, gate, cache.
func (c *Client) UpdateStatus(ctx context.Context, ticketID int64, status domain.TicketStatus, comment string) (domain.Ticket, error) {
	sess := c.sessions.Get()
	if sess == nil {
		return domain.Ticket{}, util.NewAuthInvalid("not logged in")
	}

	current, ok := c.cache.Get(ticketID)
	if !ok {
		fetched, err := c.Ticket(ctx, ticketID)
		if err != nil {
			return domain.Ticket{}, err
		}
		current = fetched
	}

	if !guard.CanTransition(current.Status, status, sess.User.Role) {
		return domain.Ticket{}, util.NewValidationRejected(
			fmt.Sprintf("status change %s to %s not allowed", current.Status, status))
	}

	actor := sess.User
	optimistic, _ := c.cache.AppendOptimistic(ticketID, domain.HistoryEntry{
		FromStatus: current.Status,
		ToStatus:   status,
		Comment:    comment,
		Actor:      &actor,
		Timestamp:  time.Now(),
	})

	var out dto.StatusUpdateResponse
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(dto.StatusUpdateRequest{Status: string(status), Comment: comment}).
			SetResult(&out).
			Patch(fmt.Sprintf("tickets/%d/status/", ticketID))
	})
	if err != nil {
		c.cache.DropOptimistic(ticketID, optimistic.ClientID)
		return domain.Ticket{}, err
	}
	if !resp.IsSuccess() {
		c.cache.DropOptimistic(ticketID, optimistic.ClientID)
		return domain.Ticket{}, statusError(resp)
	}

	serverTicket := out.Ticket.ToDomain()
	c.cache.Reconcile(ticketID, serverTicket, confirmingEntry(serverTicket.History, optimistic))

	updated, _ := c.cache.Get(ticketID)
	return updated, nil
}

// AssignTicket assigns a technician; the server moves the ticket to
// ASSIGNED and appends the history entry.
func (c *Client) AssignTicket(ctx context.Context, ticketID, technicianID int64) error {
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetBody(dto.AssignRequest{TechnicianID: technicianID}).
			Post(fmt.Sprintf("tickets/%d/assign/", ticketID))
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return c.RefreshTicket(ctx, ticketID)
}

// Technicians lists assignable technician accounts.
func (c *Client) Technicians(ctx context.Context) ([]domain.User, error) {
	var out []dto.UserPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get("users/technicians/")
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	users := make([]domain.User, 0, len(out))
	for _, payload := range out {
		users = append(users, payload.ToDomain())
	}
	return users, nil
}

// Divisions lists divisions for the submission form.
func (c *Client) Divisions(ctx context.Context) ([]domain.EntityRef, error) {
	return c.fetchRefList(ctx, "tickets/divisions/")
}

// Branches lists branches for the submission form.
func (c *Client) Branches(ctx context.Context) ([]domain.EntityRef, error) {
	return c.fetchRefList(ctx, "tickets/branches/")
}

// Notifications fetches the caller's notification list, newest first.
func (c *Client) Notifications(ctx context.Context) ([]domain.Notification, error) {
	var out []dto.NotificationPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get("notifications/")
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	items := make([]domain.Notification, 0, len(out))
	for _, payload := range out {
		items = append(items, payload.ToDomain())
	}
	return items, nil
}

// MarkNotificationRead confirms a read flag flip with the server.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Post(fmt.Sprintf("notifications/%d/read/", notificationID))
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}

func (c *Client) fetchTicketList(ctx context.Context, path string) ([]domain.Ticket, error) {
	var out []dto.TicketPayload
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get(path)
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	tickets := make([]domain.Ticket, 0, len(out))
	for _, payload := range out {
		ticket := payload.ToDomain()
		c.cache.Upsert(ticket)
		cached, _ := c.cache.Get(ticket.ID)
		tickets = append(tickets, cached)
	}
	return tickets, nil
}

func (c *Client) fetchRefList(ctx context.Context, path string) ([]domain.EntityRef, error) {
	var out []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	resp, err := c.gate.Do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Get(path)
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	refs := make([]domain.EntityRef, 0, len(out))
	for _, item := range out {
		refs = append(refs, domain.Reference(item.ID, item.Name))
	}
	return refs, nil
}

// confirmingEntry finds the server history entry that confirms the
// optimistic one, if the response carried it.
func confirmingEntry(history []domain.HistoryEntry, optimistic domain.HistoryEntry) *domain.HistoryEntry {
	for i := range history {
		if history[i].EquivalentTo(optimistic) {
			return &history[i]
		}
	}
	return nil
}

// statusError maps a non-2xx response into the client error taxonomy,
// pulling the backend's detail message when present.
func statusError(resp *resty.Response) error {
	var envelope dto.ErrorResponse
	_ = json.Unmarshal(resp.Body(), &envelope)
	return util.FromStatus(resp.StatusCode(), envelope.Detail)
}

func createBody(input CreateTicketInput) dto.CreateTicketRequest {
	return dto.CreateTicketRequest{
		Title:       input.Title,
		Description: input.Description,
		Priority:    string(input.Priority),
		Branch:      input.Branch,
		Division:    input.Division,
		Category:    input.Category,
		FullName:    input.FullName,
		Email:       input.Email,
		Phone:       input.Phone,
	}
}

func createForm(input CreateTicketInput) map[string]string {
	form := map[string]string{
		"title":       input.Title,
		"description": input.Description,
	}
	if input.Priority != "" {
		form["priority"] = string(input.Priority)
	}
	if input.Branch != "" {
		form["branch"] = input.Branch
	}
	if input.Division != "" {
		form["division"] = input.Division
	}
	if input.Category != "" {
		form["category"] = input.Category
	}
	if input.FullName != "" {
		form["full_name"] = input.FullName
	}
	if input.Email != "" {
		form["email"] = input.Email
	}
	if input.Phone != "" {
		form["phone"] = input.Phone
	}
	return form
}
