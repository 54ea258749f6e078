package stubserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pnishada/service-desk/internal/api/dto"
	"github.com/Pnishada/service-desk/internal/domain"
)

const accountKey = "stub_account"

func detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}

// requireAuth validates the bearer token and loads the account.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return detail(c, http.StatusUnauthorized, "authentication credentials were not provided")
	}
	claims, err := s.tokens.Parse(parts[1], TokenKindAccess)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "token is invalid or expired")
	}

	s.mu.Lock()
	acct, ok := s.users[claims.UserID()]
	s.mu.Unlock()
	if !ok {
		return detail(c, http.StatusUnauthorized, "user not found")
	}
	c.Locals(accountKey, acct)
	return c.Next()
}

func principal(c *fiber.Ctx) *account {
	acct, _ := c.Locals(accountKey).(*account)
	return acct
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}

	s.mu.Lock()
	var acct *account
	for _, candidate := range s.users {
		if candidate.Username == req.Username {
			acct = candidate
			break
		}
	}
	s.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		return detail(c, http.StatusUnauthorized, "no active account found with the given credentials")
	}

	access, refresh, err := s.tokens.GeneratePair(acct.ID, acct.Role)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "token generation failed")
	}
	return c.JSON(dto.LoginResponse{Access: access, Refresh: refresh, User: acct.payload()})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}
	claims, err := s.tokens.Parse(req.Refresh, TokenKindRefresh)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "refresh token is invalid or expired")
	}

	s.mu.Lock()
	acct, ok := s.users[claims.UserID()]
	s.mu.Unlock()
	if !ok {
		return detail(c, http.StatusUnauthorized, "user not found")
	}

	access, err := s.tokens.GenerateAccess(acct.ID, acct.Role)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "token generation failed")
	}
	return c.JSON(dto.RefreshResponse{Access: access})
}

func (s *Server) handleListTickets(c *fiber.Ctx) error {
	acct := principal(c)
	return c.JSON(s.ticketList(func(t *ticketRecord) bool {
		switch acct.Role {
		case domain.RoleStaff:
			return t.CreatedBy != nil && t.CreatedBy.ID == acct.ID
		case domain.RoleTechnician:
			return t.AssignedTo != nil && t.AssignedTo.ID == acct.ID
		default:
			return true
		}
	}))
}

func (s *Server) handleMyTickets(c *fiber.Ctx) error {
	acct := principal(c)
	return c.JSON(s.ticketList(func(t *ticketRecord) bool {
		switch acct.Role {
		case domain.RoleStaff:
			return t.CreatedBy != nil && t.CreatedBy.ID == acct.ID
		case domain.RoleTechnician:
			return t.AssignedTo != nil && t.AssignedTo.ID == acct.ID
		default:
			return true
		}
	}))
}

func (s *Server) handleAssignedTickets(c *fiber.Ctx) error {
	acct := principal(c)
	return c.JSON(s.ticketList(func(t *ticketRecord) bool {
		switch acct.Role {
		case domain.RoleTechnician:
			return t.AssignedTo != nil && t.AssignedTo.ID == acct.ID
		case domain.RoleAdmin:
			return true
		default:
			return false
		}
	}))
}

func (s *Server) handleCompletedTickets(c *fiber.Ctx) error {
	return c.JSON(s.ticketList(func(t *ticketRecord) bool {
		return t.Status == domain.TicketStatusCompleted
	}))
}

func (s *Server) handleGetTicket(c *fiber.Ctx) error {
	ticketID, err := paramID(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "invalid ticket id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return detail(c, http.StatusNotFound, "ticket not found")
	}
	return c.JSON(ticket.payload(true))
}

func (s *Server) handleCreateTicket(c *fiber.Ctx) error {
	acct := principal(c)

	var req dto.CreateTicketRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req = dto.CreateTicketRequest{
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			Priority:    c.FormValue("priority"),
			Branch:      c.FormValue("branch"),
			Division:    c.FormValue("division"),
			Category:    c.FormValue("category"),
			FullName:    c.FormValue("full_name"),
			Email:       c.FormValue("email"),
			Phone:       c.FormValue("phone"),
		}
	} else if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}

	if strings.TrimSpace(req.Title) == "" {
		return detail(c, http.StatusBadRequest, "title is required")
	}
	priority := domain.TicketPriority(req.Priority)
	if priority == "" {
		priority = domain.TicketPriorityLow
	}

	var fileName string
	if file, err := c.FormFile("file"); err == nil && file != nil {
		fileName = "/media/ticket_files/" + file.Filename
	}

	s.mu.Lock()
	s.nextTicketID++
	now := time.Now().UTC()
	ticket := &ticketRecord{
		ID:          s.nextTicketID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		Branch:      firstOf(req.Branch, acct.Branch),
		Division:    req.Division,
		Category:    req.Category,
		FileName:    fileName,
		CreatedBy:   acct,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tickets[ticket.ID] = ticket
	s.notify(acct, ticket, fmt.Sprintf("New ticket '%s' created successfully.", ticket.Title))
	payload := ticket.payload(true)
	s.mu.Unlock()

	return c.Status(http.StatusCreated).JSON(payload)
}

func (s *Server) handleTicketHistory(c *fiber.Ctx) error {
	ticketID, err := paramID(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "invalid ticket id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return detail(c, http.StatusNotFound, "ticket not found")
	}

	entries := make([]dto.HistoryEntryPayload, 0, len(ticket.History))
	for _, record := range ticket.History {
		entries = append(entries, record.payload(ticket.ID))
	}
	return c.JSON(entries)
}

func (s *Server) handleUpdateStatus(c *fiber.Ctx) error {
	acct := principal(c)
	if !acct.Role.CanManageTickets() {
		return detail(c, http.StatusForbidden, "you do not have permission to change ticket status")
	}

	ticketID, err := paramID(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "invalid ticket id")
	}

	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}
	requested := domain.TicketStatus(req.Status)
	if !requested.Valid() {
		return detail(c, http.StatusBadRequest, "invalid status")
	}

	s.mu.Lock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		s.mu.Unlock()
		return detail(c, http.StatusNotFound, "ticket not found")
	}
	if ticket.Status == domain.TicketStatusClosed {
		s.mu.Unlock()
		return detail(c, http.StatusBadRequest, "ticket is closed")
	}

	from := ticket.Status
	ticket.Status = requested
	now := time.Now().UTC()
	ticket.UpdatedAt = now
	if requested == domain.TicketStatusCompleted {
		ticket.CompletedAt = &now
	} else {
		ticket.CompletedAt = nil
	}

	s.nextHistoryID++
	ticket.History = append(ticket.History, historyRecord{
		ID:          s.nextHistoryID,
		Action:      fmt.Sprintf("Status changed: %s to %s", from, requested),
		FromStatus:  from,
		ToStatus:    requested,
		Comment:     req.Comment,
		PerformedBy: acct,
		Timestamp:   now,
	})

	if ticket.CreatedBy != nil && ticket.CreatedBy.ID != acct.ID {
		s.notify(ticket.CreatedBy, ticket, fmt.Sprintf("Ticket '%s' is now %s.", ticket.Title, requested))
	}
	if ticket.AssignedTo != nil && ticket.AssignedTo.ID != acct.ID {
		s.notify(ticket.AssignedTo, ticket, fmt.Sprintf("Ticket '%s' is now %s.", ticket.Title, requested))
	}
	payload := ticket.payload(true)
	s.mu.Unlock()

	return c.JSON(fiber.Map{"ticket": payload})
}

func (s *Server) handleAssignTicket(c *fiber.Ctx) error {
	acct := principal(c)
	if acct.Role != domain.RoleAdmin {
		return detail(c, http.StatusForbidden, "only admins may assign tickets")
	}

	ticketID, err := paramID(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "invalid ticket id")
	}

	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}

	s.mu.Lock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		s.mu.Unlock()
		return detail(c, http.StatusNotFound, "ticket not found")
	}
	technician, ok := s.users[req.TechnicianID]
	if !ok || technician.Role != domain.RoleTechnician {
		s.mu.Unlock()
		return detail(c, http.StatusNotFound, "technician not found")
	}

	from := ticket.Status
	ticket.AssignedTo = technician
	ticket.Status = domain.TicketStatusAssigned
	now := time.Now().UTC()
	ticket.UpdatedAt = now

	s.nextHistoryID++
	ticket.History = append(ticket.History, historyRecord{
		ID:          s.nextHistoryID,
		Action:      fmt.Sprintf("Ticket assigned to %s", technician.FullName),
		FromStatus:  from,
		ToStatus:    domain.TicketStatusAssigned,
		PerformedBy: acct,
		Timestamp:   now,
	})
	s.notify(technician, ticket, fmt.Sprintf("You have been assigned a new ticket: %s", ticket.Title))
	message := fmt.Sprintf("Ticket assigned to %s", technician.FullName)
	s.mu.Unlock()

	return c.JSON(fiber.Map{"message": message})
}

func (s *Server) handleTechnicians(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	technicians := make([]dto.UserPayload, 0)
	for _, acct := range s.users {
		if acct.Role == domain.RoleTechnician {
			technicians = append(technicians, acct.payload())
		}
	}
	sort.Slice(technicians, func(i, j int) bool { return technicians[i].ID < technicians[j].ID })
	return c.JSON(technicians)
}

func (s *Server) handleDivisions(c *fiber.Ctx) error {
	return c.JSON(s.refList(s.divisions))
}

func (s *Server) handleBranches(c *fiber.Ctx) error {
	return c.JSON(s.refList(s.branches))
}

func (s *Server) handleListNotifications(c *fiber.Ctx) error {
	acct := principal(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.NotificationPayload, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == acct.ID {
			out = append(out, s.notifications[i].payload())
		}
	}
	return c.JSON(out)
}

func (s *Server) handleMarkRead(c *fiber.Ctx) error {
	acct := principal(c)
	notificationID, err := paramID(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "invalid notification id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.notifications {
		if record.ID == notificationID && record.UserID == acct.ID {
			record.Read = true
			return c.JSON(fiber.Map{"message": "notification marked as read"})
		}
	}
	return detail(c, http.StatusNotFound, "notification not found")
}

func (s *Server) ticketList(include func(*ticketRecord) bool) []dto.TicketPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*ticketRecord, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if include(ticket) {
			records = append(records, ticket)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })

	out := make([]dto.TicketPayload, 0, len(records))
	for _, ticket := range records {
		out = append(out, ticket.payload(false))
	}
	return out
}

func (s *Server) refList(records []refRecord) []fiber.Map {
	out := make([]fiber.Map, 0, len(records))
	for _, record := range records {
		out = append(out, fiber.Map{"id": record.ID, "name": record.Name})
	}
	return out
}

func (a *account) payload() dto.UserPayload {
	active := true
	return dto.UserPayload{
		ID:       a.ID,
		Username: a.Username,
		FullName: a.FullName,
		Email:    a.Email,
		Role:     string(a.Role),
		Branch:   domain.Inline(a.Branch),
		IsActive: &active,
	}
}

// payload serializes a ticket the way the backend does: a nested created_by
// object plus the flat created_by_name / creator_email / creator_phone
// fields, so the client's normalization sees both variants at once.
func (t *ticketRecord) payload(includeHistory bool) dto.TicketPayload {
	out := dto.TicketPayload{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Branch:      domain.Inline(t.Branch),
		Division:    domain.Inline(t.Division),
		Category:    t.Category,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
	if t.FileName != "" {
		fileName := t.FileName
		out.File = &fileName
	}
	if t.CreatedBy != nil {
		raw, _ := json.Marshal(t.CreatedBy.payload())
		out.CreatedBy = raw
		out.CreatedByName = t.CreatedBy.FullName
		out.CreatorEmail = t.CreatedBy.Email
		out.CreatorPhone = t.CreatedBy.Phone
	}
	if t.AssignedTo != nil {
		assignee := t.AssignedTo.payload()
		out.AssignedTo = &assignee
	}
	if includeHistory {
		for _, record := range t.History {
			out.History = append(out.History, record.payload(t.ID))
		}
	}
	return out
}

func (h historyRecord) payload(ticketID int64) dto.HistoryEntryPayload {
	out := dto.HistoryEntryPayload{
		ID:         h.ID,
		Ticket:     ticketID,
		Action:     h.Action,
		FromStatus: string(h.FromStatus),
		ToStatus:   string(h.ToStatus),
		Comment:    h.Comment,
		Timestamp:  h.Timestamp,
	}
	if h.PerformedBy != nil {
		performer := h.PerformedBy.payload()
		out.PerformedBy = &performer
	}
	return out
}

func paramID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
