package stubserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pnishada/service-desk/internal/api/dto"
	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/domain"
)

// Server is an in-memory stand-in for the helpdesk backend. Integration
// tests and the stubd binary run the client core against it; it implements
// just enough of the REST surface and the notification feed for every
// client path to be exercised without external services.
type Server struct {
	cfg    config.StubConfig
	logger *zap.Logger
	app    *fiber.App
	hub    *Hub
	tokens *TokenManager

	mu                 sync.Mutex
	users              map[int64]*account
	tickets            map[int64]*ticketRecord
	notifications      []*notificationRecord
	divisions          []refRecord
	branches           []refRecord
	nextTicketID       int64
	nextHistoryID      int64
	nextNotificationID int64

	restLn net.Listener
	wsLn   net.Listener
}

type account struct {
	ID           int64
	Username     string
	FullName     string
	Email        string
	Phone        string
	Role         domain.Role
	Branch       string
	PasswordHash string
}

type ticketRecord struct {
	ID          int64
	Title       string
	Description string
	Status      domain.TicketStatus
	Priority    domain.TicketPriority
	Branch      string
	Division    string
	Category    string
	FileName    string
	CreatedBy   *account
	AssignedTo  *account
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	History     []historyRecord
}

type historyRecord struct {
	ID          int64
	Action      string
	FromStatus  domain.TicketStatus
	ToStatus    domain.TicketStatus
	Comment     string
	PerformedBy *account
	Timestamp   time.Time
}

type notificationRecord struct {
	ID        int64
	UserID    int64
	Ticket    *ticketRecord
	Message   string
	Read      bool
	CreatedAt time.Time
}

type refRecord struct {
	ID   int64
	Name string
}

// New builds a stub server with three seeded accounts (admin, technician,
// staff, password "password" for all) and empty ticket state.
func New(cfg config.StubConfig, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		tokens:  NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes, cfg.RefreshTokenTTLMinutes),
		users:   make(map[int64]*account),
		tickets: make(map[int64]*ticketRecord),
		divisions: []refRecord{
			{ID: 1, Name: "IT Operations"},
			{ID: 2, Name: "Facilities"},
		},
		branches: []refRecord{
			{ID: 1, Name: "Head Office"},
			{ID: 2, Name: "Regional Office"},
		},
	}
	s.hub = NewHub(s.tokens, logger)

	if err := s.seedUsers(); err != nil {
		return nil, err
	}

	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.app.Use(s.requestLogger())
	s.registerRoutes()
	return s, nil
}

func (s *Server) seedUsers() error {
	seeds := []account{
		{ID: 1, Username: "admin", FullName: "Asha Perera", Email: "admin@desk.local", Role: domain.RoleAdmin, Branch: "Head Office"},
		{ID: 2, Username: "tech", FullName: "Nuwan Silva", Email: "tech@desk.local", Phone: "0771234567", Role: domain.RoleTechnician, Branch: "Head Office"},
		{ID: 3, Username: "staff", FullName: "Kumari Fernando", Email: "staff@desk.local", Phone: "0719876543", Role: domain.RoleStaff, Branch: "Regional Office"},
	}
	cost := s.cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	for i := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), cost)
		if err != nil {
			return err
		}
		acct := seeds[i]
		acct.PasswordHash = string(hash)
		s.users[acct.ID] = &acct
	}
	return nil
}

// Start listens on the configured REST and websocket addresses.
func (s *Server) Start() error {
	restLn, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	wsLn, err := net.Listen("tcp", s.cfg.WSAddr())
	if err != nil {
		restLn.Close()
		return err
	}
	return s.Listen(restLn, wsLn)
}

// Listen serves on the provided listeners; tests pass ephemeral ones.
func (s *Server) Listen(restLn, wsLn net.Listener) error {
	s.restLn = restLn
	s.wsLn = wsLn
	s.hub.Serve(wsLn)
	go func() {
		if err := s.app.Listener(restLn); err != nil {
			s.logger.Warn("stub REST listener stopped", zap.Error(err))
		}
	}()
	return nil
}

// URL returns the REST base URL, with the trailing slash the client expects.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s/", s.restLn.Addr().String())
}

// WSURL returns the notification subscription URL.
func (s *Server) WSURL() string {
	return fmt.Sprintf("ws://%s/ws/notifications/", s.wsLn.Addr().String())
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) {
	s.hub.Shutdown(ctx)
	_ = s.app.ShutdownWithContext(ctx)
}

// Hub exposes the notification fan-out for tests that push frames directly.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetTicketStatus mutates a ticket out of band, as if another client had
// acted; tests use it to make the cache stale on purpose.
func (s *Server) SetTicketStatus(ticketID int64, status domain.TicketStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket, ok := s.tickets[ticketID]; ok {
		ticket.Status = status
		ticket.UpdatedAt = time.Now().UTC()
	}
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		s.logger.Debug("stub request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()))
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Post("/auth/login/", s.handleLogin)
	s.app.Post("/auth/refresh/", s.handleRefresh)

	authed := s.app.Group("", s.requireAuth)
	authed.Get("/tickets/", s.handleListTickets)
	authed.Get("/tickets/mine/", s.handleMyTickets)
	authed.Get("/tickets/assigned/", s.handleAssignedTickets)
	authed.Get("/tickets/completed/", s.handleCompletedTickets)
	authed.Get("/tickets/divisions/", s.handleDivisions)
	authed.Get("/tickets/branches/", s.handleBranches)
	authed.Post("/tickets/", s.handleCreateTicket)
	authed.Get("/tickets/:id/", s.handleGetTicket)
	authed.Get("/tickets/:id/history/", s.handleTicketHistory)
	authed.Patch("/tickets/:id/status/", s.handleUpdateStatus)
	authed.Post("/tickets/:id/assign/", s.handleAssignTicket)
	authed.Get("/users/technicians/", s.handleTechnicians)
	authed.Get("/notifications/", s.handleListNotifications)
	authed.Post("/notifications/:id/read/", s.handleMarkRead)
}

// notify records a notification and pushes it on the live channel, the way
// the real backend's post-save signal does.
func (s *Server) notify(user *account, ticket *ticketRecord, message string) {
	if user == nil {
		return
	}
	s.nextNotificationID++
	record := &notificationRecord{
		ID:        s.nextNotificationID,
		UserID:    user.ID,
		Ticket:    ticket,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	s.notifications = append(s.notifications, record)
	s.hub.Broadcast(user.ID, record.payload())
}

func (r *notificationRecord) payload() dto.NotificationPayload {
	return dto.NotificationPayload{
		ID:           r.ID,
		Ticket:       r.Ticket.ID,
		TicketTitle:  r.Ticket.Title,
		TicketStatus: string(r.Ticket.Status),
		Message:      r.Message,
		Read:         r.Read,
		CreatedAt:    r.CreatedAt,
	}
}
