package api

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Pnishada/service-desk/internal/cache"
	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/observability"
	"github.com/Pnishada/service-desk/internal/session"
	"github.com/Pnishada/service-desk/internal/stubserver"
	"github.com/Pnishada/service-desk/internal/transport"
	"github.com/Pnishada/service-desk/pkg/util"
)

func startStub(t *testing.T) *stubserver.Server {
	t.Helper()
	srv, err := stubserver.New(config.StubConfig{
		JWTSecret:              "test-secret",
		AccessTokenTTLMinutes:  60,
		RefreshTokenTTLMinutes: 120,
		BcryptCost:             bcrypt.MinCost,
	}, zap.NewNop())
	require.NoError(t, err)

	restLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	wsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Listen(restLn, wsLn))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

type harness struct {
	client   *Client
	sessions *session.Store
	cache    *cache.TicketCache
}

func newHarness(t *testing.T, srv *stubserver.Server) *harness {
	t.Helper()
	sessions := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, zap.NewNop())
	gate := transport.NewGate(config.ClientConfig{
		BaseURL:               srv.URL(),
		RequestTimeoutSeconds: 5,
	}, sessions, observability.NewMetrics(), zap.NewNop(), nil)
	tickets := cache.NewTicketCache(nil, zap.NewNop())
	client := NewClient(Dependencies{Gate: gate, Sessions: sessions, Cache: tickets, Logger: zap.NewNop()})
	return &harness{client: client, sessions: sessions, cache: tickets}
}

func loginAs(t *testing.T, h *harness, username string) *domain.Session {
	t.Helper()
	sess, err := h.client.Login(context.Background(), username, "password")
	require.NoError(t, err)
	return sess
}

func TestLoginStoresSession(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)

	sess := loginAs(t, h, "staff")
	assert.Equal(t, domain.RoleStaff, sess.User.Role)
	assert.Equal(t, "Kumari Fernando", sess.User.FullName)
	assert.NotEmpty(t, sess.Tokens.Access)
	assert.NotEmpty(t, sess.Tokens.Refresh)
	require.NotNil(t, h.sessions.Get())
	assert.True(t, h.sessions.Get().Authenticated())
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)

	_, err := h.client.Login(context.Background(), "staff", "wrong")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindAuthInvalid))
	assert.Nil(t, h.sessions.Get())
}

func TestCreateAndListTickets(t *testing.T) {
	srv := startStub(t)
	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")

	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{
		Title:       "Printer out of toner",
		Description: "Third floor printer",
		Priority:    domain.TicketPriorityHigh,
		Division:    "IT Operations",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)
	assert.Equal(t, domain.TicketPriorityHigh, created.Priority)
	assert.Equal(t, "Kumari Fernando", created.Creator.Name)
	assert.Empty(t, created.History, "a fresh ticket has no transitions yet")

	mine, err := staff.client.MyTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)
	assert.Equal(t, domain.TicketStatusOpen, mine[0].Status)

	cached, ok := staff.cache.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, created.Title, cached.Title)
}

func TestCreateTicketDefaultsPriority(t *testing.T) {
	srv := startStub(t)
	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")

	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{Title: "Flickering lights"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityLow, created.Priority)
}

func TestCreateTicketWithAttachment(t *testing.T) {
	srv := startStub(t)
	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")

	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{
		Title:      "VPN errors",
		Attachment: strings.NewReader("dial timeout\n"),
		FileName:   "vpn.log",
	})
	require.NoError(t, err)
	assert.Contains(t, created.FileURL, "vpn.log")
}

func TestAssignAndUpdateStatusFlow(t *testing.T) {
	srv := startStub(t)

	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")
	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{Title: "Laptop battery"})
	require.NoError(t, err)

	admin := newHarness(t, srv)
	loginAs(t, admin, "admin")
	require.NoError(t, admin.client.AssignTicket(context.Background(), created.ID, 2))

	assigned, ok := admin.cache.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TicketStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.Assignee)
	assert.Equal(t, int64(2), assigned.Assignee.ID)
	require.Len(t, assigned.History, 1)
	assert.True(t, assigned.History[0].Confirmed())

	tech := newHarness(t, srv)
	loginAs(t, tech, "tech")
	list, err := tech.client.AssignedTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := tech.client.UpdateStatus(context.Background(), created.ID, domain.TicketStatusInProgress, "swapping the battery")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.Len(t, updated.History, 2)
	last := updated.History[len(updated.History)-1]
	assert.True(t, last.Confirmed(), "optimistic entry replaced by the server record")
	assert.Equal(t, domain.TicketStatusAssigned, last.FromStatus)
	assert.Equal(t, domain.TicketStatusInProgress, last.ToStatus)
	assert.Equal(t, "swapping the battery", last.Comment)

	history, err := tech.client.History(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TicketStatusAssigned, history[0].ToStatus)
	assert.Equal(t, domain.TicketStatusInProgress, history[1].ToStatus)
}

func TestUpdateStatusRejectedLocallyForStaff(t *testing.T) {
	srv := startStub(t)
	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")
	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{Title: "Broken chair"})
	require.NoError(t, err)

	_, err = staff.client.UpdateStatus(context.Background(), created.ID, domain.TicketStatusCompleted, "")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidationRejected))

	cached, _ := staff.cache.Get(created.ID)
	assert.Empty(t, cached.History, "rejected before any request or optimistic entry")
}

func TestUpdateStatusServerRejectionRollsBack(t *testing.T) {
	srv := startStub(t)

	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")
	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{Title: "Monitor dead"})
	require.NoError(t, err)

	admin := newHarness(t, srv)
	loginAs(t, admin, "admin")
	require.NoError(t, admin.client.AssignTicket(context.Background(), created.ID, 2))

	tech := newHarness(t, srv)
	loginAs(t, tech, "tech")
	_, err = tech.client.Ticket(context.Background(), created.ID)
	require.NoError(t, err)

	// Another operator closes the ticket; our cache is now stale, so the
	// local guard passes and the server has the final say.
	srv.SetTicketStatus(created.ID, domain.TicketStatusClosed)

	_, err = tech.client.UpdateStatus(context.Background(), created.ID, domain.TicketStatusCompleted, "done")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindValidationRejected))
	assert.Contains(t, err.Error(), "closed")

	cached, _ := tech.cache.Get(created.ID)
	for _, entry := range cached.History {
		assert.True(t, entry.Confirmed(), "the optimistic entry was rolled back")
	}
}

func TestUpdateStatusNetworkFailureRollsBack(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sessions := session.NewStore(filepath.Join(t.TempDir(), "session.json"), nil, zap.NewNop())
	require.NoError(t, sessions.Set(
		domain.User{ID: 2, Username: "tech", Role: domain.RoleTechnician},
		domain.Tokens{Access: "access-token", Refresh: "refresh-token"},
	))
	gate := transport.NewGate(config.ClientConfig{
		BaseURL:               "http://" + addr + "/",
		RequestTimeoutSeconds: 2,
	}, sessions, observability.NewMetrics(), zap.NewNop(), nil)
	tickets := cache.NewTicketCache(nil, zap.NewNop())
	client := NewClient(Dependencies{Gate: gate, Sessions: sessions, Cache: tickets, Logger: zap.NewNop()})

	tickets.Upsert(domain.Ticket{ID: 7, Status: domain.TicketStatusAssigned})

	_, err = client.UpdateStatus(context.Background(), 7, domain.TicketStatusInProgress, "no link")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindNetworkUnavailable))

	cached, ok := tickets.Get(7)
	require.True(t, ok)
	assert.Empty(t, cached.History, "optimistic entry rolled back when the request never reached the server")
	assert.Equal(t, domain.TicketStatusAssigned, cached.Status)
}

func TestUpdateStatusRequiresSession(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)

	_, err := h.client.UpdateStatus(context.Background(), 1, domain.TicketStatusClosed, "")
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindAuthInvalid))
}

func TestTicketNotFound(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)
	loginAs(t, h, "admin")

	_, err := h.client.Ticket(context.Background(), 9999)
	require.Error(t, err)
	assert.True(t, util.IsKind(err, util.KindNotFound))
}

func TestReferenceData(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)
	loginAs(t, h, "staff")

	divisions, err := h.client.Divisions(context.Background())
	require.NoError(t, err)
	require.Len(t, divisions, 2)
	assert.Equal(t, "IT Operations", divisions[0].Name)

	branches, err := h.client.Branches(context.Background())
	require.NoError(t, err)
	require.Len(t, branches, 2)

	technicians, err := h.client.Technicians(context.Background())
	require.NoError(t, err)
	require.Len(t, technicians, 1)
	assert.Equal(t, "Nuwan Silva", technicians[0].FullName)
	assert.Equal(t, domain.RoleTechnician, technicians[0].Role)
}

func TestNotificationsRoundTrip(t *testing.T) {
	srv := startStub(t)
	staff := newHarness(t, srv)
	loginAs(t, staff, "staff")

	created, err := staff.client.CreateTicket(context.Background(), CreateTicketInput{Title: "Phone extension dead"})
	require.NoError(t, err)

	items, err := staff.client.Notifications(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, created.ID, items[0].TicketID)
	assert.False(t, items[0].Read)

	require.NoError(t, staff.client.MarkNotificationRead(context.Background(), items[0].ID))

	items, err = staff.client.Notifications(context.Background())
	require.NoError(t, err)
	assert.True(t, items[0].Read)
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)
	sess := loginAs(t, h, "staff")

	// Corrupt only the access token; the stored refresh token must repair
	// the session without the caller noticing.
	require.NoError(t, h.sessions.UpdateAccessToken("garbage"))

	_, err := h.client.MyTickets(context.Background())
	require.NoError(t, err)

	repaired := h.sessions.Get()
	require.NotNil(t, repaired)
	assert.NotEqual(t, "garbage", repaired.Tokens.Access)
	assert.Equal(t, sess.Tokens.Refresh, repaired.Tokens.Refresh)
}

func TestLogoutClearsSession(t *testing.T) {
	srv := startStub(t)
	h := newHarness(t, srv)
	loginAs(t, h, "staff")

	h.client.Logout()
	assert.Nil(t, h.sessions.Get())
}
