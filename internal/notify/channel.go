package notify

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/api/dto"
	"github.com/Pnishada/service-desk/internal/cache"
	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/events"
	"github.com/Pnishada/service-desk/internal/session"
)

// Backend is the slice of the API client the channel needs: re-fetching a
// ticket referenced by a push, and confirming read flags.
type Backend interface {
	RefreshTicket(ctx context.Context, ticketID int64) error
	MarkNotificationRead(ctx context.Context, notificationID int64) error
}

// Channel maintains the live notification subscription. The access token is
// supplied at connect time only; a dropped connection is re-dialed with
// exponential backoff until the session is cleared, after which the channel
// stays down for good.
type Channel struct {
	wsURL      string
	sessions   *session.Store
	tickets    *cache.TicketCache
	backend    Backend
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu            sync.Mutex
	notifications []domain.Notification

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel constructs the channel; Start begins the subscription.
func NewChannel(wsURL string, sessions *session.Store, tickets *cache.TicketCache, backend Backend, dispatcher events.Dispatcher, logger *zap.Logger) *Channel {
	return &Channel{
		wsURL:      wsURL,
		sessions:   sessions,
		tickets:    tickets,
		backend:    backend,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Seed loads an initial notification list, typically from GET notifications/.
func (ch *Channel) Seed(notifications []domain.Notification) {
	ch.mu.Lock()
	ch.notifications = append([]domain.Notification{}, notifications...)
	ch.mu.Unlock()
}

// Start launches the subscription loop. Calling Start on a running channel
// is a no-op.
func (ch *Channel) Start(ctx context.Context) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch.cancel = cancel
	ch.done = make(chan struct{})
	go ch.run(runCtx)
}

// Stop tears the subscription down and waits for the loop to exit.
func (ch *Channel) Stop() {
	ch.mu.Lock()
	cancel, done := ch.cancel, ch.done
	ch.cancel = nil
	ch.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Notifications returns the current list, newest first.
func (ch *Channel) Notifications() []domain.Notification {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]domain.Notification{}, ch.notifications...)
}

// MarkRead optimistically flips the local read flag and confirms it with
// the server; on failure the flag is reverted and the error surfaced.
func (ch *Channel) MarkRead(ctx context.Context, notificationID int64) error {
	if !ch.setRead(notificationID, true) {
		return nil
	}
	if err := ch.backend.MarkNotificationRead(ctx, notificationID); err != nil {
		ch.setRead(notificationID, false)
		return err
	}
	return nil
}

func (ch *Channel) setRead(notificationID int64, read bool) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i := range ch.notifications {
		if ch.notifications[i].ID == notificationID {
			ch.notifications[i].Read = read
			return true
		}
	}
	return false
}

func (ch *Channel) run(ctx context.Context) {
	defer close(ch.done)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 250 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0 // retry until logout

	for {
		if ctx.Err() != nil {
			return
		}
		sess := ch.sessions.Get()
		if !sess.Authenticated() {
			// Logged out: give up silently, no reconnect.
			return
		}

		conn, err := ch.dial(ctx, sess.Tokens.Access)
		if err != nil {
			ch.logger.Debug("notification dial failed", zap.Error(err))
			if !ch.sleep(ctx, retry.NextBackOff()) {
				return
			}
			continue
		}

		retry.Reset()
		ch.readLoop(ctx, conn)
		_ = conn.Close()

		if !ch.sleep(ctx, retry.NextBackOff()) {
			return
		}
	}
}

func (ch *Channel) dial(ctx context.Context, accessToken string) (*websocket.Conn, error) {
	endpoint, err := url.Parse(ch.wsURL)
	if err != nil {
		return nil, err
	}
	query := endpoint.Query()
	query.Set("token", accessToken)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	return conn, err
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var payload dto.NotificationPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.ID == 0 {
			// A bad frame never takes the channel down.
			ch.logger.Warn("discarding malformed notification frame", zap.Error(err))
			continue
		}
		ch.deliver(ctx, payload.ToDomain())
	}
}

func (ch *Channel) deliver(ctx context.Context, notification domain.Notification) {
	ch.mu.Lock()
	ch.notifications = append([]domain.Notification{notification}, ch.notifications...)
	ch.mu.Unlock()

	if ch.dispatcher != nil {
		_ = ch.dispatcher.Publish(ctx, events.NotificationReceived(notification))
	}

	// A push about a cached ticket means our snapshot is stale; refresh it
	// in the background so the direct-update path is never blocked.
	if _, cached := ch.tickets.Get(notification.TicketID); cached && ch.backend != nil {
		go func() {
			if err := ch.backend.RefreshTicket(ctx, notification.TicketID); err != nil {
				ch.logger.Debug("push-triggered refresh failed", zap.Int64("ticket_id", notification.TicketID), zap.Error(err))
			}
		}()
	}
}

func (ch *Channel) sleep(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
