package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/api"
	"github.com/Pnishada/service-desk/internal/cache"
	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/events"
	"github.com/Pnishada/service-desk/internal/notify"
	"github.com/Pnishada/service-desk/internal/observability"
	"github.com/Pnishada/service-desk/internal/poller"
	"github.com/Pnishada/service-desk/internal/session"
	"github.com/Pnishada/service-desk/internal/transport"
)

// deskwatch runs the client core headless: it signs in with the
// DESK_USERNAME / DESK_PASSWORD credentials (or resumes a stored session),
// keeps the ticket cache warm on the poll cadence, and logs every live
// notification as it arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	sessions := session.NewStore(cfg.Session.FilePath, dispatcher, logger)

	gate := transport.NewGate(cfg.Client, sessions, metrics, logger, func() {
		logger.Info("session ended, sign in again")
	})
	tickets := cache.NewTicketCache(dispatcher, logger)
	client := api.NewClient(api.Dependencies{
		Gate:     gate,
		Sessions: sessions,
		Cache:    tickets,
		Logger:   logger,
	})

	if sess := sessions.Get(); !sess.Authenticated() {
		username, password := os.Getenv("DESK_USERNAME"), os.Getenv("DESK_PASSWORD")
		if username == "" {
			logger.Fatal("no stored session and DESK_USERNAME is unset")
		}
		if _, err := client.Login(ctx, username, password); err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
	}
	if sess := sessions.Get(); sess != nil {
		fields := []zap.Field{zap.String("user", sess.User.Username), zap.String("role", string(sess.User.Role))}
		if expiry, ok := session.AccessTokenExpiry(sess.Tokens.Access); ok {
			fields = append(fields, zap.Time("access_expires", expiry))
		}
		logger.Info("signed in", fields...)
	}

	dispatcher.Subscribe(events.EventNotificationReceived, func(_ context.Context, evt events.Event) error {
		if evt.Notification == nil {
			return nil
		}
		logger.Info("notification",
			zap.Int64("ticket_id", evt.Notification.TicketID),
			zap.String("ticket_status", string(evt.Notification.TicketStatus)),
			zap.String("message", evt.Notification.Message))
		return nil
	})
	dispatcher.Subscribe(events.EventTicketUpdated, func(_ context.Context, evt events.Event) error {
		logger.Debug("ticket updated", zap.Int64("ticket_id", evt.TicketID))
		return nil
	})

	channel := notify.NewChannel(cfg.Client.WSURL, sessions, tickets, client, dispatcher, logger)
	if seed, err := client.Notifications(ctx); err == nil {
		channel.Seed(seed)
	} else {
		logger.Warn("could not seed notifications", zap.Error(err))
	}
	channel.Start(ctx)

	refresher := poller.NewPoller(cfg.Client.PollInterval(), func(ctx context.Context) error {
		_, err := client.Tickets(ctx)
		return err
	}, logger)
	if err := refresher.Start(); err != nil {
		logger.Fatal("failed to start poller", zap.Error(err))
	}

	waitForShutdown(logger)

	refresher.Stop()
	channel.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
