package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/config"
	"github.com/Pnishada/service-desk/internal/observability"
	"github.com/Pnishada/service-desk/internal/stubserver"
)

// stubd serves the in-memory stand-in backend so the client can be run and
// demoed without the real deployment. Seeded logins: admin, tech, staff,
// all with password "password".
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

	srv, err := stubserver.New(cfg.Stub, logger)
	if err != nil {
		logger.Fatal("failed to build stub server", zap.Error(err))
	}
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start stub server", zap.Error(err))
	}
	logger.Info("stub backend listening",
		zap.String("rest", cfg.Stub.Addr()),
		zap.String("ws", cfg.Stub.WSAddr()))

	waitForShutdown(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
