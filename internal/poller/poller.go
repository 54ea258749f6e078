package poller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Poller re-fetches dashboard data on a fixed cadence, with an explicit
// lifecycle tied to the view that owns it. While suspended (a modal holding
// exclusive focus) scheduled runs are skipped, not queued.
type Poller struct {
	interval  time.Duration
	refresh   func(context.Context) error
	logger    *zap.Logger
	cron      *cron.Cron
	suspended atomic.Bool
	running   atomic.Bool
}

// NewPoller builds a poller around the given refresh func.
func NewPoller(interval time.Duration, refresh func(context.Context) error, logger *zap.Logger) *Poller {
	return &Poller{
		interval: interval,
		refresh:  refresh,
		logger:   logger,
	}
}

// Start begins scheduling. Idempotent while running.
func (p *Poller) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}
	p.cron = cron.New()
	_, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), p.tick)
	if err != nil {
		p.running.Store(false)
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// Suspend skips scheduled runs until Resume.
func (p *Poller) Suspend() {
	p.suspended.Store(true)
}

// Resume re-enables scheduled runs.
func (p *Poller) Resume() {
	p.suspended.Store(false)
}

func (p *Poller) tick() {
	if p.suspended.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	if err := p.refresh(ctx); err != nil {
		p.logger.Debug("scheduled refresh failed", zap.Error(err))
	}
}
