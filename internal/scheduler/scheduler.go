// Package scheduler runs recurring maintenance for cpx, currently glossary
// cache expiry sweeps on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clearpath-media/cp-whisperx/internal/glossary"
)

// cronParser accepts the 6-field (with seconds) expressions used in the
// maintenance configuration.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateCron validates a maintenance cron expression.
func ValidateCron(expr string) error {
	_, err := cronParser.Parse(expr)
	return err
}

// Maintenance owns the background maintenance loop.
type Maintenance struct {
	mu sync.Mutex

	cache    *glossary.Cache
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Maintenance.
type Option func(*Maintenance)

// WithLogger sets the maintenance logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Maintenance) { m.logger = logger }
}

// WithClock overrides the maintenance clock.
func WithClock(now func() time.Time) Option {
	return func(m *Maintenance) { m.now = now }
}

// New creates the maintenance loop for the glossary cache on the given cron
// expression.
func New(cache *glossary.Cache, cronExpr string, opts ...Option) (*Maintenance, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance cron expression %q: %w", cronExpr, err)
	}
	m := &Maintenance{
		cache:    cache,
		schedule: schedule,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins the maintenance loop. It returns an error when already
// started.
func (m *Maintenance) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("maintenance already started")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("maintenance started",
		slog.Time("next_run", m.schedule.Next(m.now())),
	)
	return nil
}

// Stop stops the maintenance loop and waits for an in-flight sweep.
func (m *Maintenance) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.cancel = nil
	m.mu.Unlock()
	m.logger.Info("maintenance stopped")
}

func (m *Maintenance) loop(ctx context.Context) {
	defer m.wg.Done()

	for {
		next := m.schedule.Next(m.now())
		timer := time.NewTimer(next.Sub(m.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := m.RunCleanup(); err != nil {
				m.logger.Error("glossary cache cleanup failed", slog.Any("error", err))
			}
		}
	}
}

// RunCleanup sweeps expired glossary cache entries once and returns how many
// were removed. It is safe to call outside the loop (the cache serializes its
// own index updates).
func (m *Maintenance) RunCleanup() (int, error) {
	removed, err := m.cache.CleanupExpired()
	if err != nil {
		return 0, err
	}
	m.logger.Info("glossary cache cleanup complete",
		slog.Int("removed", removed),
		slog.Time("next_run", m.schedule.Next(m.now())),
	)
	return removed, nil
}

// NextRun reports when the next sweep is due.
func (m *Maintenance) NextRun() time.Time {
	return m.schedule.Next(m.now())
}
