package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// Janitor periodically removes sessions past their retention window from stores
// that do not expire them natively
type Janitor struct {
	store    repository.Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// JanitorConfig configures a Janitor
type JanitorConfig struct {
	Store    repository.Store
	TTL      time.Duration
	Interval time.Duration
	Now      func() time.Time
	Logger   *logrus.Logger
}

// NewJanitor creates a janitor; it does nothing until Start
func NewJanitor(cfg JanitorConfig) *Janitor {
	if cfg.TTL <= 0 {
		cfg.TTL = repository.DefaultSessionTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Janitor{
		store:    cfg.Store,
		ttl:      cfg.TTL,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Start launches the sweep loop. It reports false when the store expires sessions
// itself or the loop is already running.
func (j *Janitor) Start(ctx context.Context) bool {
	if j.store.NativeTTL() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.run(ctx, j.done)

	j.logger.WithField("interval", j.interval).Info("Session janitor started")
	return true
}

// Stop ends the sweep loop and waits for it to exit
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep expires every session idle for longer than the retention window
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	return j.store.ExpireStale(ctx, j.now().Add(-j.ttl))
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.Sweep(ctx)
			if err != nil {
				j.logger.WithError(err).Warn("Session sweep failed")
				continue
			}
			if removed > 0 {
				j.logger.WithField("removed", removed).Debug("Session sweep finished")
			}
		}
	}
}
