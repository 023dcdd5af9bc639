package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timoknapp/contest-dashboard/pkg/config"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/models"
)

// Refresher is the part of the contest cache the warmup job needs.
type Refresher interface {
	Refresh(ctx context.Context) ([]models.Contest, models.Availability)
}

// Sweeper is the part of the session registry the sweep job needs.
type Sweeper interface {
	Sweep(maxIdle time.Duration) int
}

type Config struct {
	WarmupEnabled  bool
	WarmupCron     string // e.g. "*/5 * * * *" (server local time)
	SweepCron      string
	SessionMaxIdle time.Duration
}

// FromConfig picks the scheduler settings out of the application config
func FromConfig(cfg *config.Config) Config {
	return Config{
		WarmupEnabled:  cfg.WarmupEnabled,
		WarmupCron:     cfg.WarmupCron,
		SweepCron:      cfg.SweepCron,
		SessionMaxIdle: cfg.SessionMaxIdle,
	}
}

type Scheduler struct {
	c        *cron.Cron
	config   Config
	contests Refresher
	sessions Sweeper
}

func New(cfg Config, contests Refresher, sessions Sweeper) (*Scheduler, error) {
	s := &Scheduler{
		c:        cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		config:   cfg,
		contests: contests,
		sessions: sessions,
	}
	if cfg.WarmupEnabled {
		if _, err := s.c.AddFunc(cfg.WarmupCron, s.Warmup); err != nil {
			return nil, err
		}
	}
	if _, err := s.c.AddFunc(cfg.SweepCron, s.Sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Warmup refreshes the contest cache outside of the request path.
func (s *Scheduler) Warmup() {
	logger.Info("Scheduler tick: running warmup job")
	contests, availability := s.contests.Refresh(context.Background())
	logger.Info("Scheduler warmup done, contests cached: %d (%s)", len(contests), availability)
}

// Sweep drops idle sessions.
func (s *Scheduler) Sweep() {
	removed := s.sessions.Sweep(s.config.SessionMaxIdle)
	logger.Debug("Scheduler sweep done, sessions removed: %d", removed)
}

func (s *Scheduler) Start() {
	logger.Info("Starting scheduler (warmup=%t, warmupCron=%s, sweepCron=%s)",
		s.config.WarmupEnabled, s.config.WarmupCron, s.config.SweepCron)
	s.c.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.c.Entries())
}
