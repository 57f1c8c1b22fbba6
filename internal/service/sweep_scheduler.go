package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Leaser grants a time-bound exclusive lease across replicas.
type Leaser interface {
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, owner string) error
}

type statusSweeper interface {
	RunStatusSweep(ctx context.Context, now time.Time) (*SweepReport, error)
}

type counterResetter interface {
	ResetRequestCounters(ctx context.Context, actorGUID string) ([]CounterReset, error)
}

// SchedulerConfig controls the background sweep loop.
type SchedulerConfig struct {
	Interval      time.Duration
	LeaseKey      string
	LeaseTTL      time.Duration
	ResetCounters bool
	Location      *time.Location
}

// SweepScheduler runs the status sweep on an interval. A Redis lease keeps
// replicas from sweeping concurrently; on January 1 it also resets the agency
// request counters once per year.
type SweepScheduler struct {
	sweeper  statusSweeper
	resetter counterResetter
	leaser   Leaser
	cfg      SchedulerConfig
	owner    string
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	resetYear int
}

// NewSweepScheduler constructs the scheduler.
func NewSweepScheduler(sweeper statusSweeper, resetter counterResetter, leaser Leaser, cfg SchedulerConfig, logger *zap.Logger) *SweepScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = "foil:sweeper:lease"
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		resetter: resetter,
		leaser:   leaser,
		cfg:      cfg,
		owner:    uuid.NewString(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the loop. It returns immediately.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.logger.Info("sweep scheduler started", zap.Duration("interval", s.cfg.Interval))
}

// Stop cancels the loop and waits for an in-flight tick.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SweepScheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduled pass. It reports whether this replica swept.
func (s *SweepScheduler) Tick(ctx context.Context) bool {
	now := s.now()
	if s.cfg.ResetCounters && s.resetter != nil {
		s.maybeResetCounters(ctx, now)
	}

	acquired, err := s.leaser.AcquireLease(ctx, s.cfg.LeaseKey, s.owner, s.cfg.LeaseTTL)
	if err != nil {
		s.logger.Warn("sweep lease unavailable", zap.Error(err))
		return false
	}
	if !acquired {
		s.logger.Debug("sweep lease held by another replica")
		return false
	}
	defer func() {
		if err := s.leaser.ReleaseLease(context.WithoutCancel(ctx), s.cfg.LeaseKey, s.owner); err != nil {
			s.logger.Warn("sweep lease release failed", zap.Error(err))
		}
	}()

	if _, err := s.sweeper.RunStatusSweep(ctx, now); err != nil {
		s.logger.Error("status sweep failed", zap.Error(err))
	}
	return true
}

// maybeResetCounters resets once on January 1 local time. The lease key is
// never released so other replicas and later ticks skip the year.
func (s *SweepScheduler) maybeResetCounters(ctx context.Context, now time.Time) {
	local := now.In(s.cfg.Location)
	if local.Month() != time.January || local.Day() != 1 {
		return
	}
	if s.resetYear == local.Year() {
		return
	}
	key := fmt.Sprintf("foil:counter-reset:%d", local.Year())
	acquired, err := s.leaser.AcquireLease(ctx, key, s.owner, 72*time.Hour)
	if err != nil {
		s.logger.Warn("counter reset lease unavailable", zap.Error(err))
		return
	}
	if !acquired {
		s.resetYear = local.Year()
		return
	}
	resets, err := s.resetter.ResetRequestCounters(ctx, "")
	if err != nil {
		s.logger.Error("request counter reset failed", zap.Error(err))
		_ = s.leaser.ReleaseLease(context.WithoutCancel(ctx), key, s.owner)
		return
	}
	s.resetYear = local.Year()
	s.logger.Info("request counters reset for new year", zap.Int("year", local.Year()), zap.Int("agencies", len(resets)))
}
