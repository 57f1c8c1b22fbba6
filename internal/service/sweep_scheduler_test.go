package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/openrecords-api/internal/repository"
)

type sweeperStub struct {
	mu   sync.Mutex
	runs []time.Time
	err  error
}

func (s *sweeperStub) RunStatusSweep(_ context.Context, now time.Time) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, now)
	return &SweepReport{RanAt: now}, s.err
}

func (s *sweeperStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

type resetterStub struct {
	calls int
	err   error
}

func (r *resetterStub) ResetRequestCounters(context.Context, string) ([]CounterReset, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []CounterReset{{AgencyEIN: testAgency, Previous: 42}}, nil
}

func newLeaser(t *testing.T) (*repository.CacheRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repository.NewCacheRepository(client, nil), mr
}

func TestSchedulerLeaseIsExclusive(t *testing.T) {
	leaser, mr := newLeaser(t)
	ctx := context.Background()
	sweeper := &sweeperStub{}
	a := NewSweepScheduler(sweeper, nil, leaser, SchedulerConfig{Interval: time.Minute}, nil)
	b := NewSweepScheduler(sweeper, nil, leaser, SchedulerConfig{Interval: time.Minute}, nil)

	held, err := leaser.AcquireLease(ctx, "foil:sweeper:lease", "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, held)
	assert.False(t, a.Tick(ctx))
	assert.False(t, b.Tick(ctx))
	assert.Equal(t, 0, sweeper.count())

	mr.Del("foil:sweeper:lease")
	assert.True(t, a.Tick(ctx))
	assert.False(t, mr.Exists("foil:sweeper:lease"), "lease released after the sweep")
	assert.True(t, b.Tick(ctx))
	assert.Equal(t, 2, sweeper.count())
}

func TestSchedulerReleasesLeaseWhenSweepFails(t *testing.T) {
	leaser, mr := newLeaser(t)
	sweeper := &sweeperStub{err: errors.New("db down")}
	s := NewSweepScheduler(sweeper, nil, leaser, SchedulerConfig{}, nil)

	assert.True(t, s.Tick(context.Background()))
	assert.False(t, mr.Exists("foil:sweeper:lease"))
}

func TestSchedulerResetsCountersOncePerYear(t *testing.T) {
	leaser, mr := newLeaser(t)
	ctx := context.Background()
	resetter := &resetterStub{}
	cfg := SchedulerConfig{ResetCounters: true, Location: ny}
	a := NewSweepScheduler(&sweeperStub{}, resetter, leaser, cfg, nil)
	b := NewSweepScheduler(&sweeperStub{}, resetter, leaser, cfg, nil)

	a.now = func() time.Time { return time.Date(2024, 12, 31, 23, 30, 0, 0, ny) }
	a.Tick(ctx)
	assert.Equal(t, 0, resetter.calls)

	newYear := func() time.Time { return time.Date(2025, 1, 1, 0, 15, 0, 0, ny) }
	a.now, b.now = newYear, newYear
	a.Tick(ctx)
	a.Tick(ctx)
	b.Tick(ctx)
	assert.Equal(t, 1, resetter.calls)
	assert.True(t, mr.Exists("foil:counter-reset:2025"))
}

func TestSchedulerRetriesFailedReset(t *testing.T) {
	leaser, mr := newLeaser(t)
	ctx := context.Background()
	resetter := &resetterStub{err: errors.New("tx aborted")}
	s := NewSweepScheduler(&sweeperStub{}, resetter, leaser, SchedulerConfig{ResetCounters: true, Location: ny}, nil)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 8, 0, 0, 0, ny) }

	s.Tick(ctx)
	assert.False(t, mr.Exists("foil:counter-reset:2025"))
	resetter.err = nil
	s.Tick(ctx)
	assert.Equal(t, 2, resetter.calls)
}

func TestSchedulerStartStop(t *testing.T) {
	leaser, _ := newLeaser(t)
	sweeper := &sweeperStub{}
	s := NewSweepScheduler(sweeper, nil, leaser, SchedulerConfig{Interval: 10 * time.Millisecond}, nil)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	runs := sweeper.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, sweeper.count())
	s.Stop()
}
