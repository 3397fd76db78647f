package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/streak"
)

type countingSweeper struct {
	mu   sync.Mutex
	runs []civil.Date
	err  error
}

func (s *countingSweeper) CloseStaleStreaks(ctx context.Context, asOf civil.Date) (*streak.SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, asOf)
	if s.err != nil {
		return nil, s.err
	}
	return &streak.SweepReport{AsOf: asOf}, nil
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func TestRunStaleSweep(t *testing.T) {
	sweeper := &countingSweeper{}
	today := func() civil.Date { return calendar.MustParse("2025-01-10") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunStaleSweep(ctx, sweeper, today, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, calendar.MustParse("2025-01-10"), sweeper.runs[0])
}

func TestRunStaleSweep_KeepsGoingAfterFailure(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go RunStaleSweep(ctx, sweeper, func() civil.Date { return calendar.MustParse("2025-01-10") }, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRunStaleSweep_DisabledReturnsImmediately(t *testing.T) {
	sweeper := &countingSweeper{}
	RunStaleSweep(context.Background(), sweeper, func() civil.Date { return civil.Date{} }, 0)
	assert.Equal(t, 0, sweeper.count())
}
