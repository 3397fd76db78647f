package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"habitStreakAPI/internal/logger"
	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/store"
	"habitStreakAPI/internal/streak"
)

// Milestones are the streak day counts that trigger a push.
var Milestones = []int{7, 30, 100, 365}

func IsMilestone(days int) bool {
	for _, m := range Milestones {
		if days == m {
			return true
		}
	}
	return false
}

type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, push notification.Push) error
}

type pushJob struct {
	key  streak.HabitKey
	push notification.Push
}

// MilestoneNotifier delivers streak pushes from a small worker pool so the
// request path never waits on FCM.
type MilestoneNotifier struct {
	store    store.Store
	provider PushProvider
	workers  int
	jobQueue chan pushJob
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewMilestoneNotifier(st store.Store, provider PushProvider, workers int) *MilestoneNotifier {
	if workers < 1 {
		workers = 1
	}
	n := &MilestoneNotifier{
		store:    st,
		provider: provider,
		workers:  workers,
		jobQueue: make(chan pushJob, 100),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

func (n *MilestoneNotifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case job := <-n.jobQueue:
			n.deliver(job)
		case <-n.stopChan:
			return
		}
	}
}

func (n *MilestoneNotifier) deliver(job pushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if n.provider == nil {
		logger.Info("push provider not configured, skipping", "owner", job.key.OwnerID, "type", job.push.Type)
		return
	}

	tokens, err := n.store.DeviceTokens(ctx, job.key.OwnerID)
	if err != nil {
		logger.Error("failed to load device tokens", "owner", job.key.OwnerID, "error", err)
		return
	}
	if len(tokens) == 0 {
		logger.Debug("no device tokens", "owner", job.key.OwnerID)
		return
	}

	if err := n.provider.SendPush(ctx, tokens, job.push); err != nil {
		logger.Error("push failed", "owner", job.key.OwnerID, "type", job.push.Type, "error", err)
	}
}

func (n *MilestoneNotifier) enqueue(job pushJob) {
	select {
	case n.jobQueue <- job:
	case <-n.stopChan:
	default:
		logger.Warn("push queue full, dropping", "owner", job.key.OwnerID, "type", job.push.Type)
	}
}

// NotifyStreak queues a milestone push if days is a milestone and reports
// whether it was one.
func (n *MilestoneNotifier) NotifyStreak(key streak.HabitKey, days int) bool {
	if !IsMilestone(days) {
		return false
	}
	n.enqueue(pushJob{key: key, push: notification.Push{
		Type:  notification.TypeStreakMilestone,
		Title: fmt.Sprintf("%d day streak!", days),
		Body:  fmt.Sprintf("You have kept this habit going for %d days in a row.", days),
		Data: map[string]any{
			"habitId": key.HabitID,
			"days":    days,
		},
	}})
	return true
}

func (n *MilestoneNotifier) NotifyRestored(key streak.HabitKey, days int) {
	n.enqueue(pushJob{key: key, push: notification.Push{
		Type:  notification.TypeStreakRestored,
		Title: "Streak restored",
		Body:  fmt.Sprintf("Your %d day streak is back on.", days),
		Data: map[string]any{
			"habitId": key.HabitID,
			"days":    days,
		},
	}})
}

// Stop waits for the workers to exit. Queued jobs that were not picked up
// are dropped.
func (n *MilestoneNotifier) Stop() {
	n.once.Do(func() {
		close(n.stopChan)
		n.wg.Wait()
	})
}
