package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/store"
)

type recordingProvider struct {
	pushes chan notification.Push
	tokens chan []notification.DeviceToken
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{
		pushes: make(chan notification.Push, 10),
		tokens: make(chan []notification.DeviceToken, 10),
	}
}

func (p *recordingProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, push notification.Push) error {
	p.tokens <- tokens
	p.pushes <- push
	return nil
}

func TestIsMilestone(t *testing.T) {
	for _, days := range []int{7, 30, 100, 365} {
		assert.True(t, IsMilestone(days), "%d", days)
	}
	for _, days := range []int{0, 1, 6, 8, 31, 364} {
		assert.False(t, IsMilestone(days), "%d", days)
	}
}

func TestMilestoneNotifier_SendsOnMilestone(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.SaveDeviceToken(context.Background(), testKey.OwnerID, notification.DeviceToken{Token: "tok_1", Platform: "ios"}))
	provider := newRecordingProvider()
	n := NewMilestoneNotifier(mem, provider, 2)
	defer n.Stop()

	assert.False(t, n.NotifyStreak(testKey, 6))
	assert.True(t, n.NotifyStreak(testKey, 7))

	select {
	case push := <-provider.pushes:
		assert.Equal(t, notification.TypeStreakMilestone, push.Type)
		assert.Equal(t, "7 day streak!", push.Title)
		assert.Equal(t, testKey.HabitID, push.Data["habitId"])
		assert.Equal(t, []notification.DeviceToken{{Token: "tok_1", Platform: "ios"}}, <-provider.tokens)
	case <-time.After(2 * time.Second):
		t.Fatal("push was not delivered")
	}

	select {
	case push := <-provider.pushes:
		t.Fatalf("unexpected push %+v", push)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMilestoneNotifier_SkipsWithoutTokensOrProvider(t *testing.T) {
	mem := store.NewMemoryStore()
	provider := newRecordingProvider()
	n := NewMilestoneNotifier(mem, provider, 1)
	n.NotifyRestored(testKey, 12)

	select {
	case push := <-provider.pushes:
		t.Fatalf("unexpected push %+v", push)
	case <-time.After(50 * time.Millisecond):
	}
	n.Stop()
	n.Stop()

	quiet := NewMilestoneNotifier(mem, nil, 1)
	assert.True(t, quiet.NotifyStreak(testKey, 30))
	quiet.Stop()
}
