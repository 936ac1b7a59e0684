package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/leaderboard"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/week"
)

type sentPush struct {
	tokens []notification.DeviceToken
	title  string
	data   map[string]any
}

type fakePushProvider struct {
	mu   sync.Mutex
	sent []sentPush
}

func (f *fakePushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{tokens: tokens, title: title, data: data})
	return nil
}

func (f *fakePushProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDispatcherSendsAndSkips(t *testing.T) {
	provider := &fakePushProvider{}
	d := NewNotificationDispatcher(2)
	defer d.Stop()

	d.DispatchNotification(&notification.Notification{ID: "n1", UserID: "u1", Title: "no provider yet"}, []notification.DeviceToken{{Token: "t1"}})
	d.SetPushProvider(provider)
	d.DispatchNotification(&notification.Notification{ID: "n2", UserID: "u1", Title: "no tokens"}, nil)
	d.DispatchNotification(&notification.Notification{ID: "n3", UserID: "u1", Title: "hello"}, []notification.DeviceToken{{Token: "t1"}})

	assert.Eventually(t, func() bool { return provider.count() >= 1 }, time.Second, 10*time.Millisecond)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	for _, s := range provider.sent {
		assert.NotEqual(t, "no tokens", s.title)
	}
}

type stalledPushProvider struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *stalledPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	return nil
}

func TestDispatcherDoesNotBlockWhenQueueIsFull(t *testing.T) {
	provider := &stalledPushProvider{started: make(chan struct{}), release: make(chan struct{})}
	d := NewNotificationDispatcher(1)
	defer d.Stop()
	defer close(provider.release)
	d.SetPushProvider(provider)

	tokens := []notification.DeviceToken{{Token: "t1"}}
	d.DispatchNotification(&notification.Notification{ID: "first", UserID: "u1"}, tokens)
	select {
	case <-provider.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first notification")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < dispatchQueueSize+10; i++ {
			d.DispatchNotification(&notification.Notification{ID: "extra", UserID: "u1"}, tokens)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatching into a full queue blocked the caller")
	}
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewNotificationDispatcher(1)
	d.Stop()
	d.Stop()
}

func TestRegisterDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "user_ana")
	svc := NewNotificationService(env.store, NewNotificationDispatcher(1), env.cal)

	require.NoError(t, svc.RegisterDevice(ctx, u, &notification.RegisterDeviceRequest{Token: "tok-1"}))
	assert.ErrorIs(t, svc.RegisterDevice(ctx, u, &notification.RegisterDeviceRequest{}), apperr.ErrValidation)
	assert.ErrorIs(t, svc.RegisterDevice(ctx, u, &notification.RegisterDeviceRequest{Token: "tok-2", Platform: "pager"}), apperr.ErrValidation)

	tokens, err := env.store.ListDeviceTokens(ctx, []string{u.ID})
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "android", tokens[0].Platform)
}

func TestWeekClosedNotifications(t *testing.T) {
	env := newTestEnv(t)
	winner, loser := "u1", "u3"
	closed := &week.Week{ID: "w1", GroupID: "g1", WeekNumber: 4, WinnerID: &winner, LoserID: &loser}
	next := &week.Week{ID: "w2", GroupID: "g1", WeekNumber: 5}
	board := []*leaderboard.LeaderboardEntry{
		{UserID: "u1", Rank: 1, TotalHours: 52},
		{UserID: "u2", Rank: 2, TotalHours: 40},
		{UserID: "u3", Rank: 3, TotalHours: 20, TaxPledged: 12.5},
	}

	out := weekClosedNotifications(closed, next, board, env.cal)
	require.Len(t, out, 3)
	assert.Equal(t, notification.TypeWeekWon, out[0].Type)
	assert.Equal(t, notification.TypeWeekStarted, out[1].Type)
	assert.Equal(t, notification.TypeWeekLost, out[2].Type)
	assert.Contains(t, out[2].Body, "$12.50")
	assert.Equal(t, "w2", out[0].Data["nextWeekId"])
}

func TestNotifyWeekClosedOnlyReachesRegisteredDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "user_owner")
	friend := env.user(t, "user_friend")

	provider := &fakePushProvider{}
	d := NewNotificationDispatcher(1)
	d.SetPushProvider(provider)
	defer d.Stop()
	svc := NewNotificationService(env.store, d, env.cal)
	require.NoError(t, svc.RegisterDevice(ctx, owner, &notification.RegisterDeviceRequest{Token: "tok-owner", Platform: "ios"}))

	winner := friend.ID
	closed := &week.Week{ID: "w1", GroupID: "g1", WeekNumber: 1, WinnerID: &winner}
	next := &week.Week{ID: "w2", GroupID: "g1", WeekNumber: 2}
	svc.NotifyWeekClosed(ctx, closed, next, []*leaderboard.LeaderboardEntry{
		{UserID: friend.ID, Rank: 1},
		{UserID: owner.ID, Rank: 2},
	})

	assert.Eventually(t, func() bool { return provider.count() == 1 }, time.Second, 10*time.Millisecond)
	provider.mu.Lock()
	defer provider.mu.Unlock()
	require.Len(t, provider.sent[0].tokens, 1)
	assert.Equal(t, "tok-owner", provider.sent[0].tokens[0].Token)
	assert.Equal(t, "Week 2 has started", provider.sent[0].title)
}
