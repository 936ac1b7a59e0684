package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/leaderboard"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

// clock is a settable time source for calendar.Calendar.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedClose struct {
	closed, next *week.Week
	board        []*leaderboard.LeaderboardEntry
}

type recordingNotifier struct {
	mu     sync.Mutex
	closes []recordedClose
}

func (r *recordingNotifier) NotifyWeekClosed(ctx context.Context, closed, next *week.Week, board []*leaderboard.LeaderboardEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, recordedClose{closed: closed, next: next, board: board})
}

type testEnv struct {
	store    *store.MemoryStore
	clock    *clock
	cal      *calendar.Calendar
	users    *UserService
	groups   *GroupService
	boards   *LeaderboardService
	weeks    *WeekService
	sleep    *SleepService
	pledges  *PledgeService
	notifier *recordingNotifier
}

// newTestEnv wires every service over a memory store with the clock at Monday 2025-03-03 09:00 UTC.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	clk := &clock{now: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)}
	cal := &calendar.Calendar{Location: time.UTC, Now: clk.Now}
	notifier := &recordingNotifier{}

	groups := NewGroupService(s, cal, "https://sleeptax.app/join")
	boards := NewLeaderboardService(s, groups, cal, 6)
	return &testEnv{
		store:    s,
		clock:    clk,
		cal:      cal,
		users:    NewUserService(s, cal, nil),
		groups:   groups,
		boards:   boards,
		weeks:    NewWeekService(s, groups, boards, cal, notifier),
		sleep:    NewSleepService(s, groups, cal, 6),
		pledges:  NewPledgeService(s, groups, cal),
		notifier: notifier,
	}
}

func (e *testEnv) user(t *testing.T, clerkID string) *user.User {
	t.Helper()
	u, err := e.users.EnsureUser(context.Background(), clerkID)
	require.NoError(t, err)
	return u
}

// groupWithMembers creates a group owned by owner and joins the others. It returns the active week.
func (e *testEnv) groupWithMembers(t *testing.T, owner *user.User, others ...*user.User) (*group.Group, *week.Week) {
	t.Helper()
	ctx := context.Background()
	g, err := e.groups.CreateGroup(ctx, owner, "Night Owls")
	require.NoError(t, err)
	for _, u := range others {
		_, err := e.groups.JoinGroup(ctx, u, g.Code)
		require.NoError(t, err)
	}
	w, err := e.weeks.GetCurrentWeek(ctx, owner, g.ID)
	require.NoError(t, err)
	return g, w
}

func ptr[T any](v T) *T { return &v }
