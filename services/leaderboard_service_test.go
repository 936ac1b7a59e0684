package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
)

func TestGetLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "user_owner")
	friend := env.user(t, "user_friend")
	g, w := env.groupWithMembers(t, owner, friend)

	_, err := env.pledges.Pledge(ctx, owner, w.ID, &pledge.PledgeRequest{Amount: ptr(15.0)})
	require.NoError(t, err)
	_, err = env.sleep.LogSleep(ctx, owner, &sleep.LogSleepRequest{Date: env.cal.Today(), Hours: ptr(7.5), WeekID: &w.ID})
	require.NoError(t, err)

	board, err := env.boards.GetLeaderboard(ctx, friend, g.ID, w.ID)
	require.NoError(t, err)
	require.Len(t, board, 2)

	first := board[0]
	assert.Equal(t, owner.ID, first.UserID)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, 7.5, first.TotalHours)
	assert.Equal(t, 15.0, first.TaxPledged)
	assert.Equal(t, 1, first.EntriesCount)
	assert.Equal(t, 1, first.Streak)
	assert.False(t, first.TaxRisk)

	last := board[1]
	assert.Equal(t, friend.ID, last.UserID)
	assert.Equal(t, 2, last.Rank)
	assert.Zero(t, last.TotalHours)
	assert.Zero(t, last.TaxPledged)
	assert.True(t, last.TaxRisk)
}

func TestGetLeaderboardUnknownWeek(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "user_owner")
	other := env.user(t, "user_other")
	g, _ := env.groupWithMembers(t, owner)
	_, otherWeek := env.groupWithMembers(t, other)

	board, err := env.boards.GetLeaderboard(ctx, owner, g.ID, "missing")
	require.NoError(t, err)
	assert.Empty(t, board)

	board, err = env.boards.GetLeaderboard(ctx, owner, g.ID, otherWeek.ID)
	require.NoError(t, err)
	assert.Empty(t, board, "a week from another group is not shown")
}

func TestGetLeaderboardRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "user_owner")
	stranger := env.user(t, "user_stranger")
	g, w := env.groupWithMembers(t, owner)

	_, err := env.boards.GetLeaderboard(context.Background(), stranger, g.ID, w.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
