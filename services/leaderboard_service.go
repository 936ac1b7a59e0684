package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/leaderboard"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

type LeaderboardService struct {
	store          store.Store
	groups         *GroupService
	cal            *calendar.Calendar
	minStreakHours float64
}

func NewLeaderboardService(s store.Store, groups *GroupService, cal *calendar.Calendar, minStreakHours float64) *LeaderboardService {
	return &LeaderboardService{store: s, groups: groups, cal: cal, minStreakHours: minStreakHours}
}

// GetLeaderboard ranks the group for a week. An unknown week, or one from
// another group, yields an empty board.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, u *user.User, groupID, weekID string) ([]*leaderboard.LeaderboardEntry, error) {
	if _, err := s.groups.RequireMember(ctx, groupID, u.ID); err != nil {
		return nil, err
	}

	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return []*leaderboard.LeaderboardEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if w.GroupID != groupID {
		return []*leaderboard.LeaderboardEntry{}, nil
	}

	return s.Build(ctx, w)
}

// Build fetches members, their full entry history and the week's pledges in
// one round each, then ranks them in memory.
func (s *LeaderboardService) Build(ctx context.Context, w *week.Week) ([]*leaderboard.LeaderboardEntry, error) {
	members, err := s.store.ListMembers(ctx, w.GroupID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	var (
		history []*sleep.Entry
		pledges []*pledge.Pledge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.store.ListEntries(gctx, sleep.Filter{UserIDs: ids})
		return err
	})
	g.Go(func() error {
		var err error
		pledges, err = s.store.ListPledges(gctx, w.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return leaderboard.Build(leaderboard.Input{
		Members:        members,
		Window:         s.window(w),
		History:        history,
		Pledges:        pledges,
		Today:          s.cal.Today(),
		MinStreakHours: s.minStreakHours,
	}), nil
}

// window converts the week's instants to calendar days.
func (s *LeaderboardService) window(w *week.Week) leaderboard.Window {
	win := leaderboard.Window{From: s.cal.DateOf(w.StartDate)}
	if w.EndDate != nil {
		end := s.cal.DateOf(*w.EndDate)
		win.To = &end
	}
	return win
}
