package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/leaderboard"
	"sleepTaxAPI/internal/metrics"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

// WeekClosedNotifier is told about every completed rollover.
type WeekClosedNotifier interface {
	NotifyWeekClosed(ctx context.Context, closed, next *week.Week, board []*leaderboard.LeaderboardEntry)
}

type WeekService struct {
	store    store.Store
	groups   *GroupService
	boards   *LeaderboardService
	cal      *calendar.Calendar
	notifier WeekClosedNotifier
}

func NewWeekService(s store.Store, groups *GroupService, boards *LeaderboardService, cal *calendar.Calendar, notifier WeekClosedNotifier) *WeekService {
	return &WeekService{store: s, groups: groups, boards: boards, cal: cal, notifier: notifier}
}

// GetCurrentWeek returns the group's active week, repairing a missing one first.
func (s *WeekService) GetCurrentWeek(ctx context.Context, u *user.User, groupID string) (*week.Week, error) {
	if _, err := s.groups.RequireMember(ctx, groupID, u.ID); err != nil {
		return nil, err
	}
	return s.EnsureActiveWeek(ctx, groupID)
}

// EnsureActiveWeek opens week max+1 (or 1) when the group has no active week.
// Losing the race to a concurrent repair is fine; the winner's week is returned.
func (s *WeekService) EnsureActiveWeek(ctx context.Context, groupID string) (*week.Week, error) {
	w, err := s.store.GetActiveWeek(ctx, groupID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	number := 1
	latest, err := s.store.LatestWeek(ctx, groupID)
	switch {
	case err == nil:
		number = latest.WeekNumber + 1
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	repaired := &week.Week{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		WeekNumber: number,
		IsActive:   true,
		StartDate:  s.cal.Timestamp(),
	}
	if err := s.store.CreateWeek(ctx, repaired); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return s.store.GetActiveWeek(ctx, groupID)
		}
		return nil, fmt.Errorf("failed to repair active week for group %s: %w", groupID, err)
	}

	metrics.Rollovers.WithLabelValues(metrics.RolloverRepaired).Inc()
	zap.S().Warnf("Group %s had no active week, opened week %d", groupID, number)
	return repaired, nil
}

// EndWeek closes the active week, records winner and loser, and opens the next one.
// Only the group owner may do this.
func (s *WeekService) EndWeek(ctx context.Context, u *user.User, groupID, weekID string) (*week.Week, error) {
	g, err := s.store.GetGroupByID(ctx, groupID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("group not found")
	}
	if err != nil {
		return nil, err
	}
	if g.OwnerID != u.ID {
		return nil, apperr.Unauthorized("only the group owner can end the week")
	}

	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("week not found")
	}
	if err != nil {
		return nil, err
	}
	if w.GroupID != groupID {
		return nil, apperr.NotFound("week not found")
	}
	if !w.IsActive {
		return nil, apperr.Conflict("this week has already ended")
	}

	board, err := s.boards.Build(ctx, w)
	if err != nil {
		return nil, err
	}

	now := s.cal.Timestamp()
	closing := *w
	closing.IsActive = false
	closing.EndDate = &now
	if winner := leaderboard.Winner(board); winner != nil {
		closing.WinnerID = &winner.UserID
	}
	if loser := leaderboard.Loser(board); loser != nil {
		closing.LoserID = &loser.UserID
	}

	next := &week.Week{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		WeekNumber: w.WeekNumber + 1,
		IsActive:   true,
		StartDate:  now,
	}

	if err := s.store.RolloverWeek(ctx, &closing, next); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			metrics.Rollovers.WithLabelValues(metrics.RolloverLostRace).Inc()
			return nil, apperr.Conflict("this week has already ended")
		}
		zap.S().Errorf("Rollover of week %s failed: %v", w.ID, err)
		return nil, err
	}

	metrics.Rollovers.WithLabelValues(metrics.RolloverClosed).Inc()
	zap.S().Infof("Group %s closed week %d, opened week %d", groupID, w.WeekNumber, next.WeekNumber)

	if s.notifier != nil {
		s.notifier.NotifyWeekClosed(context.WithoutCancel(ctx), &closing, next, board)
	}
	return next, nil
}

// RepairAll runs EnsureActiveWeek for every group and reports how many it touched.
func (s *WeekService) RepairAll(ctx context.Context) (int, error) {
	ids, err := s.store.ListGroupIDs(ctx)
	if err != nil {
		return 0, err
	}

	checked := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return checked, err
		}
		if _, err := s.EnsureActiveWeek(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", id, err))
			continue
		}
		checked++
	}
	return checked, errors.Join(errs...)
}
