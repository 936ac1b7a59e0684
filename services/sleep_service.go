package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/metrics"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/streak"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

const chartDays = 7

type SleepService struct {
	store          store.Store
	groups         *GroupService
	cal            *calendar.Calendar
	minStreakHours float64
}

func NewSleepService(s store.Store, groups *GroupService, cal *calendar.Calendar, minStreakHours float64) *SleepService {
	return &SleepService{store: s, groups: groups, cal: cal, minStreakHours: minStreakHours}
}

// LogSleep records hours for a wake date, overwriting any earlier log for
// that date. When the request names an active week the caller must have
// pledged for it.
func (s *SleepService) LogSleep(ctx context.Context, u *user.User, req *sleep.LogSleepRequest) (*sleep.Entry, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, apperr.Validation("date", "date is required")
	}
	if req.Date.After(s.cal.Today().AddDays(1)) {
		return nil, apperr.Validation("date", "date cannot be in the future")
	}

	if req.WeekID != nil && *req.WeekID != "" {
		if err := s.checkPledge(ctx, u, *req.WeekID); err != nil {
			return nil, err
		}
	}

	saved, err := s.store.UpsertEntry(ctx, &sleep.Entry{
		ID:       uuid.NewString(),
		UserID:   u.ID,
		WakeDate: req.Date,
		Hours:    *req.Hours,
		LoggedAt: s.cal.Timestamp(),
	})
	if err != nil {
		return nil, err
	}

	metrics.SleepEntriesLogged.Inc()
	return saved, nil
}

// checkPledge is the pledge gate. Closed weeks are not gated.
func (s *SleepService) checkPledge(ctx context.Context, u *user.User, weekID string) error {
	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("week not found")
	}
	if err != nil {
		return err
	}
	if _, err := s.groups.RequireMember(ctx, w.GroupID, u.ID); err != nil {
		return err
	}
	if !w.IsActive {
		return nil
	}

	_, err = s.store.GetPledge(ctx, w.ID, u.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		metrics.PledgeGateRejections.Inc()
		return apperr.PledgeRequired(w.ID)
	}
	return err
}

// DeleteEntry removes the caller's entry for a date. Deleting nothing is not an error.
func (s *SleepService) DeleteEntry(ctx context.Context, u *user.User, date calendar.Date) error {
	if date.IsZero() {
		return apperr.Validation("date", "date is required")
	}
	return s.store.DeleteEntry(ctx, u.ID, date)
}

// GetMyEntriesForWeek lists the caller's entries inside the week. Unknown weeks give an empty list.
func (s *SleepService) GetMyEntriesForWeek(ctx context.Context, u *user.User, weekID string) ([]*sleep.Entry, error) {
	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return []*sleep.Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.RequireMember(ctx, w.GroupID, u.ID); err != nil {
		return nil, err
	}

	from, to := s.window(w)
	entries, err := s.store.ListEntries(ctx, sleep.Filter{UserIDs: []string{u.ID}, From: &from, To: to})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*sleep.Entry{}
	}
	return entries, nil
}

// GetUserStats returns a member's entries, streak, total and daily chart for a week.
func (s *SleepService) GetUserStats(ctx context.Context, caller *user.User, weekID, userID string) (*sleep.UserStats, error) {
	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &sleep.UserStats{Entries: []*sleep.Entry{}, Days: []*sleep.ChartDay{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.RequireMember(ctx, w.GroupID, caller.ID); err != nil {
		return nil, err
	}
	if userID != caller.ID {
		isMember, err := s.store.IsMember(ctx, w.GroupID, userID)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, apperr.NotFound("user is not a member of this group")
		}
	}

	history, err := s.store.ListEntries(ctx, sleep.Filter{UserIDs: []string{userID}})
	if err != nil {
		return nil, err
	}

	from, to := s.window(w)
	today := s.cal.Today()
	stats := &sleep.UserStats{
		Entries: []*sleep.Entry{},
		Streak:  streak.Calculate(history, today, s.minStreakHours),
	}

	byDate := make(map[calendar.Date]*sleep.Entry)
	for _, e := range history {
		if e.WakeDate.Before(from) || (to != nil && e.WakeDate.After(*to)) {
			continue
		}
		stats.Entries = append(stats.Entries, e)
		stats.TotalHours += e.Hours
		byDate[e.WakeDate] = e
	}

	stats.Days = make([]*sleep.ChartDay, 0, chartDays)
	for i := range chartDays {
		d := from.AddDays(i)
		day := &sleep.ChartDay{Date: d, IsToday: d == today}
		if e, ok := byDate[d]; ok {
			day.Hours = e.Hours
			day.HasEntry = true
		}
		stats.Days = append(stats.Days, day)
	}
	return stats, nil
}

func (s *SleepService) window(w *week.Week) (calendar.Date, *calendar.Date) {
	from := s.cal.DateOf(w.StartDate)
	if w.EndDate == nil {
		return from, nil
	}
	to := s.cal.DateOf(*w.EndDate)
	return from, &to
}
