package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/leaderboard"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

type NotificationService struct {
	store      store.DeviceStore
	dispatcher *NotificationDispatcher
	cal        *calendar.Calendar
}

func NewNotificationService(s store.DeviceStore, dispatcher *NotificationDispatcher, cal *calendar.Calendar) *NotificationService {
	return &NotificationService{store: s, dispatcher: dispatcher, cal: cal}
}

func (s *NotificationService) RegisterDevice(ctx context.Context, u *user.User, req *notification.RegisterDeviceRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	platform := req.Platform
	if platform == "" {
		platform = "android"
	}
	return s.store.RegisterDevice(ctx, &notification.DeviceToken{UserID: u.ID, Token: req.Token, Platform: platform})
}

// NotifyWeekClosed tells every ranked member how the closed week ended.
// Sending happens on the dispatcher's workers.
func (s *NotificationService) NotifyWeekClosed(ctx context.Context, closed, next *week.Week, board []*leaderboard.LeaderboardEntry) {
	if len(board) == 0 {
		return
	}

	ids := make([]string, len(board))
	for i, e := range board {
		ids[i] = e.UserID
	}
	tokens, err := s.store.ListDeviceTokens(ctx, ids)
	if err != nil {
		zap.S().Errorf("NotifyWeekClosed: failed to load device tokens for week %s: %v", closed.ID, err)
		return
	}

	byUser := make(map[string][]notification.DeviceToken)
	for _, t := range tokens {
		byUser[t.UserID] = append(byUser[t.UserID], t)
	}

	for _, n := range weekClosedNotifications(closed, next, board, s.cal) {
		s.dispatcher.DispatchNotification(n, byUser[n.UserID])
	}
}

func weekClosedNotifications(closed, next *week.Week, board []*leaderboard.LeaderboardEntry, cal *calendar.Calendar) []*notification.Notification {
	data := map[string]any{
		"groupId":    closed.GroupID,
		"weekId":     closed.ID,
		"weekNumber": closed.WeekNumber,
		"nextWeekId": next.ID,
	}

	now := cal.Timestamp()
	out := make([]*notification.Notification, 0, len(board))
	for _, e := range board {
		n := &notification.Notification{
			ID:        uuid.NewString(),
			UserID:    e.UserID,
			Data:      data,
			CreatedAt: now,
		}

		switch {
		case closed.WinnerID != nil && e.UserID == *closed.WinnerID:
			n.Type = notification.TypeWeekWon
			n.Title = fmt.Sprintf("You won week %d!", closed.WeekNumber)
			n.Body = fmt.Sprintf("%.1f hours of sleep put you on top. Week %d has started.", e.TotalHours, next.WeekNumber)
		case closed.LoserID != nil && e.UserID == *closed.LoserID:
			n.Type = notification.TypeWeekLost
			n.Title = fmt.Sprintf("Week %d is over", closed.WeekNumber)
			n.Body = fmt.Sprintf("You finished last and owe your $%.2f sleep tax.", e.TaxPledged)
		default:
			n.Type = notification.TypeWeekStarted
			n.Title = fmt.Sprintf("Week %d has started", next.WeekNumber)
			n.Body = fmt.Sprintf("You finished week %d in place %d. Pledge again to keep logging.", closed.WeekNumber, e.Rank)
		}
		out = append(out, n)
	}
	return out
}
