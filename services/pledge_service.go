package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/user"
)

type PledgeService struct {
	store  store.Store
	groups *GroupService
	cal    *calendar.Calendar
}

func NewPledgeService(s store.Store, groups *GroupService, cal *calendar.Calendar) *PledgeService {
	return &PledgeService{store: s, groups: groups, cal: cal}
}

// GetMyPledge returns the caller's pledge for the week, or nil when there is none.
func (s *PledgeService) GetMyPledge(ctx context.Context, u *user.User, weekID string) (*pledge.Pledge, error) {
	p, err := s.store.GetPledge(ctx, weekID, u.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// Pledge commits amount for the week. The amount is checked before anything is read or written.
func (s *PledgeService) Pledge(ctx context.Context, u *user.User, weekID string, req *pledge.PledgeRequest) (*pledge.Pledge, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	amount := *req.Amount
	if amount < pledge.MinAmount || amount > pledge.MaxAmount {
		return nil, apperr.Validation("amount", fmt.Sprintf("pledge must be between $%d and $%d", pledge.MinAmount, pledge.MaxAmount))
	}

	w, err := s.store.GetWeek(ctx, weekID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("week not found")
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.groups.RequireMember(ctx, w.GroupID, u.ID); err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, apperr.Conflict("this week has already ended")
	}

	p := &pledge.Pledge{
		ID:        uuid.NewString(),
		WeekID:    w.ID,
		UserID:    u.ID,
		Amount:    amount,
		CreatedAt: s.cal.Timestamp(),
	}
	if err := s.store.CreatePledge(ctx, p); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("you have already pledged for this week")
		}
		return nil, err
	}

	zap.S().Infof("User %s pledged $%.2f for week %s", u.ID, amount, w.ID)
	return p, nil
}
