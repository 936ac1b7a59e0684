package store

import (
	"context"

	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

// Store is the persistence boundary. Lookups of missing rows return an error
// wrapping apperr.ErrNotFound; unique violations wrap apperr.ErrConflict.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	UserStore
	GroupStore
	WeekStore
	EntryStore
	PledgeStore
	DeviceStore
}

type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	UpdateUser(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error)
	// DeleteUser removes the user and their rows. Groups they own pass to the
	// longest-standing other member; groups left empty are removed.
	DeleteUser(ctx context.Context, clerkID string) error
	GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error)
	GetUserByID(ctx context.Context, id string) (*user.User, error)
}

type GroupStore interface {
	// CreateGroup inserts the group, the owner's membership and the first week together.
	CreateGroup(ctx context.Context, g *group.Group, first *week.Week) error
	GetGroupByID(ctx context.Context, id string) (*group.Group, error)
	// GetGroupByCode matches codes case-insensitively.
	GetGroupByCode(ctx context.Context, code string) (*group.Group, error)
	// GetGroupForUser returns the group the user joined first.
	GetGroupForUser(ctx context.Context, userID string) (*group.Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	// ListMembers returns members in join order.
	ListMembers(ctx context.Context, groupID string) ([]*user.User, error)
	ListGroupIDs(ctx context.Context) ([]string, error)
}

type WeekStore interface {
	GetWeek(ctx context.Context, id string) (*week.Week, error)
	GetActiveWeek(ctx context.Context, groupID string) (*week.Week, error)
	// LatestWeek returns the highest numbered week of the group, active or not.
	LatestWeek(ctx context.Context, groupID string) (*week.Week, error)
	// CreateWeek fails with a conflict when the group already has an active week.
	CreateWeek(ctx context.Context, w *week.Week) error
	// RolloverWeek closes closing and opens next as one unit. The close only
	// applies while the stored week is still active; otherwise it is a conflict
	// and nothing changes.
	RolloverWeek(ctx context.Context, closing, next *week.Week) error
}

type EntryStore interface {
	// UpsertEntry keeps one entry per (user, wake date); a repeat overwrites hours and loggedAt.
	UpsertEntry(ctx context.Context, e *sleep.Entry) (*sleep.Entry, error)
	DeleteEntry(ctx context.Context, userID string, wakeDate calendar.Date) error
	ListEntries(ctx context.Context, f sleep.Filter) ([]*sleep.Entry, error)
}

type PledgeStore interface {
	CreatePledge(ctx context.Context, p *pledge.Pledge) error
	GetPledge(ctx context.Context, weekID, userID string) (*pledge.Pledge, error)
	ListPledges(ctx context.Context, weekID string) ([]*pledge.Pledge, error)
}

type DeviceStore interface {
	RegisterDevice(ctx context.Context, d *notification.DeviceToken) error
	ListDeviceTokens(ctx context.Context, userIDs []string) ([]notification.DeviceToken, error)
}
