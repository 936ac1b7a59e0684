package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

type entryKey struct {
	userID string
	date   calendar.Date
}

type pledgeKey struct {
	weekID string
	userID string
}

// MemoryStore keeps everything in process. One mutex guards all tables, so
// every method is atomic with respect to the others.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*user.User
	groups      map[string]*group.Group
	memberships []group.Membership
	weeks       map[string]*week.Week
	entries     map[entryKey]*sleep.Entry
	pledges     map[pledgeKey]*pledge.Pledge
	devices     map[string]notification.DeviceToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*user.User),
		groups:  make(map[string]*group.Group),
		weeks:   make(map[string]*week.Week),
		entries: make(map[entryKey]*sleep.Entry),
		pledges: make(map[pledgeKey]*pledge.Pledge),
		devices: make(map[string]notification.DeviceToken),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() {}

// ============ USERS ============

func (s *MemoryStore) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ClerkID == u.ClerkID {
			return fmt.Errorf("user %s: %w", u.ClerkID, apperr.ErrConflict)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByClerkID(clerkID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	if req.Email != "" {
		u.Email = req.Email
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.AvatarURL != "" {
		u.AvatarURL = req.AvatarURL
	}
	u.UpdatedAt = time.Now().UTC()

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, clerkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByClerkID(clerkID)
	if u == nil {
		return fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	delete(s.users, u.ID)

	for _, g := range s.groups {
		if g.OwnerID != u.ID {
			continue
		}
		if heir := s.earliestMemberExcept(g.ID, u.ID); heir != "" {
			g.OwnerID = heir
			continue
		}
		s.deleteGroup(g.ID)
	}

	s.memberships = slices.DeleteFunc(s.memberships, func(m group.Membership) bool { return m.UserID == u.ID })
	for _, w := range s.weeks {
		if w.WinnerID != nil && *w.WinnerID == u.ID {
			w.WinnerID = nil
		}
		if w.LoserID != nil && *w.LoserID == u.ID {
			w.LoserID = nil
		}
	}
	for k := range s.entries {
		if k.userID == u.ID {
			delete(s.entries, k)
		}
	}
	for k := range s.pledges {
		if k.userID == u.ID {
			delete(s.pledges, k)
		}
	}
	for token, d := range s.devices {
		if d.UserID == u.ID {
			delete(s.devices, token)
		}
	}
	return nil
}

// earliestMemberExcept returns the longest-standing member of the group other
// than userID. Memberships are kept in join order.
func (s *MemoryStore) earliestMemberExcept(groupID, userID string) string {
	for _, m := range s.memberships {
		if m.GroupID == groupID && m.UserID != userID {
			return m.UserID
		}
	}
	return ""
}

func (s *MemoryStore) deleteGroup(groupID string) {
	delete(s.groups, groupID)
	s.memberships = slices.DeleteFunc(s.memberships, func(m group.Membership) bool { return m.GroupID == groupID })
	for id, w := range s.weeks {
		if w.GroupID != groupID {
			continue
		}
		delete(s.weeks, id)
		for k := range s.pledges {
			if k.weekID == id {
				delete(s.pledges, k)
			}
		}
	}
}

func (s *MemoryStore) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.userByClerkID(clerkID)
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) userByClerkID(clerkID string) *user.User {
	for _, u := range s.users {
		if u.ClerkID == clerkID {
			return u
		}
	}
	return nil
}

// ============ GROUPS ============

func (s *MemoryStore) CreateGroup(ctx context.Context, g *group.Group, first *week.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(g.Code)
	for _, existing := range s.groups {
		if existing.Code == code {
			return fmt.Errorf("group code %s: %w", code, apperr.ErrConflict)
		}
	}
	if _, ok := s.users[g.OwnerID]; !ok {
		return fmt.Errorf("owner %s: %w", g.OwnerID, apperr.ErrNotFound)
	}

	cp := *g
	cp.Code = code
	s.groups[g.ID] = &cp
	s.memberships = append(s.memberships, group.Membership{GroupID: g.ID, UserID: g.OwnerID, JoinedAt: g.CreatedAt})
	w := *first
	s.weeks[w.ID] = &w
	return nil
}

func (s *MemoryStore) GetGroupByID(ctx context.Context, id string) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, apperr.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) GetGroupByCode(ctx context.Context, code string) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if strings.EqualFold(g.Code, code) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("group code %s: %w", code, apperr.ErrNotFound)
}

func (s *MemoryStore) GetGroupForUser(ctx context.Context, userID string) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.UserID == userID {
			cp := *s.groups[m.GroupID]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("group for user %s: %w", userID, apperr.ErrNotFound)
}

func (s *MemoryStore) AddMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return fmt.Errorf("group %s: %w", groupID, apperr.ErrNotFound)
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	if s.isMember(groupID, userID) {
		return fmt.Errorf("membership %s/%s: %w", groupID, userID, apperr.ErrConflict)
	}
	s.memberships = append(s.memberships, group.Membership{GroupID: groupID, UserID: userID, JoinedAt: time.Now().UTC()})
	return nil
}

func (s *MemoryStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isMember(groupID, userID), nil
}

func (s *MemoryStore) isMember(groupID, userID string) bool {
	return slices.ContainsFunc(s.memberships, func(m group.Membership) bool {
		return m.GroupID == groupID && m.UserID == userID
	})
}

func (s *MemoryStore) ListMembers(ctx context.Context, groupID string) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*user.User
	for _, m := range s.memberships {
		if m.GroupID != groupID {
			continue
		}
		if u, ok := s.users[m.UserID]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// ============ WEEKS ============

func (s *MemoryStore) GetWeek(ctx context.Context, id string) (*week.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.weeks[id]
	if !ok {
		return nil, fmt.Errorf("week %s: %w", id, apperr.ErrNotFound)
	}
	return copyWeek(w), nil
}

func (s *MemoryStore) GetActiveWeek(ctx context.Context, groupID string) (*week.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w := s.activeWeek(groupID); w != nil {
		return copyWeek(w), nil
	}
	return nil, fmt.Errorf("active week for group %s: %w", groupID, apperr.ErrNotFound)
}

func (s *MemoryStore) LatestWeek(ctx context.Context, groupID string) (*week.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *week.Week
	for _, w := range s.weeks {
		if w.GroupID == groupID && (latest == nil || w.WeekNumber > latest.WeekNumber) {
			latest = w
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("weeks for group %s: %w", groupID, apperr.ErrNotFound)
	}
	return copyWeek(latest), nil
}

func (s *MemoryStore) CreateWeek(ctx context.Context, w *week.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[w.GroupID]; !ok {
		return fmt.Errorf("group %s: %w", w.GroupID, apperr.ErrNotFound)
	}
	if w.IsActive && s.activeWeek(w.GroupID) != nil {
		return fmt.Errorf("active week for group %s: %w", w.GroupID, apperr.ErrConflict)
	}
	s.weeks[w.ID] = copyWeek(w)
	return nil
}

func (s *MemoryStore) RolloverWeek(ctx context.Context, closing, next *week.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.weeks[closing.ID]
	if !ok {
		return fmt.Errorf("week %s: %w", closing.ID, apperr.ErrNotFound)
	}
	if !current.IsActive {
		return fmt.Errorf("week %s already closed: %w", closing.ID, apperr.ErrConflict)
	}

	current.IsActive = false
	current.EndDate = closing.EndDate
	current.WinnerID = closing.WinnerID
	current.LoserID = closing.LoserID
	s.weeks[next.ID] = copyWeek(next)
	return nil
}

func (s *MemoryStore) activeWeek(groupID string) *week.Week {
	for _, w := range s.weeks {
		if w.GroupID == groupID && w.IsActive {
			return w
		}
	}
	return nil
}

func copyWeek(w *week.Week) *week.Week {
	cp := *w
	if w.EndDate != nil {
		end := *w.EndDate
		cp.EndDate = &end
	}
	if w.WinnerID != nil {
		id := *w.WinnerID
		cp.WinnerID = &id
	}
	if w.LoserID != nil {
		id := *w.LoserID
		cp.LoserID = &id
	}
	return &cp
}

// ============ ENTRIES ============

func (s *MemoryStore) UpsertEntry(ctx context.Context, e *sleep.Entry) (*sleep.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[e.UserID]; !ok {
		return nil, fmt.Errorf("user %s: %w", e.UserID, apperr.ErrNotFound)
	}

	key := entryKey{userID: e.UserID, date: e.WakeDate}
	if existing, ok := s.entries[key]; ok {
		existing.Hours = e.Hours
		existing.LoggedAt = e.LoggedAt
		cp := *existing
		return &cp, nil
	}

	stored := *e
	s.entries[key] = &stored
	cp := stored
	return &cp, nil
}

func (s *MemoryStore) DeleteEntry(ctx context.Context, userID string, wakeDate calendar.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, entryKey{userID: userID, date: wakeDate})
	return nil
}

func (s *MemoryStore) ListEntries(ctx context.Context, f sleep.Filter) ([]*sleep.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*sleep.Entry
	for k, e := range s.entries {
		if !slices.Contains(f.UserIDs, k.userID) {
			continue
		}
		if f.From != nil && e.WakeDate.Before(*f.From) {
			continue
		}
		if f.To != nil && e.WakeDate.After(*f.To) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}

	slices.SortFunc(out, func(a, b *sleep.Entry) int {
		if c := a.WakeDate.Time().Compare(b.WakeDate.Time()); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out, nil
}

// ============ PLEDGES ============

func (s *MemoryStore) CreatePledge(ctx context.Context, p *pledge.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.weeks[p.WeekID]; !ok {
		return fmt.Errorf("week %s: %w", p.WeekID, apperr.ErrNotFound)
	}
	key := pledgeKey{weekID: p.WeekID, userID: p.UserID}
	if _, ok := s.pledges[key]; ok {
		return fmt.Errorf("pledge %s/%s: %w", p.WeekID, p.UserID, apperr.ErrConflict)
	}
	cp := *p
	s.pledges[key] = &cp
	return nil
}

func (s *MemoryStore) GetPledge(ctx context.Context, weekID, userID string) (*pledge.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pledges[pledgeKey{weekID: weekID, userID: userID}]
	if !ok {
		return nil, fmt.Errorf("pledge %s/%s: %w", weekID, userID, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPledges(ctx context.Context, weekID string) ([]*pledge.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*pledge.Pledge
	for k, p := range s.pledges {
		if k.weekID == weekID {
			cp := *p
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *pledge.Pledge) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// ============ DEVICES ============

func (s *MemoryStore) RegisterDevice(ctx context.Context, d *notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[d.Token] = *d
	return nil
}

func (s *MemoryStore) ListDeviceTokens(ctx context.Context, userIDs []string) ([]notification.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []notification.DeviceToken
	for _, d := range s.devices {
		if slices.Contains(userIDs, d.UserID) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b notification.DeviceToken) int { return strings.Compare(a.Token, b.Token) })
	return out, nil
}
