package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/metrics"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

const (
	maxGroupNameLength = 64
	codeSuffixLength   = 4
	codeAttempts       = 5
	codeAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type GroupService struct {
	store         store.Store
	cal           *calendar.Calendar
	inviteBaseURL string
	codeSuffix    func() (string, error)
}

func NewGroupService(s store.Store, cal *calendar.Calendar, inviteBaseURL string) *GroupService {
	return &GroupService{store: s, cal: cal, inviteBaseURL: inviteBaseURL, codeSuffix: randomCodeSuffix}
}

// CreateGroup makes owner the owner and first member and opens week 1.
func (s *GroupService) CreateGroup(ctx context.Context, owner *user.User, name string) (*group.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "group name is required")
	}
	if utf8.RuneCountInString(name) > maxGroupNameLength {
		return nil, apperr.Validation("name", fmt.Sprintf("group name must be at most %d characters", maxGroupNameLength))
	}

	prefix := codePrefix(name)
	now := s.cal.Timestamp()

	for attempt := 1; attempt <= codeAttempts; attempt++ {
		suffix, err := s.codeSuffix()
		if err != nil {
			return nil, fmt.Errorf("failed to generate join code: %w", err)
		}

		g := &group.Group{
			ID:        uuid.NewString(),
			Name:      name,
			OwnerID:   owner.ID,
			Code:      prefix + "-" + suffix,
			CreatedAt: now,
		}
		first := &week.Week{
			ID:         uuid.NewString(),
			GroupID:    g.ID,
			WeekNumber: 1,
			IsActive:   true,
			StartDate:  now,
		}

		err = s.store.CreateGroup(ctx, g, first)
		if err == nil {
			metrics.GroupsCreated.Inc()
			zap.S().Infof("Group %s (%s) created by %s", g.ID, g.Code, owner.ID)
			return g, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}

		metrics.JoinCodeCollisions.Inc()
		zap.S().Warnf("Join code %s already taken (attempt %d/%d)", g.Code, attempt, codeAttempts)
	}

	return nil, apperr.Conflict("could not allocate a unique join code, try again")
}

// JoinGroup enrolls u in the group with the given code, ignoring case.
func (s *GroupService) JoinGroup(ctx context.Context, u *user.User, code string) (*group.Group, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("code", "join code is required")
	}

	g, err := s.store.GetGroupByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("invalid group code")
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.AddMember(ctx, g.ID, u.ID); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("you are already a member of this group")
		}
		return nil, err
	}

	zap.S().Infof("User %s joined group %s", u.ID, g.ID)
	return g, nil
}

// GetGroup returns the caller's group, or nil when they have none.
func (s *GroupService) GetGroup(ctx context.Context, u *user.User) (*group.Group, error) {
	g, err := s.store.GetGroupForUser(ctx, u.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return g, err
}

// RequireMember loads the group and checks that userID belongs to it.
func (s *GroupService) RequireMember(ctx context.Context, groupID, userID string) (*group.Group, error) {
	g, err := s.store.GetGroupByID(ctx, groupID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("group not found")
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthorized("you are not a member of this group")
	}
	return g, nil
}

func (s *GroupService) ListMembers(ctx context.Context, u *user.User, groupID string) ([]*user.User, error) {
	if _, err := s.RequireMember(ctx, groupID, u.ID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []*user.User{}
	}
	return members, nil
}

// Invite returns the join code with a shareable link and its QR code.
func (s *GroupService) Invite(ctx context.Context, u *user.User, groupID string) (*group.InviteResponse, error) {
	g, err := s.RequireMember(ctx, groupID, u.ID)
	if err != nil {
		return nil, err
	}

	link := s.inviteBaseURL + "?code=" + url.QueryEscape(g.Code)
	pngBytes, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &group.InviteResponse{
		Code:   g.Code,
		Link:   link,
		QRCode: base64.StdEncoding.EncodeToString(pngBytes),
	}, nil
}

// codePrefix is the first four ASCII letters or digits of name, uppercased.
func codePrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 4 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "GRP"
	}
	return b.String()
}

func randomCodeSuffix() (string, error) {
	out := make([]byte, codeSuffixLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
