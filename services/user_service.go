package services

import (
	"context"
	"errors"
	"fmt"

	clerkSDK "github.com/clerk/clerk-sdk-go/v2"
	clerkUser "github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/user"
)

// Profile is what the identity provider knows about a user.
type Profile struct {
	Email     string
	Name      string
	AvatarURL string
}

type ProfileFetcher interface {
	FetchProfile(ctx context.Context, clerkID string) (*Profile, error)
}

// ClerkProfileFetcher reads profiles from the Clerk backend API. clerk.SetKey must have been called.
type ClerkProfileFetcher struct{}

func (ClerkProfileFetcher) FetchProfile(ctx context.Context, clerkID string) (*Profile, error) {
	u, err := clerkUser.Get(ctx, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clerk user %s: %w", clerkID, err)
	}
	return profileFromClerk(u), nil
}

func profileFromClerk(u *clerkSDK.User) *Profile {
	p := &Profile{}
	for _, e := range u.EmailAddresses {
		if e == nil {
			continue
		}
		if p.Email == "" || (u.PrimaryEmailAddressID != nil && e.ID == *u.PrimaryEmailAddressID) {
			p.Email = e.EmailAddress
		}
	}

	first, last := deref(u.FirstName), deref(u.LastName)
	switch {
	case first != "" && last != "":
		p.Name = first + " " + last
	case first != "":
		p.Name = first
	default:
		p.Name = deref(u.Username)
	}
	p.AvatarURL = deref(u.ImageURL)
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type UserService struct {
	store    store.UserStore
	cal      *calendar.Calendar
	profiles ProfileFetcher
}

// NewUserService builds the service. profiles may be nil, in which case
// first-time users get a placeholder profile.
func NewUserService(s store.UserStore, cal *calendar.Calendar, profiles ProfileFetcher) *UserService {
	return &UserService{store: s, cal: cal, profiles: profiles}
}

// EnsureUser returns the user for clerkID, creating it on first sight.
func (s *UserService) EnsureUser(ctx context.Context, clerkID string) (*user.User, error) {
	if clerkID == "" {
		return nil, apperr.Unauthorized("missing identity")
	}

	u, err := s.store.GetUserByClerkID(ctx, clerkID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	profile := &Profile{Name: clerkID}
	if s.profiles != nil {
		fetched, err := s.profiles.FetchProfile(ctx, clerkID)
		if err != nil {
			zap.S().Warnf("EnsureUser: profile lookup failed for %s, using placeholder: %v", clerkID, err)
		} else {
			profile = fetched
		}
	}

	u, err = s.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   clerkID,
		Email:     profile.Email,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
	})
	if errors.Is(err, apperr.ErrConflict) {
		// another request created it first
		return s.store.GetUserByClerkID(ctx, clerkID)
	}
	return u, err
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.cal.Timestamp()
	name := user.DisplayName(req.Name, req.Email)
	u := &user.User{
		ID:        uuid.NewString(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Name:      name,
		AvatarURL: user.AvatarOrDefault(req.AvatarURL, name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	zap.S().Infof("Created user %s for identity %s", u.ID, u.ClerkID)
	return u, nil
}

// SyncUser applies an identity provider update, creating the user when it does not exist yet.
func (s *UserService) SyncUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	updated, err := s.UpdateProfile(ctx, req.ClerkID, &user.UpdateProfileRequest{
		Email:     req.Email,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return s.CreateUser(ctx, req)
	}
	return updated, err
}

func (s *UserService) UpdateProfile(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	return s.store.UpdateUser(ctx, clerkID, req)
}

func (s *UserService) DeleteUser(ctx context.Context, clerkID string) error {
	if err := s.store.DeleteUser(ctx, clerkID); err != nil {
		return err
	}
	zap.S().Infof("Deleted user for identity %s", clerkID)
	return nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	return s.store.GetUserByClerkID(ctx, clerkID)
}
