package user

import (
	"net/url"
	"strings"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	ClerkID   string    `json:"clerkId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DisplayName falls back to the email local part, then to "User".
func DisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// AvatarOrDefault returns avatarURL, or a generated initials avatar when it is empty.
func AvatarOrDefault(avatarURL, name string) string {
	if avatarURL != "" {
		return avatarURL
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=3B82F6&color=fff"
}
