package group

import "time"

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

type Membership struct {
	GroupID  string    `json:"groupId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type JoinGroupRequest struct {
	Code string `json:"code" validate:"required"`
}

type InviteResponse struct {
	Code   string `json:"code"`
	Link   string `json:"link"`
	QRCode string `json:"qrCode"` // base64 PNG
}
