package pledge

import "time"

const (
	MinAmount = 0
	MaxAmount = 50
)

type Pledge struct {
	ID        string    `json:"id"`
	WeekID    string    `json:"weekId"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type PledgeRequest struct {
	Amount *float64 `json:"amount" validate:"required"`
}
