package week

import "time"

type Week struct {
	ID         string     `json:"id"`
	GroupID    string     `json:"groupId"`
	WeekNumber int        `json:"weekNumber"`
	IsActive   bool       `json:"isActive"`
	StartDate  time.Time  `json:"startDate"`
	EndDate    *time.Time `json:"endDate"`
	WinnerID   *string    `json:"winnerId"`
	LoserID    *string    `json:"loserId"`
}
