package sleep

import (
	"time"

	"sleepTaxAPI/internal/types/calendar"
)

type Entry struct {
	ID       string        `json:"id"`
	UserID   string        `json:"userId"`
	WakeDate calendar.Date `json:"wakeDate"`
	Hours    float64       `json:"hours"`
	LoggedAt time.Time     `json:"loggedAt"`
}

type LogSleepRequest struct {
	Date   calendar.Date `json:"date"`
	Hours  *float64      `json:"hours" validate:"required,gte=0,lte=24"`
	WeekID *string       `json:"weekId,omitempty"`
}

// Filter selects entries for a set of users. Nil bounds are open.
type Filter struct {
	UserIDs []string
	From    *calendar.Date
	To      *calendar.Date
}

type ChartDay struct {
	Date     calendar.Date `json:"date"`
	Hours    float64       `json:"hours"`
	HasEntry bool          `json:"hasEntry"`
	IsToday  bool          `json:"isToday"`
}

type UserStats struct {
	Entries    []*Entry    `json:"entries"`
	Streak     int         `json:"streak"`
	TotalHours float64     `json:"totalHours"`
	Days       []*ChartDay `json:"days"`
}
