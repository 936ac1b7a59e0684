package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/sleep"
)

var monday = calendar.NewDate(2024, time.April, 1)

func night(d calendar.Date, hours float64) *sleep.Entry {
	return &sleep.Entry{UserID: "u1", WakeDate: d, Hours: hours}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		Desc    string
		Entries []*sleep.Entry
		Today   calendar.Date
		Want    int
	}{
		{
			Desc:  "no entries",
			Today: monday,
			Want:  0,
		},
		{
			Desc:    "latest entry older than yesterday",
			Entries: []*sleep.Entry{night(monday, 8), night(monday.AddDays(1), 8)},
			Today:   monday.AddDays(3),
			Want:    0,
		},
		{
			Desc:    "latest entry yesterday keeps streak alive",
			Entries: []*sleep.Entry{night(monday, 8), night(monday.AddDays(1), 7)},
			Today:   monday.AddDays(2),
			Want:    2,
		},
		{
			Desc:    "short night today breaks streak",
			Entries: []*sleep.Entry{night(monday, 8), night(monday.AddDays(1), 8), night(monday.AddDays(2), 3)},
			Today:   monday.AddDays(2),
			Want:    0,
		},
		{
			Desc:    "two good nights as of tuesday",
			Entries: []*sleep.Entry{night(monday, 8), night(monday.AddDays(1), 8)},
			Today:   monday.AddDays(1),
			Want:    2,
		},
		{
			Desc:    "gap stops the walk",
			Entries: []*sleep.Entry{night(monday, 8), night(monday.AddDays(2), 8), night(monday.AddDays(3), 9)},
			Today:   monday.AddDays(3),
			Want:    2,
		},
		{
			Desc:    "threshold is inclusive",
			Entries: []*sleep.Entry{night(monday, 6), night(monday.AddDays(1), 6)},
			Today:   monday.AddDays(1),
			Want:    2,
		},
		{
			Desc:    "input order does not matter",
			Entries: []*sleep.Entry{night(monday.AddDays(2), 7), night(monday, 7), night(monday.AddDays(1), 7)},
			Today:   monday.AddDays(2),
			Want:    3,
		},
		{
			Desc:    "short night in the middle",
			Entries: []*sleep.Entry{night(monday, 9), night(monday.AddDays(1), 4), night(monday.AddDays(2), 9)},
			Today:   monday.AddDays(2),
			Want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Desc, func(t *testing.T) {
			got := Calculate(tt.Entries, tt.Today, DefaultMinHours)
			assert.Equal(t, tt.Want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, len(tt.Entries))
		})
	}
}

func TestCalculateDoesNotReorderInput(t *testing.T) {
	entries := []*sleep.Entry{night(monday, 8), night(monday.AddDays(1), 8)}
	Calculate(entries, monday.AddDays(1), DefaultMinHours)
	assert.Equal(t, monday, entries[0].WakeDate)
}
