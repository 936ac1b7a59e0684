package streak

import (
	"slices"

	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/sleep"
)

const DefaultMinHours = 6.0

// Calculate returns the number of consecutive nights, ending on the most
// recent entry, that met minHours. The streak is dead unless the most recent
// entry is today or yesterday.
func Calculate(entries []*sleep.Entry, today calendar.Date, minHours float64) int {
	if len(entries) == 0 {
		return 0
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b *sleep.Entry) int {
		return b.WakeDate.Time().Compare(a.WakeDate.Time())
	})

	latest := sorted[0].WakeDate
	if latest != today && latest != today.AddDays(-1) {
		return 0
	}

	count := 0
	cursor := latest
	for _, e := range sorted {
		gap := cursor.DaysSince(e.WakeDate)
		if gap < 0 {
			gap = -gap
		}
		if gap > 1 && count > 0 {
			break
		}
		if e.Hours < minHours {
			break
		}
		count++
		cursor = e.WakeDate
	}

	return count
}
