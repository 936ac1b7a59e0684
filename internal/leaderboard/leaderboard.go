package leaderboard

import (
	"slices"

	"sleepTaxAPI/internal/streak"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
)

type LeaderboardEntry struct {
	UserID       string     `json:"userId"`
	User         *user.User `json:"user"`
	TotalHours   float64    `json:"totalHours"`
	Streak       int        `json:"streak"`
	TaxPledged   float64    `json:"taxPledged"`
	Rank         int        `json:"rank"`
	EntriesCount int        `json:"entriesCount"`
	TaxRisk      bool       `json:"taxRisk"`
}

// Window is the inclusive range of wake dates that count toward a week.
// A nil To means the week is still open.
type Window struct {
	From calendar.Date
	To   *calendar.Date
}

func (w Window) Contains(d calendar.Date) bool {
	if d.Before(w.From) {
		return false
	}
	return w.To == nil || !d.After(*w.To)
}

type Input struct {
	Members []*user.User
	Window  Window
	// History holds every entry of every member, not just this week's.
	History        []*sleep.Entry
	Pledges        []*pledge.Pledge
	Today          calendar.Date
	MinStreakHours float64
}

// Build ranks members by total hours inside the window. Ties keep member order.
func Build(in Input) []*LeaderboardEntry {
	byUser := make(map[string][]*sleep.Entry, len(in.Members))
	for _, e := range in.History {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	pledged := make(map[string]float64, len(in.Pledges))
	for _, p := range in.Pledges {
		pledged[p.UserID] = p.Amount
	}

	board := make([]*LeaderboardEntry, 0, len(in.Members))
	for _, m := range in.Members {
		history := byUser[m.ID]

		var total float64
		count := 0
		for _, e := range history {
			if !in.Window.Contains(e.WakeDate) {
				continue
			}
			total += e.Hours
			count++
		}

		board = append(board, &LeaderboardEntry{
			UserID:       m.ID,
			User:         m,
			TotalHours:   total,
			Streak:       streak.Calculate(history, in.Today, in.MinStreakHours),
			TaxPledged:   pledged[m.ID],
			EntriesCount: count,
		})
	}

	slices.SortStableFunc(board, func(a, b *LeaderboardEntry) int {
		switch {
		case a.TotalHours > b.TotalHours:
			return -1
		case a.TotalHours < b.TotalHours:
			return 1
		default:
			return 0
		}
	})

	for i, e := range board {
		e.Rank = i + 1
	}
	markTaxRisk(board)

	return board
}

// markTaxRisk flags last place, and second to last once the group has more than three members.
func markTaxRisk(board []*LeaderboardEntry) {
	n := len(board)
	if n == 0 {
		return
	}
	board[n-1].TaxRisk = true
	if n > 3 {
		board[n-2].TaxRisk = true
	}
}

// Winner is the rank 1 member, if any.
func Winner(board []*LeaderboardEntry) *LeaderboardEntry {
	if len(board) == 0 {
		return nil
	}
	return board[0]
}

// Loser is the last ranked member. A single member group has no loser.
func Loser(board []*LeaderboardEntry) *LeaderboardEntry {
	if len(board) < 2 {
		return nil
	}
	return board[len(board)-1]
}
