package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Rollovers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleeptax_rollovers_total",
			Help: "Week rollovers by outcome (closed, lost_race, repaired)",
		},
		[]string{"result"},
	)
	PledgeGateRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sleeptax_pledge_gate_rejections_total",
			Help: "Sleep logs refused because the user had not pledged for the week",
		},
	)
	SleepEntriesLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sleeptax_sleep_entries_logged_total",
			Help: "Sleep entries written, including overwrites",
		},
	)
	GroupsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sleeptax_groups_created_total",
			Help: "Groups created",
		},
	)
	JoinCodeCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sleeptax_join_code_collisions_total",
			Help: "Generated join codes that were already taken",
		},
	)
)

const (
	RolloverClosed   = "closed"
	RolloverLostRace = "lost_race"
	RolloverRepaired = "repaired"
)

// Register adds the domain collectors to reg. Call once from main.go.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Rollovers, PledgeGateRejections, SleepEntriesLogged, GroupsCreated, JoinCodeCollisions)
}
