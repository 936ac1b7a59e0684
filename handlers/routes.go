package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"sleepTaxAPI/services"
)

// Services bundles what the handlers call into.
type Services struct {
	Users         *services.UserService
	Groups        *services.GroupService
	Weeks         *services.WeekService
	Leaderboards  *services.LeaderboardService
	Sleep         *services.SleepService
	Pledges       *services.PledgeService
	Notifications *services.NotificationService
}

type Handlers struct {
	User         *UserHandler
	Group        *GroupHandler
	Week         *WeekHandler
	Sleep        *SleepHandler
	Pledge       *PledgeHandler
	Notification *NotificationHandler
	Webhook      *WebhookHandler
}

func NewHandlers(s Services, webhook *WebhookHandler) *Handlers {
	return &Handlers{
		User:         NewUserHandler(s.Users),
		Group:        NewGroupHandler(s.Users, s.Groups),
		Week:         NewWeekHandler(s.Users, s.Weeks, s.Leaderboards),
		Sleep:        NewSleepHandler(s.Users, s.Sleep),
		Pledge:       NewPledgeHandler(s.Users, s.Pledges),
		Notification: NewNotificationHandler(s.Users, s.Notifications),
		Webhook:      webhook,
	}
}

// Register mounts the webhook and the /api/v1 routes on r. Every /api/v1 route goes through auth.
func (h *Handlers) Register(r *mux.Router, auth func(http.Handler) http.Handler) {
	if h.Webhook != nil {
		r.HandleFunc("/webhooks/clerk", h.Webhook.HandleClerkWebhook).Methods("POST")
	}

	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(auth)

	protected.HandleFunc("/user", h.User.GetProfile).Methods("GET")

	protected.HandleFunc("/groups/mine", h.Group.GetMyGroup).Methods("GET")
	protected.HandleFunc("/groups", h.Group.CreateGroup).Methods("POST")
	protected.HandleFunc("/groups/join", h.Group.JoinGroup).Methods("POST")
	protected.HandleFunc("/groups/{groupID}/invite", h.Group.GetInvite).Methods("GET")
	protected.HandleFunc("/groups/{groupID}/members", h.Group.GetMembers).Methods("GET")

	protected.HandleFunc("/groups/{groupID}/weeks/current", h.Week.GetCurrentWeek).Methods("GET")
	protected.HandleFunc("/groups/{groupID}/weeks/{weekID}/leaderboard", h.Week.GetLeaderboard).Methods("GET")
	protected.HandleFunc("/groups/{groupID}/weeks/{weekID}/end", h.Week.EndWeek).Methods("POST")

	protected.HandleFunc("/weeks/{weekID}/entries/me", h.Sleep.GetMyEntries).Methods("GET")
	protected.HandleFunc("/weeks/{weekID}/stats/{userID}", h.Sleep.GetUserStats).Methods("GET")
	protected.HandleFunc("/weeks/{weekID}/pledge", h.Pledge.GetMyPledge).Methods("GET")
	protected.HandleFunc("/weeks/{weekID}/pledge", h.Pledge.Pledge).Methods("POST")

	protected.HandleFunc("/sleep", h.Sleep.LogSleep).Methods("POST")
	protected.HandleFunc("/sleep/{date}", h.Sleep.DeleteEntry).Methods("DELETE")

	protected.HandleFunc("/notifications/register-device", h.Notification.RegisterDevice).Methods("POST")
}
