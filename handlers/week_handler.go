package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"sleepTaxAPI/services"
)

type WeekHandler struct {
	users  *services.UserService
	weeks  *services.WeekService
	boards *services.LeaderboardService
}

func NewWeekHandler(users *services.UserService, weeks *services.WeekService, boards *services.LeaderboardService) *WeekHandler {
	return &WeekHandler{users: users, weeks: weeks, boards: boards}
}

func (h *WeekHandler) GetCurrentWeek(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	current, err := h.weeks.GetCurrentWeek(ctx, u, mux.Vars(r)["groupID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, current)
}

func (h *WeekHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	board, err := h.boards.GetLeaderboard(ctx, u, vars["groupID"], vars["weekID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, board)
}

// EndWeek closes the week and returns the one that replaced it.
func (h *WeekHandler) EndWeek(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	next, err := h.weeks.EndWeek(ctx, u, vars["groupID"], vars["weekID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, next)
}
