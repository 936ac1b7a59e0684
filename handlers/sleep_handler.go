package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/services"
)

type SleepHandler struct {
	users *services.UserService
	sleep *services.SleepService
}

func NewSleepHandler(users *services.UserService, sleep *services.SleepService) *SleepHandler {
	return &SleepHandler{users: users, sleep: sleep}
}

// LogSleep answers 428 with the week id when the caller still has to pledge.
func (h *SleepHandler) LogSleep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req sleep.LogSleepRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	entry, err := h.sleep.LogSleep(ctx, u, &req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

func (h *SleepHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	date, err := calendar.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondWithAppError(w, r, apperr.Validation("date", err.Error()))
		return
	}

	if err := h.sleep.DeleteEntry(ctx, u, date); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SleepHandler) GetMyEntries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	entries, err := h.sleep.GetMyEntriesForWeek(ctx, u, mux.Vars(r)["weekID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// GetUserStats accepts "me" in place of the caller's own id.
func (h *SleepHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	target := vars["userID"]
	if target == "me" {
		target = u.ID
	}

	stats, err := h.sleep.GetUserStats(ctx, u, vars["weekID"], target)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
