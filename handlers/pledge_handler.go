package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/services"
)

type PledgeHandler struct {
	users   *services.UserService
	pledges *services.PledgeService
}

func NewPledgeHandler(users *services.UserService, pledges *services.PledgeService) *PledgeHandler {
	return &PledgeHandler{users: users, pledges: pledges}
}

// GetMyPledge answers 204 when the caller has not pledged for the week.
func (h *PledgeHandler) GetMyPledge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	p, err := h.pledges.GetMyPledge(ctx, u, mux.Vars(r)["weekID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *PledgeHandler) Pledge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req pledge.PledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	p, err := h.pledges.Pledge(ctx, u, mux.Vars(r)["weekID"], &req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}
