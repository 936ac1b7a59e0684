package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/services"
)

type GroupHandler struct {
	users  *services.UserService
	groups *services.GroupService
}

func NewGroupHandler(users *services.UserService, groups *services.GroupService) *GroupHandler {
	return &GroupHandler{users: users, groups: groups}
}

// GetMyGroup answers 204 when the caller is in no group.
func (h *GroupHandler) GetMyGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	g, err := h.groups.GetGroup(ctx, u)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if g == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondWithJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req group.CreateGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	g, err := h.groups.CreateGroup(ctx, u, req.Name)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req group.JoinGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	g, err := h.groups.JoinGroup(ctx, u, req.Code)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	members, err := h.groups.ListMembers(ctx, u, mux.Vars(r)["groupID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, members)
}

func (h *GroupHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	invite, err := h.groups.Invite(ctx, u, mux.Vars(r)["groupID"])
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, invite)
}
