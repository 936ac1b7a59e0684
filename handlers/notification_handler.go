package handlers

import (
	"context"
	"net/http"

	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/services"
)

type NotificationHandler struct {
	users               *services.UserService
	notificationService *services.NotificationService
}

func NewNotificationHandler(users *services.UserService, notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		users:               users,
		notificationService: notificationService,
	}
}

// POST /api/v1/notifications/register-device
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	u, err := caller(ctx, h.users)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var req notification.RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	if err := h.notificationService.RegisterDevice(ctx, u, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully"})
}
