package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/middleware"
	"sleepTaxAPI/services"
)

const requestTimeout = 5 * time.Second

// caller resolves the authenticated identity to a user row, creating it on first sight.
func caller(ctx context.Context, users *services.UserService) (*user.User, error) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		return nil, errNotAuthenticated
	}
	return users.EnsureUser(ctx, clerkID)
}

var errNotAuthenticated = errors.New("user not authenticated")

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("body", "Invalid request body")
	}
	return nil
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error", "code": "INTERNAL"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	WeekID string `json:"weekId,omitempty"`
}

// respondWithAppError maps err onto the error taxonomy. Unknown errors are logged and hidden.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errNotAuthenticated) {
		respondWithJSON(w, http.StatusUnauthorized, errorBody{Error: "User not authenticated", Code: "UNAUTHORIZED"})
		return
	}

	status := apperr.HTTPStatus(err)
	body := errorBody{Error: apperr.Message(err), Code: apperr.Code(err)}

	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Field != "" {
		if errors.Is(err, apperr.ErrPledgeRequired) {
			body.WeekID = appErr.Field
		} else {
			body.Field = appErr.Field
		}
	}

	if status == http.StatusInternalServerError {
		zap.S().Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	respondWithJSON(w, status, body)
}
