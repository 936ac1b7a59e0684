package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/clerk"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/services"
)

const webhookTolerance = 5 * time.Minute

type WebhookHandler struct {
	userService *services.UserService
	secret      []byte
	now         func() time.Time
}

// NewWebhookHandler takes the svix signing secret ("whsec_..."). An empty secret disables verification.
func NewWebhookHandler(userService *services.UserService, signingSecret string) (*WebhookHandler, error) {
	h := &WebhookHandler{userService: userService, now: time.Now}
	if signingSecret == "" {
		return h, nil
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(signingSecret, "whsec_"))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook signing secret: %w", err)
	}
	h.secret = key
	return h, nil
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		zap.S().Warnf("Error reading webhook body: %v", err)
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(r.Header, body); err != nil {
		zap.S().Warnf("Invalid webhook signature: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event clerk.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		zap.S().Warnf("Error parsing webhook: %v", err)
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	zap.S().Infof("Received webhook event: %s", event.Type)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	switch event.Type {
	case "user.created", "user.updated":
		err = h.handleUserUpsert(ctx, event.Data)
	case "user.deleted":
		err = h.handleUserDeleted(ctx, event.Data)
	default:
		zap.S().Debugf("Unhandled webhook event type: %s", event.Type)
	}
	if err != nil {
		zap.S().Errorf("Error handling %s: %v", event.Type, err)
		if errors.Is(err, apperr.ErrValidation) {
			http.Error(w, "Invalid event payload", http.StatusBadRequest)
			return
		}
		http.Error(w, "Error processing webhook", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *WebhookHandler) handleUserUpsert(ctx context.Context, data json.RawMessage) error {
	var userData clerk.ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return apperr.Validation("data", "failed to unmarshal user data")
	}

	name := strings.TrimSpace(userData.FirstName + " " + userData.LastName)
	if name == "" {
		name = userData.Username
	}
	imageURL := userData.ImageURL
	if imageURL == "" {
		imageURL = userData.ProfileImageURL
	}

	u, err := h.userService.SyncUser(ctx, &user.CreateUserRequest{
		ClerkID:   userData.ID,
		Email:     userData.PrimaryEmail(),
		Name:      name,
		AvatarURL: imageURL,
	})
	if err != nil {
		return err
	}

	zap.S().Infof("Synced user %s (identity %s)", u.ID, u.ClerkID)
	return nil
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ID == "" {
		return apperr.Validation("data", "deleted event without user id")
	}

	err := h.userService.DeleteUser(ctx, payload.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

// verifySignature checks the svix headers: an HMAC-SHA256 over "id.timestamp.body"
// that must match one of the space separated "v1,<base64>" signatures.
func (h *WebhookHandler) verifySignature(header http.Header, body []byte) error {
	if h.secret == nil {
		return nil
	}

	id := header.Get("svix-id")
	ts := header.Get("svix-timestamp")
	sigs := header.Get("svix-signature")
	if id == "" || ts == "" || sigs == "" {
		return errors.New("missing svix headers")
	}

	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", ts)
	}
	if age := h.now().Sub(time.Unix(seconds, 0)); age > webhookTolerance || age < -webhookTolerance {
		return errors.New("timestamp outside tolerance")
	}

	expected := sign(h.secret, id, ts, body)
	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return errors.New("no matching signature")
}

func sign(key []byte, id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
