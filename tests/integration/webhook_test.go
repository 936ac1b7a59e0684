package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/tests/helpers"
)

func TestWebhookUserCreated(t *testing.T) {
	ts := helpers.NewTestServer(t)
	clerkID := helpers.UniqueClerkID("user_hook")
	body := helpers.MockClerkWebhookPayload("user.created", clerkID)

	resp := ts.PostWebhook(t, body, helpers.SignWebhook(t, "msg_1", time.Now(), body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	u, err := ts.Store.GetUserByClerkID(context.Background(), clerkID)
	require.NoError(t, err)
	assert.Equal(t, "test.user@example.com", u.Email)
	assert.Equal(t, "Test User", u.Name)
	assert.Equal(t, "https://example.com/image.jpg", u.AvatarURL)
}

func TestWebhookUserUpdated(t *testing.T) {
	ts := helpers.NewTestServer(t)
	clerkID := helpers.UniqueClerkID("user_hook")

	created := helpers.MockClerkWebhookPayload("user.created", clerkID)
	require.Equal(t, http.StatusOK, ts.PostWebhook(t, created, helpers.SignWebhook(t, "msg_1", time.Now(), created)).StatusCode)

	updated := helpers.MockClerkWebhookPayload("user.updated", clerkID)
	require.Equal(t, http.StatusOK, ts.PostWebhook(t, updated, helpers.SignWebhook(t, "msg_2", time.Now(), updated)).StatusCode)

	u, err := ts.Store.GetUserByClerkID(context.Background(), clerkID)
	require.NoError(t, err)
	assert.Equal(t, "Updated User", u.Name)
	assert.Equal(t, "https://example.com/new-image.jpg", u.AvatarURL)
}

func TestWebhookUserDeleted(t *testing.T) {
	ts := helpers.NewTestServer(t)
	clerkID := helpers.UniqueClerkID("user_hook")

	created := helpers.MockClerkWebhookPayload("user.created", clerkID)
	require.Equal(t, http.StatusOK, ts.PostWebhook(t, created, helpers.SignWebhook(t, "msg_1", time.Now(), created)).StatusCode)

	deleted := helpers.MockClerkWebhookPayload("user.deleted", clerkID)
	require.Equal(t, http.StatusOK, ts.PostWebhook(t, deleted, helpers.SignWebhook(t, "msg_2", time.Now(), deleted)).StatusCode)

	_, err := ts.Store.GetUserByClerkID(context.Background(), clerkID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestWebhookRejectsUnsignedEvents(t *testing.T) {
	ts := helpers.NewTestServer(t)
	clerkID := helpers.UniqueClerkID("user_hook")
	body := helpers.MockClerkWebhookPayload("user.created", clerkID)

	resp := ts.PostWebhook(t, body, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.PostWebhook(t, body, helpers.SignWebhook(t, "msg_1", time.Now().Add(-time.Hour), body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err := ts.Store.GetUserByClerkID(context.Background(), clerkID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
