package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/apperr"
)

var webhookKey = []byte("super-secret-signing-key")

func webhookSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString(webhookKey)
}

const createdPayload = `{
	"data": {
		"id": "user_ana",
		"first_name": "Ana",
		"last_name": "Lima",
		"primary_email_address_id": "idn_2",
		"email_addresses": [
			{"id": "idn_1", "email_address": "old@example.com"},
			{"id": "idn_2", "email_address": "ana@example.com"}
		],
		"image_url": "https://img.example.com/ana.png"
	},
	"object": "event",
	"type": "user.created"
}`

func (ts *testServer) webhook(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func signedHeaders(ts *testServer, body string, offsetSeconds int64) map[string]string {
	stamp := strconv.FormatInt(ts.cal.Timestamp().Unix()+offsetSeconds, 10)
	return map[string]string{
		"svix-id":        "msg_1",
		"svix-timestamp": stamp,
		"svix-signature": "v1,bm90LWl0 v1," + sign(webhookKey, "msg_1", stamp, []byte(body)),
	}
}

func TestWebhookVerifiesSignature(t *testing.T) {
	ts := newTestServer(t, webhookSecret())

	rec := ts.webhook(t, createdPayload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned")

	headers := signedHeaders(ts, createdPayload, 0)
	headers["svix-signature"] = "v1,bm90LWl0"
	rec = ts.webhook(t, createdPayload, headers)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong signature")

	rec = ts.webhook(t, createdPayload, signedHeaders(ts, createdPayload, -600))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "stale timestamp")

	rec = ts.webhook(t, createdPayload+" ", signedHeaders(ts, createdPayload, 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "tampered body")

	rec = ts.webhook(t, createdPayload, signedHeaders(ts, createdPayload, 0))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := ts.store.GetUserByClerkID(context.Background(), "user_ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", u.Name)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "https://img.example.com/ana.png", u.AvatarURL)
}

func TestWebhookUserLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()

	rec := ts.webhook(t, createdPayload, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := `{"data": {"id": "user_ana", "username": "ana_sleeps"}, "object": "event", "type": "user.updated"}`
	rec = ts.webhook(t, updated, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u, err := ts.store.GetUserByClerkID(ctx, "user_ana")
	require.NoError(t, err)
	assert.Equal(t, "ana_sleeps", u.Name)
	assert.Equal(t, "ana@example.com", u.Email, "fields absent from the update are kept")

	deleted := `{"data": {"id": "user_ana", "deleted": true}, "object": "event", "type": "user.deleted"}`
	rec = ts.webhook(t, deleted, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = ts.store.GetUserByClerkID(ctx, "user_ana")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	rec = ts.webhook(t, deleted, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "deleting twice is harmless")

	rec = ts.webhook(t, `{"data": {}, "type": "user.deleted"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.webhook(t, `{"data": {}, "type": "session.created"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.webhook(t, `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewWebhookHandlerRejectsBadSecret(t *testing.T) {
	_, err := NewWebhookHandler(nil, "whsec_%%%")
	assert.Error(t, err)
}
