package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/tests/helpers"
)

func TestGetProfile_Authenticated(t *testing.T) {
	ts := helpers.NewTestServer(t)
	clerkID := helpers.UniqueClerkID("user_auth")

	resp := ts.Do(t, http.MethodGet, "/api/v1/user", clerkID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	profile := helpers.DecodeJSON[user.User](t, resp)
	assert.Equal(t, clerkID, profile.ClerkID)
	assert.NotEmpty(t, profile.ID)
	assert.Contains(t, profile.AvatarURL, "ui-avatars.com")

	again := helpers.DecodeJSON[user.User](t, ts.Do(t, http.MethodGet, "/api/v1/user", clerkID, nil))
	assert.Equal(t, profile.ID, again.ID, "profile is created once")
}

func TestGetProfile_Unauthenticated(t *testing.T) {
	ts := helpers.NewTestServer(t)

	resp := ts.Do(t, http.MethodGet, "/api/v1/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRejectsBadTokens(t *testing.T) {
	ts := helpers.NewTestServer(t)

	expired, err := helpers.GenerateJWT(helpers.TestJWTSecret, "user_x", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	forged, err := helpers.GenerateJWT("someone-elses-secret", "user_x", time.Now().Add(time.Hour))
	require.NoError(t, err)

	for name, token := range map[string]string{"expired": expired, "forged": forged} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.Server.URL+"/api/v1/user", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := ts.Server.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}
