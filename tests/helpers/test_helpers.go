package helpers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/handlers"
	"sleepTaxAPI/internal/store"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/middleware"
	"sleepTaxAPI/services"
)

const (
	TestJWTSecret     = "test-secret-key-for-testing-only"
	TestWebhookSecret = "whsec_dGVzdC13ZWJob29rLXNpZ25pbmcta2V5"
)

// SetupTestStore returns the store named by TEST_STORE: "postgres" (using
// TEST_DATABASE_URL), "sqlite" (a file in a temp dir) or memory by default.
func SetupTestStore(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()

	switch os.Getenv("TEST_STORE") {
	case "postgres":
		dbURL := os.Getenv("TEST_DATABASE_URL")
		if dbURL == "" {
			t.Fatal("TEST_DATABASE_URL must be set when TEST_STORE=postgres")
		}
		pg, err := store.NewPostgresStore(ctx, dbURL)
		require.NoError(t, err)
		require.NoError(t, pg.Migrate(ctx))
		t.Cleanup(pg.Close)
		return pg
	case "sqlite":
		lite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sleeptax.db"))
		require.NoError(t, err)
		t.Cleanup(lite.Close)
		return lite
	default:
		return store.NewMemoryStore()
	}
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type TestServer struct {
	Server     *httptest.Server
	Store      store.Store
	Clock      *Clock
	Calendar   *calendar.Calendar
	Weeks      *services.WeekService
	Dispatcher *services.NotificationDispatcher
}

// NewTestServer serves the full API with HS256 auth and webhook verification enabled.
// The clock starts on Monday 2025-03-03 09:00 UTC.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	s := SetupTestStore(t)
	clk := &Clock{now: time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)}
	cal := &calendar.Calendar{Location: time.UTC, Now: clk.Now}

	dispatcher := services.NewNotificationDispatcher(2)
	t.Cleanup(dispatcher.Stop)

	users := services.NewUserService(s, cal, nil)
	groups := services.NewGroupService(s, cal, "https://sleeptax.app/join")
	boards := services.NewLeaderboardService(s, groups, cal, 6)
	notifications := services.NewNotificationService(s, dispatcher, cal)
	weeks := services.NewWeekService(s, groups, boards, cal, notifications)

	webhook, err := handlers.NewWebhookHandler(users, TestWebhookSecret)
	require.NoError(t, err)

	h := handlers.NewHandlers(handlers.Services{
		Users:         users,
		Groups:        groups,
		Weeks:         weeks,
		Leaderboards:  boards,
		Sleep:         services.NewSleepService(s, groups, cal, 6),
		Pledges:       services.NewPledgeService(s, groups, cal),
		Notifications: notifications,
	}, webhook)

	r := mux.NewRouter()
	r.Use(middleware.MonitorMiddleware)
	h.Register(r, middleware.AuthMiddleware(middleware.HS256Verifier(TestJWTSecret)))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &TestServer{Server: srv, Store: s, Clock: clk, Calendar: cal, Weeks: weeks, Dispatcher: dispatcher}
}

// Do sends a JSON request as clerkID (no Authorization header when clerkID is empty).
func (ts *TestServer) Do(t *testing.T, method, path, clerkID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.Server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if clerkID != "" {
		token, err := GenerateMockClerkJWT(clerkID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DecodeJSON reads resp into T.
func DecodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// GenerateMockClerkJWT generates an HS256 token accepted by the development verifier
func GenerateMockClerkJWT(clerkID string) (string, error) {
	return GenerateJWT(TestJWTSecret, clerkID, time.Now().Add(24*time.Hour))
}

func GenerateJWT(secret, clerkID string, expires time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": expires.Unix(),
		"azp": "test-app-id",
		"sid": "sess_test123",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// SignWebhook returns svix headers for body, signed with TestWebhookSecret.
func SignWebhook(t *testing.T, msgID string, at time.Time, body []byte) http.Header {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(TestWebhookSecret[len("whsec_"):])
	require.NoError(t, err)

	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID + "." + ts + "."))
	mac.Write(body)

	h := http.Header{}
	h.Set("svix-id", msgID)
	h.Set("svix-timestamp", ts)
	h.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

// PostWebhook delivers a signed Clerk event.
func (ts *TestServer) PostWebhook(t *testing.T, body []byte, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/webhooks/clerk", bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// MockClerkWebhookPayload creates a mock webhook payload
func MockClerkWebhookPayload(eventType string, clerkID string) []byte {
	payload := ""

	switch eventType {
	case "user.created":
		payload = fmt.Sprintf(`{
			"data": {
				"id": "%s",
				"first_name": "Test",
				"last_name": "User",
				"email_addresses": [{
					"id": "email_123",
					"email_address": "test.user@example.com",
					"verification": {"status": "verified"}
				}],
				"primary_email_address_id": "email_123",
				"username": "testuser",
				"image_url": "https://example.com/image.jpg",
				"profile_image_url": "https://example.com/image.jpg"
			},
			"object": "event",
			"type": "%s"
		}`, clerkID, eventType)

	case "user.updated":
		payload = fmt.Sprintf(`{
			"data": {
				"id": "%s",
				"first_name": "Updated",
				"last_name": "User",
				"email_addresses": [{
					"id": "email_123",
					"email_address": "test.user@example.com",
					"verification": {"status": "verified"}
				}],
				"username": "updateduser",
				"image_url": "https://example.com/new-image.jpg"
			},
			"object": "event",
			"type": "%s"
		}`, clerkID, eventType)

	case "user.deleted":
		payload = fmt.Sprintf(`{
			"data": {
				"id": "%s",
				"deleted": true
			},
			"object": "event",
			"type": "%s"
		}`, clerkID, eventType)
	}

	return []byte(payload)
}

// UniqueClerkID keeps runs against a shared database apart.
func UniqueClerkID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
