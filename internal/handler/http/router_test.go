package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/handler/http/middleware"
	"github.com/telecare/consult-gate/internal/pkg/database"
	"github.com/telecare/consult-gate/internal/pkg/jwt"
	"github.com/telecare/consult-gate/internal/pkg/livekit"
	"github.com/telecare/consult-gate/internal/pkg/oauth"
	"github.com/telecare/consult-gate/internal/pkg/sse"
	"github.com/telecare/consult-gate/internal/repository/sqlite"
	authService "github.com/telecare/consult-gate/internal/service/auth"
	invitationService "github.com/telecare/consult-gate/internal/service/invitation"
	roomService "github.com/telecare/consult-gate/internal/service/room"
)

const testDoctorEmail = "dr.house@clinic.example"

type testEnv struct {
	router      http.Handler
	doctorToken string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := sqlite.NewInvitationRepository(context.Background(), db)
	require.NoError(t, err)

	jwtService := jwt.NewJWTService("doctor-secret", "1h")
	minter := livekit.NewMinter("APIkey", "livekit-secret")
	hub := sse.NewHub()
	invitations := invitationService.NewInvitationService(repo, jwt.NewInviteTokens("invite-secret"), minter, nil, hub, invitationService.Config{
		FrontendURL: "https://care.example.com",
	})

	router := NewRouter(
		RouterConfig{
			Env:            "test",
			AllowedOrigins: []string{"https://care.example.com"},
			EdgeGate:       middleware.NewEdgeGate("wss://video.example.com", nil),
			LogLevel:       slog.LevelError,
		},
		jwtService,
		NewAuthHandler(authService.NewAuthService(jwtService, []string{testDoctorEmail}), oauth.NewGoogleService("id", "secret", "http://localhost/cb", nil), "https://care.example.com", false),
		NewInvitationHandler(invitations, hub, "wss://video.example.com"),
		NewRoomHandler(roomService.NewRoomService(minter, time.Hour, "wss://video.example.com")),
	)

	doctorToken, _, err := jwtService.GenerateAccessToken(testDoctorEmail, testDoctorEmail)
	require.NoError(t, err)

	return &testEnv{router: router, doctorToken: doctorToken}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+e.doctorToken)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createInvitation(t *testing.T) invitation.CreateResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/invitations", map[string]any{
		"roomName":       "consult-42",
		"emailAllowed":   "patient@example.com",
		"expiresInHours": 24,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var created invitation.CreateResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created
}

func validateBody(token string) map[string]any {
	return map[string]any{
		"token": token,
		"deviceFingerprint": map[string]any{
			"userAgent":        "Mozilla/5.0 Chrome/124.0 Safari/537.36",
			"language":         "en-US",
			"platform":         "MacIntel",
			"screenResolution": "1920x1080",
			"timezone":         "Europe/Berlin",
			"cookieEnabled":    true,
			"doNotTrack":       "unspecified",
		},
	}
}

func TestRouter_CreateAndValidate(t *testing.T) {
	env := newTestEnv(t)
	created := env.createInvitation(t)
	assert.True(t, strings.HasPrefix(created.InviteURL, "https://care.example.com/invite/"))

	rec := env.do(t, http.MethodPost, "/api/v1/invitations/validate", validateBody(created.Token), false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ok invitation.ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Success)
	assert.NotEmpty(t, ok.LiveKitToken)
	assert.Equal(t, "consult-42", ok.RoomName)
	assert.Equal(t, "wss://video.example.com", ok.ServerURL)

	rec = env.do(t, http.MethodPost, "/api/v1/invitations/validate", validateBody(created.Token), false)
	assert.Equal(t, http.StatusGone, rec.Code)
	var denied invitation.ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &denied))
	assert.False(t, denied.Success)
	assert.Equal(t, "already-used", denied.Error)
	assert.NotEmpty(t, denied.Message)
}

func TestRouter_ValidateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invitations/validate", validateBody("not-a-token"), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"invalid-token"`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations/validate", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ValidateRequiresFingerprint(t *testing.T) {
	env := newTestEnv(t)
	created := env.createInvitation(t)

	body := validateBody(created.Token)
	delete(body, "deviceFingerprint")
	rec := env.do(t, http.MethodPost, "/api/v1/invitations/validate", body, false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "deviceFingerprint")

	rec = env.do(t, http.MethodGet, "/api/v1/invitations/"+created.InvitationID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var got envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	var inv invitation.InvitationResponse
	require.NoError(t, json.Unmarshal(got.Data, &inv))
	assert.Equal(t, invitation.StatusActive, inv.Status)
	assert.Zero(t, inv.UseCount)

	rec = env.do(t, http.MethodPost, "/api/v1/invitations/validate", validateBody(created.Token), false)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_DoctorEndpointsRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invitations", map[string]any{"roomName": "r"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/rooms/consult-42/token", map[string]any{"name": "Dr. House"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_CreateValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/invitations", map[string]any{
		"roomName":       "consult-42",
		"emailAllowed":   "patient@example.com",
		"expiresInHours": 10000,
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Contains(t, body.Error.Details, "expiresInHours")
}

func TestRouter_ManageInvitations(t *testing.T) {
	env := newTestEnv(t)
	created := env.createInvitation(t)

	rec := env.do(t, http.MethodGet, "/api/v1/invitations?status=active", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var list envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	var items []invitation.InvitationResponse
	require.NoError(t, json.Unmarshal(list.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, created.InvitationID, items[0].ID)

	rec = env.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/revoke", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/invitations/"+created.InvitationID+"/revoke", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/invitations/validate", validateBody(created.Token), false)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/invitations/"+created.InvitationID, nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/invitations/"+created.InvitationID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/invitations/not-a-uuid", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PeekAndLanding(t *testing.T) {
	env := newTestEnv(t)
	created := env.createInvitation(t)

	rec := env.do(t, http.MethodGet, "/api/v1/invitations/peek?token="+created.Token, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "p***@example.com")

	rec = env.do(t, http.MethodGet, "/invite/"+created.Token, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "wss://video.example.com")

	forged := created.Token[:len(created.Token)-4] + "AAAA"
	rec = env.do(t, http.MethodGet, "/invite/"+forged, nil, false)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/access-denied?reason=invalid-token", rec.Header().Get("Location"))
}

func TestRouter_EdgeGate(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]string{
		"/invite/":        "/access-denied?reason=invalid-link",
		"/invite/abc":     "/access-denied?reason=invalid-token",
		"/room/x/patient": "/access-denied?reason=direct-access",
	}
	for path, location := range cases {
		rec := env.do(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, path)
		assert.Equal(t, location, rec.Header().Get("Location"), path)
	}
}

func TestRouter_AccessDenied(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/access-denied?reason=wrong-device", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	var denial invitation.DenialResponse
	require.NoError(t, json.Unmarshal(body.Data, &denial))
	assert.Equal(t, "wrong-device", denial.Reason)
	assert.Equal(t, invitation.ReasonWrongDevice.Message(), denial.Message)

	rec = env.do(t, http.MethodGet, "/access-denied?reason=bogus-reason", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "bogus")
}

func TestRouter_DoctorRoomToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/rooms/consult-42/token", map[string]any{"name": "Dr. House"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"roomName":"consult-42"`)
}

func TestRouter_LogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/invitations", nil, true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_EventsStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/invitations/events?jwt="+env.doctorToken, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	env.createInvitation(t)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: connected")
	assert.Contains(t, rec.Body.String(), "event: invitation.created")
}
