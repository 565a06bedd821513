package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/gift-exchange/internal/api/http/handlers"
	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/domain"
	"github.com/spec-kit/gift-exchange/internal/observability"
	"github.com/spec-kit/gift-exchange/internal/service"
	"github.com/spec-kit/gift-exchange/internal/session"
)

const testCookie = "gift_session"

type fakeAuthenticator struct {
	now time.Time
}

func (f fakeAuthenticator) record(email string) domain.TokenRecord {
	return domain.TokenRecord{
		SessionID:            "sess-" + email,
		AccessToken:          "access-1",
		RefreshToken:         "refresh-1",
		AccessTokenExpiresAt: f.now.Add(15 * time.Minute),
		IssuedAt:             f.now,
		Identity:             domain.Identity{ID: "7", FirstName: "Ada", Email: email, Role: domain.RoleUser, IsVerified: true},
	}
}

func (f fakeAuthenticator) LoginWithPassword(_ context.Context, email, password string) (domain.TokenRecord, error) {
	if password != "secret" {
		return domain.TokenRecord{}, service.ErrAuthentication
	}
	return f.record(email), nil
}

func (f fakeAuthenticator) LoginWithGoogle(_ context.Context, idToken string) (domain.TokenRecord, error) {
	if idToken != "good" {
		return domain.TokenRecord{Error: domain.SessionErrorGoogleSignIn}, service.ErrFederatedAuth
	}
	return f.record("grace@example.com"), nil
}

type refresherFunc func(domain.TokenRecord) domain.TokenRecord

func (f refresherFunc) Refresh(_ context.Context, rec domain.TokenRecord) domain.TokenRecord {
	return f(rec)
}

type testServer struct {
	app    *fiber.App
	sealer *auth.TokenSealer
}

func newTestServer(t *testing.T, refresh refresherFunc) *testServer {
	t.Helper()
	if refresh == nil {
		refresh = func(rec domain.TokenRecord) domain.TokenRecord { return rec }
	}
	sealer, err := auth.NewTokenSealer("router-secret", time.Hour)
	require.NoError(t, err)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	routes := auth.DefaultRouteTable()
	mw := auth.NewMiddleware(sealer, auth.SessionCookie{Name: testCookie, MaxAge: time.Hour}, routes,
		func() *session.Store { return session.NewStore(refresh) }, logger, metrics)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("gift-exchange-web", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(fakeAuthenticator{now: time.Now()}, config.GoogleConfig{}, routes, false, logger),
		Pages:          handlers.NewPagesHandler(),
		AuthMiddleware: mw,
		Metrics:        metrics,
	})
	return &testServer{app: app, sealer: sealer}
}

func (s *testServer) do(t *testing.T, method, target, body, cookie string) *stdhttp.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", testCookie+"="+cookie)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	return resp
}

func (s *testServer) seal(t *testing.T, rec domain.TokenRecord) string {
	t.Helper()
	sealed, err := s.sealer.Seal(rec)
	require.NoError(t, err)
	return sealed
}

func sessionCookieOf(resp *stdhttp.Response) (*stdhttp.Cookie, bool) {
	for _, c := range resp.Cookies() {
		if c.Name == testCookie {
			return c, true
		}
	}
	return nil, false
}

func decode(t *testing.T, resp *stdhttp.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func errorCode(t *testing.T, resp *stdhttp.Response) string {
	t.Helper()
	body := decode(t, resp)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error body: %v", body)
	return errBody["code"].(string)
}

func TestLoginThenSession(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, fiber.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret"}`, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie, ok := sessionCookieOf(resp)
	require.True(t, ok)
	require.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	resp = srv.do(t, fiber.MethodGet, "/auth/session", "", cookie.Value)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "access-1", data["access_token"])
	assert.Equal(t, "ada@example.com", data["user"].(map[string]any)["email"])
	_, rewritten := sessionCookieOf(resp)
	assert.False(t, rewritten)
}

func TestLogin_Rejected(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, fiber.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	_, ok := sessionCookieOf(resp)
	assert.False(t, ok)
	assert.Equal(t, "AUTHENTICATION_FAILED", errorCode(t, resp))

	resp = srv.do(t, fiber.MethodPost, "/auth/login", `{"email":""}`, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGoogle_RejectedKeepsExistingSession(t *testing.T) {
	srv := newTestServer(t, nil)
	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))

	resp := srv.do(t, fiber.MethodPost, "/auth/google", `{"id_token":"bad"}`, existing)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	_, touched := sessionCookieOf(resp)
	assert.False(t, touched)

	body := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "GOOGLE_SIGN_IN_FAILED", body["code"])
	assert.Equal(t, "GoogleSignInError", body["details"].(map[string]any)["error"])

	resp = srv.do(t, fiber.MethodPost, "/auth/google", `{"id_token":"good"}`, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, ok := sessionCookieOf(resp)
	assert.True(t, ok)
}

func TestGoogleRedirect_NotConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.do(t, fiber.MethodGet, "/auth/google/login", "", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestUpdateSession(t *testing.T) {
	srv := newTestServer(t, nil)
	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))

	resp := srv.do(t, fiber.MethodPatch, "/auth/session", `{"first_name":"Augusta"}`, existing)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie, ok := sessionCookieOf(resp)
	require.True(t, ok)

	rec, err := srv.sealer.Open(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", rec.Identity.FirstName)
	assert.Equal(t, "access-1", rec.AccessToken)

	resp = srv.do(t, fiber.MethodPatch, "/auth/session", `{"first_name":"Augusta"}`, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, fiber.MethodPatch, "/auth/session", `{}`, existing)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSignOut(t *testing.T) {
	srv := newTestServer(t, nil)
	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))

	resp := srv.do(t, fiber.MethodPost, "/auth/signout", "", existing)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	cookie, ok := sessionCookieOf(resp)
	require.True(t, ok)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, "/login", decode(t, resp)["data"].(map[string]any)["redirect"])
}

func TestSession_ExpiredRefreshForcesSignOut(t *testing.T) {
	srv := newTestServer(t, func(rec domain.TokenRecord) domain.TokenRecord {
		rec.Error = domain.SessionErrorRefreshExpired
		return rec
	})
	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))

	resp := srv.do(t, fiber.MethodGet, "/auth/session", "", existing)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	cookie, ok := sessionCookieOf(resp)
	require.True(t, ok)
	assert.Empty(t, cookie.Value)

	body := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "SESSION_EXPIRED", body["code"])
	assert.Equal(t, "/login?error=SessionExpired", body["details"].(map[string]any)["redirect"])
}

func TestPages_ExpiredSessionOnPublicPage(t *testing.T) {
	srv := newTestServer(t, func(rec domain.TokenRecord) domain.TokenRecord {
		rec.Error = domain.SessionErrorRefreshExpired
		return rec
	})
	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))

	for _, target := range []string{"/", "/login"} {
		resp := srv.do(t, fiber.MethodGet, target, "", existing)
		assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode, target)
		assert.Equal(t, "/login?error=SessionExpired", resp.Header.Get("Location"), target)
		cookie, ok := sessionCookieOf(resp)
		require.True(t, ok, target)
		assert.Empty(t, cookie.Value, target)
	}

	resp := srv.do(t, fiber.MethodGet, "/login?error=SessionExpired", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login", decode(t, resp)["data"].(map[string]any)["path"])
}

func TestPages_Guarded(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, fiber.MethodGet, "/dashboard", "", "")
	assert.Equal(t, fiber.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", resp.Header.Get("Location"))

	existing := srv.seal(t, fakeAuthenticator{now: time.Now()}.record("ada@example.com"))
	resp = srv.do(t, fiber.MethodGet, "/dashboard", "", existing)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["path"])

	resp = srv.do(t, fiber.MethodGet, "/", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, fiber.MethodGet, "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = srv.do(t, fiber.MethodGet, "/health/ready", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	deps := decode(t, resp)["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])

	srv.do(t, fiber.MethodGet, "/dashboard", "", "")
	resp = srv.do(t, fiber.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `giftexchange_route_guard_decisions_total{outcome="redirect_login"} 1`)
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, fiber.MethodGet, "/health/live", "", "")
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	req := httptest.NewRequest(fiber.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "3f0c7c8e-0000-4000-8000-000000000001")
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "3f0c7c8e-0000-4000-8000-000000000001", resp.Header.Get("X-Request-ID"))
}
