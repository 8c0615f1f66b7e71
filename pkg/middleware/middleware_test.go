package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"democrm-backend/pkg/config"
	"democrm-backend/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(user.ID))
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	access, refresh, _, err := jwtService.GenerateTokenPair("user-1")
	require.NoError(t, err)

	handler := AuthMiddleware(jwtService)(http.HandlerFunc(echoUser))

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
		body   string
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bearer access token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+access) }, http.StatusOK, "user-1"},
		{"session cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: access}) }, http.StatusOK, "user-1"},
		{"refresh token rejected", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+refresh) }, http.StatusUnauthorized, ""},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", access) }, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	handler := OptionalAuthMiddleware(jwtService)(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func TestRateLimitByIP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	serve := func(limiter Limiter) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		RateLimitByIP(limiter)(ok).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve(nil).Code)

	denied := &fakeLimiter{allow: false}
	rec := serve(denied)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"203.0.113.7:/api/auth/signin"}, denied.keys)

	// a broken backend must not lock users out
	assert.Equal(t, http.StatusNoContent, serve(&fakeLimiter{err: errors.New("redis down")}).Code)
}

func TestNormalize(t *testing.T) {
	var gotPath, gotScheme, gotHost string
	handler := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotScheme, gotHost = r.URL.Path, RequestScheme(r), r.Host
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/clients/getAll/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "crm.example.com")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "/api/clients/getAll", gotPath)
	assert.Equal(t, "https", gotScheme)
	assert.Equal(t, "crm.example.com", gotHost)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "/dashboard/", gotPath)
	assert.Equal(t, "http", gotScheme)
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		status      int
	}{
		{"json body", http.MethodPost, `{}`, "application/json; charset=utf-8", http.StatusNoContent},
		{"bodiless post", http.MethodPost, "", "", http.StatusNoContent},
		{"form body", http.MethodPost, "a=b", "application/x-www-form-urlencoded", http.StatusBadRequest},
		{"body without type", http.MethodPost, `{}`, "", http.StatusBadRequest},
		{"get is not checked", http.MethodGet, "", "text/plain", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	Recovery(&config.Config{Environment: "production"})(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")

	rec = httptest.NewRecorder()
	Recovery(&config.Config{Environment: "development"})(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestCustomLoggerRecordsCaller(t *testing.T) {
	jwtService := utils.NewJWTService("secret")
	access, _, _, err := jwtService.GenerateTokenPair("user-9")
	require.NoError(t, err)

	var seen *callerHolder
	inner := AuthMiddleware(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(callerContextKey).(*callerHolder)
	}))
	handler := CustomLogger(&config.Config{Environment: "production"})(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "user-9", seen.userID)
}

func TestCORSCredentials(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	rec := httptest.NewRecorder()
	CORS(&config.Config{AllowedOrigins: []string{"https://crm.example.com"}})(ok).ServeHTTP(rec, req)
	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	CORS(&config.Config{AllowedOrigins: []string{"*"}})(ok).ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
