package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func (f *fixture) router() *gin.Engine {
	r := gin.New()
	mw := Middleware(f.svc.GetJWTManager(), f.store, true)
	NewHandlers(f.svc).RegisterRoutes(r.Group("/api/auth"), mw)
	r.GET("/admin-only", mw, RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	return r
}

func do(t *testing.T, r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestAuthHandlers(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	w, body := do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "web@example.com", "password": "secret1", "device_id": "browser-1", "platform": "WEB",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)
	assert.Equal(t, "trial", body["activation"].(map[string]interface{})["status"])
	assert.NotContains(t, body["user"], "password_hash")

	w, body = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "other@example.com", "password": "secret1", "device_id": "browser-1", "platform": "web",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TRIAL_ALREADY_USED", body["error"])
	assert.Equal(t, true, body["trial_used"])

	w, body = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "x@example.com", "password": "secret1", "device_id": "d", "platform": "ios",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])

	w, body = do(t, r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "x@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "device_id is required", body["message"])

	w, body = do(t, r, http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web@example.com", body["user"].(map[string]interface{})["email"])

	w, body = do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "web@example.com", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", body["error"])

	// refresh accepts the token as a Bearer header
	w, body = do(t, r, http.MethodPost, "/api/auth/refresh", refresh, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["access_token"])

	w, _ = do(t, r, http.MethodPost, "/api/auth/logout", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = do(t, r, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_REVOKED", body["error"])
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	r := f.router()
	client := f.register("client@example.com", "dev-1")

	admin, err := f.svc.Login(f.ctx, LoginRequest{Email: "root@example.com", Password: "rootpass"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"missing token", "/api/auth/me", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", "/api/auth/me", "abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"refresh token as access", "/api/auth/me", client.RefreshToken, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"client on admin route", "/admin-only", client.AccessToken, http.StatusForbidden, "FORBIDDEN"},
		{"admin on admin route", "/admin-only", admin.AccessToken, http.StatusOK, ""},
		{"query token", "/admin-only?token=" + admin.AccessToken, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, r, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["error"])
			}
		})
	}

	_, err = f.svc.UpdateUser(f.ctx, client.User.ID, UpdateUserRequest{IsActive: ptr(false)})
	require.NoError(t, err)
	w, body := do(t, r, http.MethodGet, "/api/auth/me", client.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", body["error"])
}
