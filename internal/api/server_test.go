package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/auth"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/cache"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/catalog"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t       *testing.T
	store   *database.MemoryStore
	server  *Server
	metrics *metrics.Manager

	mu  sync.Mutex
	now time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		t:     t,
		store: database.NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	bus := events.NewSyncEventBus()
	licenses := license.NewService(ts.store, license.DefaultConfig(),
		license.WithClock(ts.clock),
		license.WithPublisher(bus),
		license.WithLogger(logging.Nop()))

	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = "test-secret"
	authCfg.BcryptCost = 4
	denylist := cache.NewLocalDenylist()
	denylist.SetClock(ts.clock)
	authService, err := auth.NewService(ts.store, licenses, authCfg, denylist, bus)
	require.NoError(t, err)

	_, _, err = auth.EnsureAdmin(context.Background(), ts.store, authService.Passwords(), "root@example.com", "rootpass")
	require.NoError(t, err)

	ts.metrics = metrics.NewManager(ts.store)
	ts.metrics.Subscribe(bus)

	ts.server = NewServer(ServerConfig{MetricsPath: "/metrics"}, Services{
		Store:    ts.store,
		EventBus: bus,
		Licenses: licenses,
		Auth:     authService,
		Catalog:  catalog.NewService(ts.store, nil, bus),
		Metrics:  ts.metrics,
		Denylist: denylist,
	})
	t.Cleanup(ts.server.hub.Stop)
	return ts
}

func (ts *testServer) clock() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

func (ts *testServer) advance(d time.Duration) {
	ts.mu.Lock()
	ts.now = ts.now.Add(d)
	ts.mu.Unlock()
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) register(email, deviceID string) string {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": email, "password": "secret1", "device_id": deviceID,
	})
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(ts.t, w)["access_token"].(string)
}

func (ts *testServer) adminToken() string {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "root@example.com", "password": "rootpass"})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())
	return decode(ts.t, w)["access_token"].(string)
}

func (ts *testServer) generate(admin string, body gin.H) []interface{} {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/api/admin/keys", admin, body)
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(ts.t, w)["keys"].([]interface{})
}

func field(v interface{}, name string) interface{} {
	return v.(map[string]interface{})[name]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "local", body["cache"])

	ts.store.SetHealthError(errors.New("connection refused"))
	w = ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["database"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["error"])
}

func TestActivationFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken()
	user := ts.register("user@example.com", "phone-1")

	w := ts.do(http.MethodGet, "/api/activation/status", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trial", decode(t, w)["status"])

	w = ts.do(http.MethodGet, "/api/activation/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	keys := ts.generate(admin, gin.H{"count": 2, "duration_days": 30})
	require.Len(t, keys, 2)
	code := field(keys[0], "key_code").(string)

	w = ts.do(http.MethodPost, "/api/activation/activate", user, gin.H{"key_code": strings.ToLower(code)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	activation := decode(t, w)["activation"]
	assert.Equal(t, "active", field(activation, "status"))
	assert.Equal(t, code, field(activation, "key_code"))
	assert.Equal(t, "user@example.com", field(activation, "email"))
	assert.EqualValues(t, 30, field(activation, "days_remaining"))

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"same key again", gin.H{"key_code": code}, http.StatusConflict, "KEY_ALREADY_ACTIVATED"},
		{"second key while active", gin.H{"key_code": field(keys[1], "key_code")}, http.StatusConflict, "ACTIVE_KEY_EXISTS"},
		{"malformed code", gin.H{"key_code": "ABCD-0000-EFGH-JKMN"}, http.StatusNotFound, "INVALID_KEY"},
		{"unknown code", gin.H{"key_code": "ABCD-EFGH-JKMN-PQRS"}, http.StatusNotFound, "INVALID_KEY"},
		{"missing code", gin.H{}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/activation/activate", user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["error"])
		})
	}

	w = ts.do(http.MethodGet, "/api/activation/status", user, nil)
	status := decode(t, w)
	assert.Equal(t, "active", status["status"])
	assert.EqualValues(t, 30, status["days_remaining"])

	expected := `
# HELP license_key_redemptions_total Activation key redemption attempts, by result
# TYPE license_key_redemptions_total counter
license_key_redemptions_total{result="active_key_exists"} 1
license_key_redemptions_total{result="invalid_key"} 2
license_key_redemptions_total{result="key_already_activated"} 1
license_key_redemptions_total{result="success"} 1
license_key_redemptions_total{result="validation_error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(ts.metrics.GetRegistry(), strings.NewReader(expected), "license_key_redemptions_total"))
}

func TestCheckDevice(t *testing.T) {
	ts := newTestServer(t)
	ts.register("user@example.com", "phone-1")

	tests := []struct {
		name   string
		body   gin.H
		status int
		used   bool
	}{
		{"registered device", gin.H{"device_id": "phone-1"}, http.StatusOK, true},
		{"explicit platform", gin.H{"device_id": "phone-1", "platform": "android"}, http.StatusOK, true},
		{"other platform", gin.H{"device_id": "phone-1", "platform": "web"}, http.StatusOK, false},
		{"unknown device", gin.H{"device_id": "tablet"}, http.StatusOK, false},
		{"unlisted platform", gin.H{"device_id": "phone-1", "platform": "ios"}, http.StatusOK, false},
		{"missing device", gin.H{"platform": "web"}, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/activation/check-device", "", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.used, decode(t, w)["trial_used"])
			}
		})
	}

	w := ts.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"email": "other@example.com", "password": "secret1", "device_id": "phone-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "TRIAL_ALREADY_USED", body["error"])
	assert.Equal(t, true, body["trial_used"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.register("user@example.com", "phone-1")

	for _, path := range []string{"/api/admin/stats", "/api/admin/users", "/api/admin/keys"} {
		w := ts.do(http.MethodGet, path, user, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "FORBIDDEN", decode(t, w)["error"])

		w = ts.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAdminKeys(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken()

	w := ts.do(http.MethodPost, "/api/admin/keys/generate", admin, gin.H{
		"count": 3, "sold_to_name": "Acme", "sold_price": 15.5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "3 key(s) generated", body["message"])
	sold := body["keys"].([]interface{})
	for _, k := range sold {
		assert.Equal(t, "sold", field(k, "status"))
		assert.NotNil(t, field(k, "sold_at"))
		assert.Equal(t, 15.5, field(k, "sold_price"))
	}

	available := ts.generate(admin, gin.H{})
	require.Len(t, available, 1)
	availableID := int64(field(available[0], "id").(float64))
	assert.EqualValues(t, 365, field(available[0], "duration_days"))

	w = ts.do(http.MethodGet, "/api/admin/keys?status=sold&per_page=2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 3, page["total"])
	assert.EqualValues(t, 2, page["pages"])
	assert.Len(t, page["keys"], 2)

	w = ts.do(http.MethodGet, "/api/admin/keys?search=acme", admin, nil)
	assert.EqualValues(t, 3, decode(t, w)["total"])

	path := fmt.Sprintf("/api/admin/keys/%d", availableID)
	w = ts.do(http.MethodPut, path, admin, gin.H{"status": "sold", "sold_to_email": "buyer@example.com", "notes": "invoice 7"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	key := decode(t, w)
	assert.Equal(t, "sold", key["status"])
	assert.Equal(t, "buyer@example.com", key["sold_to_email"])
	assert.Equal(t, "invoice 7", key["notes"])

	w = ts.do(http.MethodPut, path, admin, gin.H{"status": "activated"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["error"])

	w = ts.do(http.MethodPut, path, admin, gin.H{"status": "revoked"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "revoked", decode(t, w)["status"])

	w = ts.do(http.MethodPut, path, admin, gin.H{"status": "sold"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, w)["error"])

	w = ts.do(http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "KEY_NOT_FOUND", decode(t, w)["error"])

	w = ts.do(http.MethodGet, "/api/admin/keys/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken()
	user := ts.register("user@example.com", "phone-1")
	ts.register("other@example.com", "phone-2")

	w := ts.do(http.MethodGet, "/api/admin/users?search=user", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	require.EqualValues(t, 1, page["total"])
	listed := page["users"].([]interface{})[0]
	assert.Equal(t, "trial", field(listed, "activation_status"))
	userID := int64(field(listed, "id").(float64))

	w = ts.do(http.MethodGet, "/api/admin/users?status=trial", admin, nil)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = ts.do(http.MethodGet, "/api/admin/users/1", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", decode(t, w)["error"])

	// extend without an activated key
	extendPath := fmt.Sprintf("/api/admin/users/%d/extend", userID)
	w = ts.do(http.MethodPost, extendPath, admin, gin.H{"days": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_ACTIVATED_KEY", decode(t, w)["error"])

	keys := ts.generate(admin, gin.H{"duration_days": 30})
	keyID := field(keys[0], "id")

	w = ts.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/assign-key", userID), admin, gin.H{"key_id": keyID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "activated", field(decode(t, w)["key"], "status"))

	w = ts.do(http.MethodPost, extendPath, admin, gin.H{"days": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "License extended by 10 days", body["message"])
	assert.EqualValues(t, 40, field(body["key"], "duration_days"))

	w = ts.do(http.MethodPost, extendPath, admin, gin.H{"days": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/admin/users/%d", userID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, "active", field(detail["user"], "activation_status"))
	assert.Len(t, detail["devices"], 1)
	assert.Len(t, detail["activation_keys"], 1)

	w = ts.do(http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 1, stats["active_keys"])
	assert.EqualValues(t, 2, stats["active_trials"])
	assert.Len(t, stats["recent_users"], 2)

	w = ts.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d", userID), admin, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = ts.do(http.MethodGet, "/api/activation/status", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCOUNT_DISABLED", decode(t, w)["error"])

	w = ts.do(http.MethodPut, "/api/admin/users/1", admin, gin.H{"is_admin": false})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrialExpiresOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	user := ts.register("user@example.com", "phone-1")

	ts.advance(database.Days(3))

	w := ts.do(http.MethodGet, "/api/activation/status", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "expired", status["status"])
	assert.EqualValues(t, 0, status["days_remaining"])
}

func TestProductsFlow(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.register("shop@example.com", "phone-1")
	stranger := ts.register("other@example.com", "phone-2")

	w := ts.do(http.MethodPost, "/api/products/databases", owner, gin.H{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/products/databases", owner, gin.H{"name": "Main", "description": "front shop"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dbID := int64(decode(t, w)["id"].(float64))
	base := fmt.Sprintf("/api/products/databases/%d", dbID)

	w = ts.do(http.MethodPost, base+"/products", owner, `[
		{"name_kz": "Нан", "name_full": "Bread", "barcode": "4870001", "price": 150},
		{"name_kz": "skip me", "barcode": "  "}
	]`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "1 product(s) added", decode(t, w)["message"])

	w = ts.do(http.MethodPost, base+"/products", owner, gin.H{"name_kz": "Ай", "name_full": "Milk", "barcode": "4870002", "price": 300.5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pid := int64(field(decode(t, w)["products"].([]interface{})[0], "id").(float64))

	w = ts.do(http.MethodGet, base+"/products", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode(t, w)
	assert.EqualValues(t, 2, listing["total"])
	assert.Equal(t, "Ай", field(listing["products"].([]interface{})[0], "name_kz"))

	w = ts.do(http.MethodPut, fmt.Sprintf("%s/products/%d", base, pid), owner, gin.H{"price": 310})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 310.0, decode(t, w)["price"])

	w = ts.do(http.MethodGet, base+"/products", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCESS_DENIED", decode(t, w)["error"])

	w = ts.do(http.MethodGet, "/api/products/databases/999/products", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "DATABASE_NOT_FOUND", decode(t, w)["error"])

	w = ts.do(http.MethodPost, base+"/import-csv", owner, gin.H{
		"csv_data":    "#;Name;NameKZ;Barcode;Price\n1;Tea;Шай;4.87E+12;99,9\n",
		"replace_all": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = ts.do(http.MethodPost, base+"/import-csv", owner, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, base+"/export-csv", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=Main.csv", w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Body.String(), "#;Name;NameKZ;Barcode;Price")
	assert.Contains(t, w.Body.String(), "4870000000000")

	w = ts.do(http.MethodGet, base+"/export-xlsx", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = ts.do(http.MethodGet, "/api/products/databases", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dbs []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dbs))
	require.Len(t, dbs, 1)
	assert.Equal(t, "Main", dbs[0]["name"])

	w = ts.do(http.MethodDelete, base, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, base+"/products", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecodeProductInputs(t *testing.T) {
	inputs, err := decodeProductInputs([]byte(` {"barcode": "1"} `))
	require.NoError(t, err)
	assert.Len(t, inputs, 1)

	inputs, err = decodeProductInputs([]byte(`[{"barcode": "1"}, {"barcode": "2"}]`))
	require.NoError(t, err)
	assert.Len(t, inputs, 2)

	_, err = decodeProductInputs(nil)
	assert.Error(t, err)
	_, err = decodeProductInputs([]byte(`[1, 2`))
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/health", "", nil)

	w := ts.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "license_users")
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestAdminEventFeed(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.adminToken()
	user := ts.register("user@example.com", "phone-1")

	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/admin/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+user, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+admin, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() map[string]interface{} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, "CONNECTED", readEvent()["type"])
	require.Eventually(t, func() bool { return ts.server.Hub().GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.generate(admin, gin.H{"count": 1})
	msg := readEvent()
	assert.Equal(t, string(events.EventKeyGenerated), msg["type"])
}
