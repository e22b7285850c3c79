package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
)

func fakeVault(t *testing.T, reads *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		switch r.URL.Path {
		case "/v1/secret/data/printer-api":
			atomic.AddInt32(reads, 1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"data":{"jwt_secret":"from-vault","db_password":"pg-pass"},"metadata":{"version":3}}}`))
		case "/v1/sys/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReadSecrets(t *testing.T) {
	var reads int32
	srv := fakeVault(t, &reads)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "test-token",
		SecretPath: "secret/data/printer-api",
	})
	require.NoError(t, err)

	secrets, err := c.ReadSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-vault", secrets.JWTSecret)
	assert.Equal(t, "pg-pass", secrets.DatabasePassword)
	assert.Empty(t, secrets.RedisPassword)

	// cached after the first read
	_, err = c.ReadSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reads))

	assert.NoError(t, c.Health(context.Background()))

	cfg := config.Default()
	cfg.RedisConfig.Password = "keep"
	secrets.Apply(cfg)
	assert.Equal(t, "from-vault", cfg.AuthConfig.JWTSecret)
	assert.Equal(t, "pg-pass", cfg.DatabaseConfig.Password)
	assert.Equal(t, "keep", cfg.RedisConfig.Password)
}

func TestLoadInto(t *testing.T) {
	var reads int32
	srv := fakeVault(t, &reads)

	cfg := config.Default()
	require.NoError(t, LoadInto(context.Background(), cfg))
	assert.Equal(t, int32(0), reads)

	cfg.VaultConfig = config.VaultConfig{Enabled: true, Address: srv.URL, Token: "test-token", SecretPath: "secret/data/missing"}
	assert.Error(t, LoadInto(context.Background(), cfg))

	cfg.VaultConfig.SecretPath = "secret/data/printer-api"
	require.NoError(t, LoadInto(context.Background(), cfg))
	assert.Equal(t, "from-vault", cfg.AuthConfig.JWTSecret)
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(config.VaultConfig{})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	secrets, err := c.ReadSecrets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Secrets{}, *secrets)
	assert.NoError(t, c.Health(context.Background()))
}
