package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/config"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
)

type cliFixture struct {
	store *database.MemoryStore
}

func newCLIFixture() *cliFixture {
	return &cliFixture{store: database.NewMemoryStore()}
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	loadConfig := func() (*config.Config, error) {
		cfg := config.Default()
		cfg.DatabaseConfig.Driver = "memory"
		cfg.AuthConfig.BcryptCost = 4
		return cfg, nil
	}
	open := func(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
		return f.store, func() {}, nil
	}

	cmd := newRootCommand(loadConfig, open)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCreateAdminCommand(t *testing.T) {
	f := newCLIFixture()

	out, _, err := f.run(t, "create-admin", "--email", "Root@Example.com", "--password", "rootpass")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin root@example.com created (id 1)")

	user, err := f.store.UserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, user.IsAdmin)

	out, _, err = f.run(t, "create-admin", "--email", "root@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "promoted to admin")

	_, _, err = f.run(t, "create-admin", "--email", "new@example.com")
	assert.Error(t, err)

	_, _, err = f.run(t, "create-admin")
	assert.Error(t, err)
}

func TestGenerateAndListKeysCommands(t *testing.T) {
	f := newCLIFixture()
	_, _, err := f.run(t, "create-admin", "--email", "root@example.com", "--password", "rootpass")
	require.NoError(t, err)

	out, summary, err := f.run(t, "generate-keys", "-n", "3", "--days", "30", "--sold-to", "Acme", "--price", "20", "--created-by", "root@example.com")
	require.NoError(t, err)
	codes := strings.Fields(out)
	require.Len(t, codes, 3)
	for _, code := range codes {
		assert.True(t, license.ValidCode(code), code)
	}
	assert.Contains(t, summary, "3 key(s) generated, 30 days, status sold")

	key, err := f.store.KeyByCode(context.Background(), codes[0], false)
	require.NoError(t, err)
	require.NotNil(t, key)
	require.NotNil(t, key.CreatedBy)
	assert.Equal(t, int64(1), *key.CreatedBy)
	assert.Equal(t, 20.0, *key.SoldPrice)

	out, _, err = f.run(t, "generate-keys")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 1)

	_, _, err = f.run(t, "generate-keys", "--created-by", "nobody@example.com")
	assert.Error(t, err)

	out, _, err = f.run(t, "list-keys", "--status", "sold")
	require.NoError(t, err)
	assert.Contains(t, out, "CODE")
	for _, code := range codes {
		assert.Contains(t, out, code)
	}
	assert.Contains(t, out, "page 1 of 1, 3 key(s)")
}

func TestMigrateCommand(t *testing.T) {
	f := newCLIFixture()
	out, _, err := f.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations applied (memory)")
}
