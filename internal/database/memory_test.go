package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s Store, email string) *User {
	t.Helper()
	u := &User{Email: email, PasswordHash: "x", IsActive: true}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "a@example.com")

	err := s.CreateUser(context.Background(), &User{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStoreWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		seedUser(t, tx, "rolled@example.com")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	u, err := s.UserByEmail(ctx, "rolled@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestMemoryStoreNestedTxJoins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.WithTx(ctx, func(tx Store) error {
		return tx.WithTx(ctx, func(inner Store) error {
			seedUser(t, inner, "nested@example.com")
			return nil
		})
	})
	require.NoError(t, err)

	u, err := s.UserByEmail(ctx, "nested@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestMemoryStoreRollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	inTx := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.WithTx(ctx, func(tx Store) error {
			if err := tx.CreateUser(ctx, &User{Email: "tx@example.com", PasswordHash: "x"}); err != nil {
				return err
			}
			close(inTx)
			<-release
			return boom
		})
	}()
	<-inTx

	writesDone := make(chan error, 1)
	go func() {
		if err := s.CreateUser(ctx, &User{Email: "outside@example.com", PasswordHash: "x", IsActive: true}); err != nil {
			writesDone <- err
			return
		}
		_, err := s.ObserveDevice(ctx, &Device{UserID: 1, DeviceID: "dev-1", Platform: PlatformAndroid, TrialStartedAt: now, TrialExpiresAt: now.Add(Days(3))})
		writesDone <- err
	}()

	close(release)
	assert.ErrorIs(t, <-txDone, boom)
	require.NoError(t, <-writesDone)

	u, err := s.UserByEmail(ctx, "outside@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u)

	used, err := s.DeviceExists(ctx, "dev-1", PlatformAndroid)
	require.NoError(t, err)
	assert.True(t, used)

	rolled, err := s.UserByEmail(ctx, "tx@example.com")
	require.NoError(t, err)
	assert.Nil(t, rolled)
}

func TestMemoryStoreTxWritesHiddenUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.WithTx(ctx, func(tx Store) error {
		seedUser(t, tx, "pending@example.com")
		u, err := s.UserByEmail(ctx, "pending@example.com")
		require.NoError(t, err)
		assert.Nil(t, u)
		return nil
	})
	require.NoError(t, err)

	u, err := s.UserByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestMemoryStoreInsertKeysIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertKeys(ctx, []*ActivationKey{{KeyCode: "AAAA-AAAA-AAAA-AAAA", DurationDays: 1, Status: KeyStatusAvailable}}))

	err := s.InsertKeys(ctx, []*ActivationKey{
		{KeyCode: "BBBB-BBBB-BBBB-BBBB", DurationDays: 1, Status: KeyStatusAvailable},
		{KeyCode: "AAAA-AAAA-AAAA-AAAA", DurationDays: 1, Status: KeyStatusAvailable},
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	exists, err := s.KeyCodeExists(ctx, "BBBB-BBBB-BBBB-BBBB")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	notes := "original"
	require.NoError(t, s.InsertKeys(ctx, []*ActivationKey{{KeyCode: "CCCC-CCCC-CCCC-CCCC", DurationDays: 1, Status: KeyStatusAvailable, Notes: &notes}}))

	k, err := s.KeyByCode(ctx, "CCCC-CCCC-CCCC-CCCC", false)
	require.NoError(t, err)
	*k.Notes = "mutated"

	again, err := s.KeyByCode(ctx, "CCCC-CCCC-CCCC-CCCC", false)
	require.NoError(t, err)
	assert.Equal(t, "original", *again.Notes)
}

func TestMemoryStoreDevices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, "d@example.com")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d := &Device{UserID: u.ID, DeviceID: "dev-1", Platform: PlatformAndroid, TrialStartedAt: now, TrialExpiresAt: now.Add(Days(3))}
	require.NoError(t, s.InsertDevice(ctx, d))

	err := s.InsertDevice(ctx, &Device{UserID: u.ID, DeviceID: "dev-1", Platform: PlatformAndroid})
	assert.ErrorIs(t, err, ErrDuplicate)

	inserted, err := s.ObserveDevice(ctx, &Device{UserID: 99, DeviceID: "dev-1", Platform: PlatformAndroid, TrialStartedAt: now, TrialExpiresAt: now})
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.ObserveDevice(ctx, &Device{UserID: u.ID, DeviceID: "dev-1", Platform: PlatformWeb, TrialStartedAt: now, TrialExpiresAt: now})
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := s.ExpireTrials(ctx, u.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	devices, err := s.DevicesByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, now.Add(time.Hour), devices[0].TrialExpiresAt)
}

func TestMemoryStoreListUsersHidesSuperadmin(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedUser(t, s, "root@example.com")
	seedUser(t, s, "alice@example.com")
	seedUser(t, s, "bob@example.com")

	users, total, err := s.ListUsers(ctx, UserFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, u := range users {
		assert.NotEqual(t, SuperAdminID, u.ID)
	}

	users, total, err = s.ListUsers(ctx, UserFilter{Search: "ALI"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "alice@example.com", users[0].Email)
}
