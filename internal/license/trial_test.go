package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

func TestRegisterTrialOncePerDevice(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	alice := f.user("alice@example.com", false)
	bob := f.user("bob@example.com", false)
	trials := f.svc.Trials()

	device, err := trials.RegisterTrial(f.ctx, alice.ID, "dev-1", "")
	require.NoError(t, err)
	assert.Equal(t, database.PlatformAndroid, device.Platform)
	assert.Equal(t, f.clock(), device.TrialStartedAt)
	assert.Equal(t, f.clock().Add(database.Days(3)), device.TrialExpiresAt)

	f.advance(database.Days(10))

	_, err = trials.RegisterTrial(f.ctx, bob.ID, "dev-1", "android")
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, true, appErr.Details["trial_used"])

	_, err = trials.RegisterTrial(f.ctx, alice.ID, "dev-1", "android")
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)

	devices, err := f.store.DevicesByUser(f.ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, device.TrialExpiresAt, devices[0].TrialExpiresAt)

	bobDevices, err := f.store.DevicesByUser(f.ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobDevices)

	// the same identifier on another platform is a different device
	_, err = trials.RegisterTrial(f.ctx, bob.ID, "dev-1", "web")
	assert.NoError(t, err)
}

func TestObserveDeviceGrantsNoTime(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.user("u@example.com", false)
	trials := f.svc.Trials()

	inserted, err := trials.ObserveDevice(f.ctx, u.ID, "dev-9", "web")
	require.NoError(t, err)
	assert.True(t, inserted)

	status, err := f.svc.Status(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, status.Status)

	used, err := trials.CheckDeviceUsed(f.ctx, "dev-9", "web")
	require.NoError(t, err)
	assert.True(t, used)

	_, err = trials.RegisterTrial(f.ctx, u.ID, "dev-9", "web")
	assert.ErrorIs(t, err, ErrTrialAlreadyUsed)

	inserted, err = trials.ObserveDevice(f.ctx, u.ID, "dev-9", "web")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestTrialStatusReportsHours(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.user("u@example.com", false)
	_, err := f.svc.Trials().RegisterTrial(f.ctx, u.ID, "dev-1", "android")
	require.NoError(t, err)

	f.advance(database.Days(1) + 5*time.Hour)

	status, err := f.svc.Status(f.ctx, u)
	require.NoError(t, err)
	assert.Equal(t, StatusTrial, status.Status)
	assert.Equal(t, 1, status.DaysRemaining)
	require.NotNil(t, status.HoursRemaining)
	assert.Equal(t, 19, *status.HoursRemaining)
}

func TestNormalizeDevice(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		platform string
		wantErr  bool
	}{
		{"defaults platform", "abc", "", false},
		{"uppercase platform", "abc", "WEB", false},
		{"missing id", "  ", "web", true},
		{"unknown platform", "abc", "ios", true},
		{"id too long", strings.Repeat("x", MaxDeviceIDLength+1), "web", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NormalizeDevice(tt.deviceID, tt.platform)
			if tt.wantErr {
				assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckDeviceUsedUnknown(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	used, err := f.svc.Trials().CheckDeviceUsed(f.ctx, "never-seen", "android")
	require.NoError(t, err)
	assert.False(t, used)
}

func TestCheckDeviceUsedUnlistedPlatform(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	used, err := f.svc.Trials().CheckDeviceUsed(f.ctx, "tablet-1", "ios")
	require.NoError(t, err)
	assert.False(t, used)

	_, err = f.svc.Trials().CheckDeviceUsed(f.ctx, " ", "ios")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
