package license

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
)

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)

		assert.Len(t, code, 19)
		assert.True(t, ValidCode(code), code)
		assert.False(t, strings.ContainsAny(code, "0O1IL"), code)
	}
}

func TestCodeAlphabet(t *testing.T) {
	assert.Len(t, CodeAlphabet, 31)
	assert.False(t, strings.ContainsAny(CodeAlphabet, "0O1IL"))
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"  abcd-efgh-jkmn-pqrs ", "ABCD-EFGH-JKMN-PQRS", true},
		{"ABCD-EFGH-JKMN-PQR2", "ABCD-EFGH-JKMN-PQR2", true},
		{"ABCD-EFGH-JKMN-PQR0", "ABCD-EFGH-JKMN-PQR0", false},
		{"ABCDEFGHJKMNPQRS", "ABCDEFGHJKMNPQRS", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeCode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ValidCode(got))
		})
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	user := &database.User{ID: 7, Email: "u@example.com", IsActive: true}
	admin := &database.User{ID: 8, IsAdmin: true}

	activated := func(id int64, userID int64, expires time.Time) database.ActivationKey {
		email := "u@example.com"
		activatedAt := expires.Add(-database.Days(30))
		return database.ActivationKey{
			ID: id, KeyCode: "KEY" + string(rune('A'+id)), Status: database.KeyStatusActivated,
			UserID: &userID, ActivatedEmail: &email, ActivatedAt: &activatedAt, ExpiresAt: &expires,
		}
	}
	trial := func(id int64, userID int64, expires time.Time) database.Device {
		return database.Device{ID: id, UserID: userID, DeviceID: "dev", Platform: "android", TrialStartedAt: now, TrialExpiresAt: expires}
	}

	t.Run("admin is always active", func(t *testing.T) {
		ent := Evaluate(admin, nil, nil, now)
		assert.Equal(t, StatusActive, ent.Status)
		assert.Equal(t, AdminDaysRemaining, ent.DaysRemaining)
	})

	t.Run("live key wins over live trial", func(t *testing.T) {
		keys := []database.ActivationKey{activated(1, 7, now.Add(36*time.Hour))}
		devices := []database.Device{trial(1, 7, now.Add(48*time.Hour))}

		ent := Evaluate(user, keys, devices, now)
		assert.Equal(t, StatusActive, ent.Status)
		assert.Equal(t, keys[0].KeyCode, ent.KeyCode)
		assert.Equal(t, "u@example.com", ent.Email)
		assert.Equal(t, 1, ent.DaysRemaining)
		assert.Nil(t, ent.HoursRemaining)
	})

	t.Run("expired key falls through to trial", func(t *testing.T) {
		keys := []database.ActivationKey{activated(1, 7, now.Add(-time.Second))}
		devices := []database.Device{trial(1, 7, now.Add(50*time.Hour))}

		ent := Evaluate(user, keys, devices, now)
		assert.Equal(t, StatusTrial, ent.Status)
		assert.Equal(t, 2, ent.DaysRemaining)
		require.NotNil(t, ent.HoursRemaining)
		assert.Equal(t, 2, *ent.HoursRemaining)
	})

	t.Run("keys of other users are ignored", func(t *testing.T) {
		keys := []database.ActivationKey{activated(1, 99, now.Add(time.Hour))}
		ent := Evaluate(user, keys, nil, now)
		assert.Equal(t, StatusExpired, ent.Status)
		assert.Equal(t, 0, ent.DaysRemaining)
	})

	t.Run("trial expiring exactly now is expired", func(t *testing.T) {
		ent := Evaluate(user, nil, []database.Device{trial(1, 7, now)}, now)
		assert.Equal(t, StatusExpired, ent.Status)
	})

	t.Run("tie-break prefers latest expiry then lowest id", func(t *testing.T) {
		later := now.Add(database.Days(20))
		keys := []database.ActivationKey{
			activated(3, 7, now.Add(database.Days(10))),
			activated(5, 7, later),
			activated(4, 7, later),
		}
		ent := Evaluate(user, keys, nil, now)
		assert.Equal(t, keys[2].KeyCode, ent.KeyCode)
		assert.Equal(t, 20, ent.DaysRemaining)
	})
}

func TestDaysUntilFloorsAndClamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, daysUntil(now.Add(-time.Hour), now))
	assert.Equal(t, 0, daysUntil(now.Add(23*time.Hour), now))
	assert.Equal(t, 1, daysUntil(now.Add(47*time.Hour), now))
	assert.Equal(t, 365, daysUntil(now.Add(database.Days(365)), now))
}
