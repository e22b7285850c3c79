package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/license"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *database.MemoryStore
	licenses *license.Service
	svc      *Service

	mu     sync.Mutex
	now    time.Time
	events []events.EventType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: database.NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	bus := events.NewSyncEventBus()
	bus.SubscribeAll(func(e events.Event) {
		f.mu.Lock()
		f.events = append(f.events, e.Type)
		f.mu.Unlock()
	})

	f.licenses = license.NewService(f.store, license.DefaultConfig(),
		license.WithClock(f.clock),
		license.WithPublisher(bus),
		license.WithLogger(logging.Nop()))

	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"
	cfg.BcryptCost = 4
	svc, err := NewService(f.store, f.licenses, cfg, nil, bus)
	require.NoError(t, err)
	f.svc = svc

	// id 1 is the superadmin
	_, _, err = EnsureAdmin(f.ctx, f.store, svc.Passwords(), "root@example.com", "rootpass")
	require.NoError(t, err)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) published() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.EventType(nil), f.events...)
}

func (f *fixture) register(email, deviceID string) *AuthResponse {
	f.t.Helper()
	resp, err := f.svc.Register(f.ctx, RegisterRequest{Email: email, Password: "secret1", DeviceID: deviceID})
	require.NoError(f.t, err)
	return resp
}
