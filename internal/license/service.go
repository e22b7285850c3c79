package license

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

const (
	maxBatchAttempts   = 3
	maxCodeRegenerates = 10
)

// Config holds activation and trial policy
type Config struct {
	TrialDurationDays      int
	DefaultKeyDurationDays int
	MaxBatchSize           int
	// AllowStackedActivation lets a user redeem a key while another is still live
	AllowStackedActivation bool
}

// DefaultConfig returns the production policy
func DefaultConfig() Config {
	return Config{
		TrialDurationDays:      3,
		DefaultKeyDurationDays: 365,
		MaxBatchSize:           100,
	}
}

// Service implements the activation key lifecycle and entitlement reads
type Service struct {
	store     database.Store
	cfg       Config
	now       func() time.Time
	publisher events.Publisher
	log       *logging.Logger
	generate  func() (string, error)
	trials    *TrialTracker
}

// Option configures a Service
type Option func(*Service)

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the domain event sink
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithCodeGenerator replaces GenerateCode
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generate = gen }
}

// NewService creates a license service
func NewService(store database.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		publisher: events.NopPublisher{},
		log:       logging.WithComponent("license"),
		generate:  GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxBatchSize < 1 {
		s.cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if s.cfg.DefaultKeyDurationDays < 1 {
		s.cfg.DefaultKeyDurationDays = DefaultConfig().DefaultKeyDurationDays
	}
	s.trials = NewTrialTracker(store, s.cfg.TrialDurationDays, s.now)
	return s
}

// Trials returns the device trial tracker sharing this service's clock and policy
func (s *Service) Trials() *TrialTracker {
	return s.trials
}

// Now returns the service clock reading
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) publish(eventType events.EventType, data map[string]interface{}) {
	s.publisher.Publish(events.Event{Type: eventType, Timestamp: s.now(), Data: data})
}

// ============================================================================
// ENTITLEMENT
// ============================================================================

// Status evaluates the user's entitlement against fresh data
func (s *Service) Status(ctx context.Context, user *database.User) (Entitlement, error) {
	return s.evaluate(ctx, s.store, user, s.now())
}

func (s *Service) evaluate(ctx context.Context, store database.Store, user *database.User, now time.Time) (Entitlement, error) {
	if user.IsAdmin {
		return Evaluate(user, nil, nil, now), nil
	}

	keys, err := store.KeysByUser(ctx, user.ID)
	if err != nil {
		return Entitlement{}, err
	}
	devices, err := store.DevicesByUser(ctx, user.ID)
	if err != nil {
		return Entitlement{}, err
	}
	return Evaluate(user, keys, devices, now), nil
}

// ============================================================================
// GENERATE
// ============================================================================

// GenerateRequest describes a batch of new keys
type GenerateRequest struct {
	Count        int      `json:"count"`
	DurationDays *int     `json:"duration_days"`
	SoldToName   string   `json:"sold_to_name"`
	SoldToEmail  string   `json:"sold_to_email"`
	SoldPrice    *float64 `json:"sold_price"`
	Notes        string   `json:"notes"`
}

// GenerateKeys creates a batch of keys atomically.
// Keys are sold from the start when a buyer name or email is supplied.
func (s *Service) GenerateKeys(ctx context.Context, admin *database.User, req GenerateRequest) ([]database.ActivationKey, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > s.cfg.MaxBatchSize {
		count = s.cfg.MaxBatchSize
	}

	duration := s.cfg.DefaultKeyDurationDays
	if req.DurationDays != nil {
		duration = *req.DurationDays
	}
	if duration < 1 {
		return nil, apperror.Invalid("duration_days must be at least 1")
	}
	if req.SoldPrice != nil && *req.SoldPrice < 0 {
		return nil, apperror.Invalid("sold_price must not be negative")
	}

	now := s.now()
	status := database.KeyStatusAvailable
	var soldAt *time.Time
	soldToName := optionalString(req.SoldToName)
	soldToEmail := optionalString(req.SoldToEmail)
	if soldToName != nil || soldToEmail != nil {
		status = database.KeyStatusSold
		soldAt = &now
	}

	var createdBy *int64
	if admin != nil {
		id := admin.ID
		createdBy = &id
	}

	var keys []*database.ActivationKey
	var err error
	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		keys, err = s.buildBatch(ctx, count)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			k.DurationDays = duration
			k.Status = status
			k.SoldToName = soldToName
			k.SoldToEmail = soldToEmail
			k.SoldAt = soldAt
			k.SoldPrice = req.SoldPrice
			k.Notes = optionalString(req.Notes)
			k.CreatedBy = createdBy
			k.CreatedAt = now
		}

		err = s.store.InsertKeys(ctx, keys)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
		s.log.Warn("Key code collision on insert, regenerating batch", "attempt", attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate unique key codes: %w", err)
	}

	out := make([]database.ActivationKey, len(keys))
	codes := make([]string, len(keys))
	for i, k := range keys {
		out[i] = *k
		codes[i] = k.KeyCode
	}

	s.log.Info("Activation keys generated", "count", len(out), "status", status, "duration_days", duration)
	s.publish(events.EventKeyGenerated, map[string]interface{}{
		"count":         len(out),
		"status":        status,
		"duration_days": duration,
		"key_codes":     codes,
		"created_by":    createdBy,
	})
	return out, nil
}

// buildBatch draws count codes unique within the batch and against the store
func (s *Service) buildBatch(ctx context.Context, count int) ([]*database.ActivationKey, error) {
	seen := make(map[string]bool, count)
	keys := make([]*database.ActivationKey, 0, count)

	for len(keys) < count {
		var code string
		for i := 0; ; i++ {
			if i == maxCodeRegenerates {
				return nil, fmt.Errorf("failed to generate a unique key code after %d tries", i)
			}
			c, err := s.generate()
			if err != nil {
				return nil, err
			}
			if seen[c] {
				continue
			}
			exists, err := s.store.KeyCodeExists(ctx, c)
			if err != nil {
				return nil, err
			}
			if !exists {
				code = c
				break
			}
		}
		seen[code] = true
		keys = append(keys, &database.ActivationKey{KeyCode: code})
	}
	return keys, nil
}

// ============================================================================
// REDEEM
// ============================================================================

// Redeem activates the key with the given code for user.
// The key and user rows stay locked until the activation commits.
func (s *Service) Redeem(ctx context.Context, user *database.User, code string) (*database.ActivationKey, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperror.Invalid("Key code is required")
	}
	if !ValidCode(code) {
		return nil, ErrInvalidKey
	}

	var activated *database.ActivationKey
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		key, err := tx.KeyByCode(ctx, code, true)
		if err != nil {
			return err
		}
		if key == nil {
			return ErrInvalidKey
		}

		switch key.Status {
		case database.KeyStatusAvailable, database.KeyStatusSold:
		case database.KeyStatusActivated:
			return ErrKeyAlreadyActivated
		case database.KeyStatusRevoked:
			return ErrKeyRevoked
		default:
			return ErrKeyInvalidState
		}

		owner, err := tx.LockUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if owner == nil {
			return ErrUserNotFound
		}

		now := s.now()
		if !s.cfg.AllowStackedActivation {
			held, err := tx.KeysByUser(ctx, owner.ID)
			if err != nil {
				return err
			}
			if liveKey(owner.ID, held, now) != nil {
				return ErrActiveKeyExists
			}
		}

		key.Activate(owner, now)
		if err := tx.SaveKey(ctx, key); err != nil {
			return err
		}
		activated = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.KeyContext(ctx, activated.ID, activated.KeyCode).Info("Key activated",
		"user_id", user.ID,
		"expires_at", activated.ExpiresAt)
	s.publish(events.EventKeyActivated, keyEventData(activated))
	return activated, nil
}

// ============================================================================
// ADMIN TRANSITIONS
// ============================================================================

// Extend adds days to the user's activated key.
// A live key is extended from its expiry; a lapsed one restarts at now.
func (s *Service) Extend(ctx context.Context, userID int64, days int) (*database.ActivationKey, error) {
	if userID == database.SuperAdminID {
		return nil, ErrUserNotFound
	}
	if days < 1 {
		return nil, apperror.Invalid("days must be a positive number")
	}

	var extended *database.ActivationKey
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		target, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrUserNotFound
		}

		now := s.now()
		held, err := tx.KeysByUser(ctx, userID)
		if err != nil {
			return err
		}
		candidate := activatedKey(userID, held, now)
		if candidate == nil {
			return ErrNoActivatedKey
		}

		key, err := tx.KeyByID(ctx, candidate.ID, true)
		if err != nil {
			return err
		}
		if key == nil || key.Status != database.KeyStatusActivated {
			return ErrNoActivatedKey
		}

		if key.ExpiresAt != nil && key.ExpiresAt.After(now) {
			expires := key.ExpiresAt.Add(database.Days(days))
			key.ExpiresAt = &expires
			key.DurationDays += days
		} else {
			expires := now.Add(database.Days(days))
			activatedAt := now
			key.ActivatedAt = &activatedAt
			key.ExpiresAt = &expires
			key.DurationDays = days
		}

		if err := tx.SaveKey(ctx, key); err != nil {
			return err
		}
		extended = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.KeyContext(ctx, extended.ID, extended.KeyCode).Info("License extended",
		"user_id", userID,
		"days", days,
		"expires_at", extended.ExpiresAt)
	data := keyEventData(extended)
	data["days"] = days
	s.publish(events.EventLicenseExtended, data)
	return extended, nil
}

// activatedKey chooses which activated key an extension applies to:
// the live key the evaluator would report, else the one that expired last
func activatedKey(userID int64, keys []database.ActivationKey, now time.Time) *database.ActivationKey {
	if k := liveKey(userID, keys, now); k != nil {
		return k
	}

	var best *database.ActivationKey
	for i := range keys {
		k := &keys[i]
		if k.Status != database.KeyStatusActivated || k.UserID == nil || *k.UserID != userID {
			continue
		}
		if best == nil || best.ExpiresAt == nil ||
			(k.ExpiresAt != nil && k.ExpiresAt.After(*best.ExpiresAt)) {
			best = k
		}
	}
	return best
}

// AssignKey force-redeems an available or sold key onto a user.
// It bypasses the stacked-activation policy.
func (s *Service) AssignKey(ctx context.Context, userID, keyID int64) (*database.ActivationKey, error) {
	if userID == database.SuperAdminID {
		return nil, ErrUserNotFound
	}
	if keyID <= 0 {
		return nil, apperror.Invalid("key_id is required")
	}

	var assigned *database.ActivationKey
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		exists, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if exists == nil {
			return ErrUserNotFound
		}

		key, err := tx.KeyByID(ctx, keyID, true)
		if err != nil {
			return err
		}
		if key == nil {
			return ErrKeyNotFound
		}
		if key.Status != database.KeyStatusAvailable && key.Status != database.KeyStatusSold {
			return ErrKeyInvalidState.WithMessage("Key is already used or revoked")
		}

		target, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrUserNotFound
		}

		key.Activate(target, s.now())
		if err := tx.SaveKey(ctx, key); err != nil {
			return err
		}
		assigned = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.KeyContext(ctx, assigned.ID, assigned.KeyCode).Info("Key assigned", "user_id", userID)
	s.publish(events.EventKeyAssigned, keyEventData(assigned))
	return assigned, nil
}

// UpdateKeyRequest carries the editable key fields; nil means unchanged
type UpdateKeyRequest struct {
	Status       *string  `json:"status"`
	SoldToName   *string  `json:"sold_to_name"`
	SoldToEmail  *string  `json:"sold_to_email"`
	SoldPrice    *float64 `json:"sold_price"`
	Notes        *string  `json:"notes"`
	DurationDays *int     `json:"duration_days"`
}

// UpdateKey applies an admin edit. Status accepts "revoked" and "sold" only.
func (s *Service) UpdateKey(ctx context.Context, keyID int64, req UpdateKeyRequest) (*database.ActivationKey, error) {
	var newStatus database.KeyStatus
	if req.Status != nil {
		newStatus = database.KeyStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if newStatus != database.KeyStatusRevoked && newStatus != database.KeyStatusSold {
			return nil, apperror.Invalid("status must be 'revoked' or 'sold'")
		}
	}
	if req.DurationDays != nil && *req.DurationDays < 1 {
		return nil, apperror.Invalid("duration_days must be at least 1")
	}
	if req.SoldPrice != nil && *req.SoldPrice < 0 {
		return nil, apperror.Invalid("sold_price must not be negative")
	}

	var (
		updated     *database.ActivationKey
		revokedFrom *int64
		revoked     bool
		expired     int64
	)
	err := s.store.WithTx(ctx, func(tx database.Store) error {
		key, err := tx.KeyByID(ctx, keyID, true)
		if err != nil {
			return err
		}
		if key == nil {
			return ErrKeyNotFound
		}

		now := s.now()
		switch newStatus {
		case database.KeyStatusRevoked:
			if key.Status != database.KeyStatusRevoked {
				if key.UserID != nil {
					revokedFrom = key.UserID
					if expired, err = tx.ExpireTrials(ctx, *key.UserID, now); err != nil {
						return err
					}
				}
				key.Status = database.KeyStatusRevoked
				key.ClearRedemption()
				revoked = true
			}
		case database.KeyStatusSold:
			switch key.Status {
			case database.KeyStatusAvailable:
				key.Status = database.KeyStatusSold
				key.SoldAt = &now
			case database.KeyStatusSold:
			default:
				return ErrInvalidTransition
			}
		}

		if req.SoldToName != nil {
			key.SoldToName = optionalString(*req.SoldToName)
		}
		if req.SoldToEmail != nil {
			key.SoldToEmail = optionalString(*req.SoldToEmail)
		}
		if req.SoldPrice != nil {
			price := *req.SoldPrice
			key.SoldPrice = &price
		}
		if req.Notes != nil {
			key.Notes = optionalString(*req.Notes)
		}
		if req.DurationDays != nil {
			key.DurationDays = *req.DurationDays
			if key.Status == database.KeyStatusActivated && key.ActivatedAt != nil {
				expires := key.ActivatedAt.Add(database.Days(key.DurationDays))
				key.ExpiresAt = &expires
			}
		}

		if err := tx.SaveKey(ctx, key); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logging.KeyContext(ctx, updated.ID, updated.KeyCode)
	if revoked {
		log.Info("Key revoked", "user_id", revokedFrom, "trials_expired", expired)
		data := keyEventData(updated)
		data["user_id"] = revokedFrom
		data["trials_expired"] = expired
		s.publish(events.EventKeyRevoked, data)
	} else {
		log.Info("Key updated", "status", updated.Status)
		s.publish(events.EventKeyUpdated, keyEventData(updated))
	}
	return updated, nil
}

// RevokeKey revokes a key and force-expires its holder's trials
func (s *Service) RevokeKey(ctx context.Context, keyID int64) (*database.ActivationKey, error) {
	status := string(database.KeyStatusRevoked)
	return s.UpdateKey(ctx, keyID, UpdateKeyRequest{Status: &status})
}

// DeleteKey hard-deletes a key regardless of status
func (s *Service) DeleteKey(ctx context.Context, keyID int64) error {
	deleted, err := s.store.DeleteKey(ctx, keyID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrKeyNotFound
	}

	s.log.Info("Key deleted", "key_id", keyID)
	s.publish(events.EventKeyDeleted, map[string]interface{}{"key_id": keyID})
	return nil
}

// GetKey returns a key by ID
func (s *Service) GetKey(ctx context.Context, keyID int64) (*database.ActivationKey, error) {
	key, err := s.store.KeyByID(ctx, keyID, false)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// KeyQuery filters and pages the key listing
type KeyQuery struct {
	Status  string
	Search  string
	Page    int
	PerPage int
}

// KeyPage is one page of keys
type KeyPage struct {
	Keys  []database.ActivationKey `json:"keys"`
	Total int                      `json:"total"`
	Page  int                      `json:"page"`
	Pages int                      `json:"pages"`
}

// ListKeys returns keys newest first
func (s *Service) ListKeys(ctx context.Context, q KeyQuery) (*KeyPage, error) {
	p := NewPagination(q.Page, q.PerPage)
	keys, total, err := s.store.ListKeys(ctx, database.KeyFilter{
		Status: database.KeyStatus(strings.TrimSpace(q.Status)),
		Search: strings.TrimSpace(q.Search),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []database.ActivationKey{}
	}
	return &KeyPage{Keys: keys, Total: total, Page: p.Page, Pages: p.Pages(total)}, nil
}

func keyEventData(k *database.ActivationKey) map[string]interface{} {
	return map[string]interface{}{
		"key_id":        k.ID,
		"key_code":      k.KeyCode,
		"status":        k.Status,
		"user_id":       k.UserID,
		"duration_days": k.DurationDays,
		"expires_at":    k.ExpiresAt,
	}
}

// optionalString trims s and maps the empty string to nil
func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
