package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for development and tests.
// Transactions are serialized and work on a private copy that replaces the
// live data on commit. Writes outside a transaction wait for the open one.
// A WithTx callback must write through the Store it is handed.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *memData
	inTx bool

	healthErr error
}

type memData struct {
	users     map[int64]User
	keys      map[int64]ActivationKey
	devices   map[int64]Device
	databases map[int64]ProductDatabase
	products  map[int64]Product

	nextUser, nextKey, nextDevice, nextDatabase, nextProduct int64
}

func newMemData() *memData {
	return &memData{
		users:     make(map[int64]User),
		keys:      make(map[int64]ActivationKey),
		devices:   make(map[int64]Device),
		databases: make(map[int64]ProductDatabase),
		products:  make(map[int64]Product),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		users:        make(map[int64]User, len(d.users)),
		keys:         make(map[int64]ActivationKey, len(d.keys)),
		devices:      make(map[int64]Device, len(d.devices)),
		databases:    make(map[int64]ProductDatabase, len(d.databases)),
		products:     make(map[int64]Product, len(d.products)),
		nextUser:     d.nextUser,
		nextKey:      d.nextKey,
		nextDevice:   d.nextDevice,
		nextDatabase: d.nextDatabase,
		nextProduct:  d.nextProduct,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.keys {
		c.keys[k] = v
	}
	for k, v := range d.devices {
		c.devices[k] = v
	}
	for k, v := range d.databases {
		c.databases[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	return c
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

// SetHealthError makes HealthCheck report err
func (m *MemoryStore) SetHealthError(err error) {
	m.mu.Lock()
	m.healthErr = err
	m.mu.Unlock()
}

// HealthCheck reports the configured health error, if any
func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthErr
}

// WithTx runs fn against a copy of the data and publishes the copy only if fn succeeds.
// Calling WithTx on the Store handed to fn joins the open transaction.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	view := &MemoryStore{data: m.data.clone(), inTx: true}
	m.mu.RUnlock()

	if err := fn(view); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = view.data
	m.mu.Unlock()
	return nil
}

// lockWrite takes the write locks and returns the matching unlock
func (m *MemoryStore) lockWrite() func() {
	if !m.inTx {
		m.txMu.Lock()
	}
	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		if !m.inTx {
			m.txMu.Unlock()
		}
	}
}

func cloneKey(k ActivationKey) ActivationKey {
	k.UserID = clonePtr(k.UserID)
	k.ActivatedEmail = clonePtr(k.ActivatedEmail)
	k.ActivatedAt = clonePtr(k.ActivatedAt)
	k.ExpiresAt = clonePtr(k.ExpiresAt)
	k.SoldToName = clonePtr(k.SoldToName)
	k.SoldToEmail = clonePtr(k.SoldToEmail)
	k.SoldAt = clonePtr(k.SoldAt)
	k.SoldPrice = clonePtr(k.SoldPrice)
	k.Notes = clonePtr(k.Notes)
	k.CreatedBy = clonePtr(k.CreatedBy)
	return k
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ============================================================================
// USERS
// ============================================================================

func (m *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	defer m.lockWrite()()

	for _, u := range m.data.users {
		if u.Email == user.Email {
			return fmt.Errorf("failed to create user: %w: users_email_key", ErrDuplicate)
		}
	}

	m.data.nextUser++
	user.ID = m.data.nextUser
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.data.users[user.ID] = *user
	return nil
}

func (m *MemoryStore) UserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.data.users[id]
	if !ok {
		return nil, nil
	}
	u.LastLoginAt = clonePtr(u.LastLoginAt)
	return &u, nil
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.data.users {
		if u.Email == email {
			u.LastLoginAt = clonePtr(u.LastLoginAt)
			return &u, nil
		}
	}
	return nil, nil
}

// LockUser is UserByID; transactions already hold the store exclusively
func (m *MemoryStore) LockUser(ctx context.Context, id int64) (*User, error) {
	return m.UserByID(ctx, id)
}

func (m *MemoryStore) UpdateUser(ctx context.Context, user *User) error {
	defer m.lockWrite()()

	existing, ok := m.data.users[user.ID]
	if !ok {
		return nil
	}
	existing.PasswordHash = user.PasswordHash
	existing.IsActive = user.IsActive
	existing.IsAdmin = user.IsAdmin
	existing.LastLoginAt = clonePtr(user.LastLoginAt)
	m.data.users[user.ID] = existing
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []User
	for _, u := range m.data.users {
		if u.ID == SuperAdminID {
			continue
		}
		if filter.Search != "" && !containsFold(u.Email, filter.Search) {
			continue
		}
		if filter.Type == "admin" && !u.IsAdmin || filter.Type == "client" && u.IsAdmin {
			continue
		}
		u.LastLoginAt = clonePtr(u.LastLoginAt)
		matched = append(matched, u)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// ============================================================================
// ACTIVATION KEYS
// ============================================================================

func (m *MemoryStore) InsertKeys(ctx context.Context, keys []*ActivationKey) error {
	defer m.lockWrite()()

	seen := make(map[string]bool, len(keys))
	for _, k := range m.data.keys {
		seen[k.KeyCode] = true
	}
	for _, k := range keys {
		if seen[k.KeyCode] {
			return fmt.Errorf("failed to insert key: %w: activation_keys_key_code_key", ErrDuplicate)
		}
		seen[k.KeyCode] = true
	}

	now := time.Now().UTC()
	for _, k := range keys {
		m.data.nextKey++
		k.ID = m.data.nextKey
		if k.CreatedAt.IsZero() {
			k.CreatedAt = now
		}
		m.data.keys[k.ID] = cloneKey(*k)
	}
	return nil
}

func (m *MemoryStore) KeyByID(ctx context.Context, id int64, forUpdate bool) (*ActivationKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.data.keys[id]
	if !ok {
		return nil, nil
	}
	k = cloneKey(k)
	return &k, nil
}

func (m *MemoryStore) KeyByCode(ctx context.Context, code string, forUpdate bool) (*ActivationKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.data.keys {
		if k.KeyCode == code {
			k = cloneKey(k)
			return &k, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) KeyCodeExists(ctx context.Context, code string) (bool, error) {
	k, err := m.KeyByCode(ctx, code, false)
	return k != nil, err
}

func (m *MemoryStore) KeysByUser(ctx context.Context, userID int64) ([]ActivationKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []ActivationKey
	for _, k := range m.data.keys {
		if k.UserID != nil && *k.UserID == userID {
			keys = append(keys, cloneKey(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys, nil
}

func (m *MemoryStore) SaveKey(ctx context.Context, key *ActivationKey) error {
	defer m.lockWrite()()

	if _, ok := m.data.keys[key.ID]; !ok {
		return nil
	}
	m.data.keys[key.ID] = cloneKey(*key)
	return nil
}

func (m *MemoryStore) DeleteKey(ctx context.Context, id int64) (bool, error) {
	defer m.lockWrite()()

	if _, ok := m.data.keys[id]; !ok {
		return false, nil
	}
	delete(m.data.keys, id)
	return true, nil
}

func (m *MemoryStore) ListKeys(ctx context.Context, filter KeyFilter) ([]ActivationKey, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	var matched []ActivationKey
	for _, k := range m.data.keys {
		if filter.Status != "" && k.Status != filter.Status {
			continue
		}
		if filter.Search != "" &&
			!containsFold(k.KeyCode, filter.Search) &&
			!containsFold(deref(k.ActivatedEmail), filter.Search) &&
			!containsFold(deref(k.SoldToName), filter.Search) &&
			!containsFold(deref(k.SoldToEmail), filter.Search) {
			continue
		}
		matched = append(matched, cloneKey(k))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

// ============================================================================
// DEVICES
// ============================================================================

func (m *MemoryStore) findDevice(deviceID, platform string) bool {
	for _, d := range m.data.devices {
		if d.DeviceID == deviceID && d.Platform == platform {
			return true
		}
	}
	return false
}

func (m *MemoryStore) insertDevice(device *Device) {
	m.data.nextDevice++
	device.ID = m.data.nextDevice
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	m.data.devices[device.ID] = *device
}

func (m *MemoryStore) InsertDevice(ctx context.Context, device *Device) error {
	defer m.lockWrite()()

	if m.findDevice(device.DeviceID, device.Platform) {
		return fmt.Errorf("failed to insert device: %w: uq_device_platform", ErrDuplicate)
	}
	m.insertDevice(device)
	return nil
}

func (m *MemoryStore) ObserveDevice(ctx context.Context, device *Device) (bool, error) {
	defer m.lockWrite()()

	if m.findDevice(device.DeviceID, device.Platform) {
		return false, nil
	}
	m.insertDevice(device)
	return true, nil
}

func (m *MemoryStore) DeviceExists(ctx context.Context, deviceID, platform string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findDevice(deviceID, platform), nil
}

func (m *MemoryStore) DevicesByUser(ctx context.Context, userID int64) ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var devices []Device
	for _, d := range m.data.devices {
		if d.UserID == userID {
			devices = append(devices, d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (m *MemoryStore) ExpireTrials(ctx context.Context, userID int64, now time.Time) (int64, error) {
	defer m.lockWrite()()

	var n int64
	for id, d := range m.data.devices {
		if d.UserID == userID && d.TrialExpiresAt.After(now) {
			d.TrialExpiresAt = now
			m.data.devices[id] = d
			n++
		}
	}
	return n, nil
}

// ============================================================================
// CATALOG
// ============================================================================

func (m *MemoryStore) countProducts(databaseID int64) int {
	n := 0
	for _, p := range m.data.products {
		if p.DatabaseID == databaseID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) CreateDatabase(ctx context.Context, pdb *ProductDatabase) error {
	defer m.lockWrite()()

	m.data.nextDatabase++
	pdb.ID = m.data.nextDatabase
	now := time.Now().UTC()
	pdb.CreatedAt, pdb.UpdatedAt = now, now
	stored := *pdb
	stored.Description = clonePtr(pdb.Description)
	m.data.databases[pdb.ID] = stored
	return nil
}

func (m *MemoryStore) DatabaseByID(ctx context.Context, id int64) (*ProductDatabase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pdb, ok := m.data.databases[id]
	if !ok {
		return nil, nil
	}
	pdb.Description = clonePtr(pdb.Description)
	pdb.ProductCount = m.countProducts(id)
	return &pdb, nil
}

func (m *MemoryStore) DatabasesByUser(ctx context.Context, userID int64) ([]ProductDatabase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ProductDatabase
	for _, pdb := range m.data.databases {
		if pdb.UserID == userID {
			pdb.Description = clonePtr(pdb.Description)
			pdb.ProductCount = m.countProducts(pdb.ID)
			out = append(out, pdb)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateDatabase(ctx context.Context, pdb *ProductDatabase) error {
	defer m.lockWrite()()

	existing, ok := m.data.databases[pdb.ID]
	if !ok {
		return nil
	}
	existing.Name = pdb.Name
	existing.Description = clonePtr(pdb.Description)
	existing.UpdatedAt = time.Now().UTC()
	pdb.UpdatedAt = existing.UpdatedAt
	m.data.databases[pdb.ID] = existing
	return nil
}

func (m *MemoryStore) DeleteDatabase(ctx context.Context, id int64) error {
	defer m.lockWrite()()

	delete(m.data.databases, id)
	for pid, p := range m.data.products {
		if p.DatabaseID == id {
			delete(m.data.products, pid)
		}
	}
	return nil
}

func (m *MemoryStore) InsertProducts(ctx context.Context, databaseID int64, products []*Product) error {
	defer m.lockWrite()()

	now := time.Now().UTC()
	for _, p := range products {
		m.data.nextProduct++
		p.ID = m.data.nextProduct
		p.DatabaseID = databaseID
		p.CreatedAt, p.UpdatedAt = now, now
		m.data.products[p.ID] = *p
	}

	if pdb, ok := m.data.databases[databaseID]; ok {
		pdb.UpdatedAt = now
		m.data.databases[databaseID] = pdb
	}
	return nil
}

func (m *MemoryStore) ProductByID(ctx context.Context, id int64) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.data.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) ProductsByDatabase(ctx context.Context, databaseID int64) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Product
	for _, p := range m.data.products {
		if p.DatabaseID == databaseID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NameKZ != out[j].NameKZ {
			return out[i].NameKZ < out[j].NameKZ
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, product *Product) error {
	defer m.lockWrite()()

	if _, ok := m.data.products[product.ID]; !ok {
		return nil
	}
	product.UpdatedAt = time.Now().UTC()
	m.data.products[product.ID] = *product
	return nil
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	defer m.lockWrite()()

	delete(m.data.products, id)
	return nil
}

func (m *MemoryStore) DeleteProductsByDatabase(ctx context.Context, databaseID int64) (int64, error) {
	defer m.lockWrite()()

	var n int64
	for id, p := range m.data.products {
		if p.DatabaseID == databaseID {
			delete(m.data.products, id)
			n++
		}
	}
	return n, nil
}

// ============================================================================
// STATS
// ============================================================================

func (m *MemoryStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Stats{TotalUsers: len(m.data.users), TotalKeys: len(m.data.keys)}
	for _, u := range m.data.users {
		if u.IsAdmin {
			s.AdminUsers++
		}
	}

	trialUsers := make(map[int64]bool)
	for _, d := range m.data.devices {
		if d.TrialLiveAt(now) {
			trialUsers[d.UserID] = true
		}
	}
	s.ActiveTrials = len(trialUsers)

	for _, k := range m.data.keys {
		switch {
		case k.LiveAt(now):
			s.ActiveKeys++
		case k.Status == KeyStatusAvailable:
			s.AvailableKeys++
		case k.Status == KeyStatusSold:
			s.SoldKeys++
		}
		if k.SoldPrice != nil {
			s.Revenue += *k.SoldPrice
		}
	}
	return s, nil
}
