package database

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate record")

// UserFilter narrows administrative user listings. The superadmin is always excluded.
type UserFilter struct {
	Search string // substring of email, case-insensitive
	Type   string // "admin", "client" or empty
	Limit  int    // 0 = no limit
	Offset int
}

// KeyFilter narrows activation key listings
type KeyFilter struct {
	Status KeyStatus
	Search string // substring of code, activated email, sold-to name or email
	Limit  int
	Offset int
}

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	// LockUser loads the user and holds its row lock until the transaction ends
	LockUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int, error)
}

// KeyStore persists activation keys
type KeyStore interface {
	InsertKeys(ctx context.Context, keys []*ActivationKey) error
	KeyByID(ctx context.Context, id int64, forUpdate bool) (*ActivationKey, error)
	KeyByCode(ctx context.Context, code string, forUpdate bool) (*ActivationKey, error)
	KeyCodeExists(ctx context.Context, code string) (bool, error)
	KeysByUser(ctx context.Context, userID int64) ([]ActivationKey, error)
	SaveKey(ctx context.Context, key *ActivationKey) error
	DeleteKey(ctx context.Context, id int64) (bool, error)
	ListKeys(ctx context.Context, filter KeyFilter) ([]ActivationKey, int, error)
}

// DeviceStore persists device trial windows
type DeviceStore interface {
	// InsertDevice fails with ErrDuplicate when the (device_id, platform) pair exists
	InsertDevice(ctx context.Context, device *Device) error
	// ObserveDevice inserts the device unless the pair exists and reports whether it inserted
	ObserveDevice(ctx context.Context, device *Device) (bool, error)
	DeviceExists(ctx context.Context, deviceID, platform string) (bool, error)
	DevicesByUser(ctx context.Context, userID int64) ([]Device, error)
	// ExpireTrials closes every open trial window of the user at now
	ExpireTrials(ctx context.Context, userID int64, now time.Time) (int64, error)
}

// CatalogStore persists product databases and their products
type CatalogStore interface {
	CreateDatabase(ctx context.Context, pdb *ProductDatabase) error
	DatabaseByID(ctx context.Context, id int64) (*ProductDatabase, error)
	DatabasesByUser(ctx context.Context, userID int64) ([]ProductDatabase, error)
	UpdateDatabase(ctx context.Context, pdb *ProductDatabase) error
	DeleteDatabase(ctx context.Context, id int64) error

	InsertProducts(ctx context.Context, databaseID int64, products []*Product) error
	ProductByID(ctx context.Context, id int64) (*Product, error)
	ProductsByDatabase(ctx context.Context, databaseID int64) ([]Product, error)
	UpdateProduct(ctx context.Context, product *Product) error
	DeleteProduct(ctx context.Context, id int64) error
	DeleteProductsByDatabase(ctx context.Context, databaseID int64) (int64, error)
}

// StatsStore aggregates dashboard counters
type StatsStore interface {
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// Store is the full persistence surface used by the services.
// Lookups return (nil, nil) when the record does not exist.
type Store interface {
	UserStore
	KeyStore
	DeviceStore
	CatalogStore
	StatsStore

	// WithTx runs fn in a single transaction; fn's error rolls everything back.
	// Calling WithTx on a transactional Store joins the open transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	HealthCheck(ctx context.Context) error
}
