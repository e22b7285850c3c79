// Package catalog manages user-owned product databases and their CSV/XLSX exchange.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

var (
	ErrDatabaseNotFound = apperror.NotFound("DATABASE_NOT_FOUND", "Database not found")
	ErrAccessDenied     = apperror.Forbidden("ACCESS_DENIED", "Access denied")
	ErrProductNotFound  = apperror.NotFound("PRODUCT_NOT_FOUND", "Product not found")
)

// Service implements catalog CRUD with ownership checks
type Service struct {
	store     database.Store
	fetcher   Fetcher
	publisher events.Publisher
	log       *logging.Logger
}

// NewService creates a catalog service. Nil collaborators get defaults.
func NewService(store database.Store, fetcher Fetcher, publisher events.Publisher) *Service {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     store,
		fetcher:   fetcher,
		publisher: publisher,
		log:       logging.WithComponent("catalog"),
	}
}

// owned loads the database and checks user owns it
func (s *Service) owned(ctx context.Context, store database.CatalogStore, user *database.User, id int64) (*database.ProductDatabase, error) {
	pdb, err := store.DatabaseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pdb == nil {
		return nil, ErrDatabaseNotFound
	}
	if pdb.UserID != user.ID {
		return nil, ErrAccessDenied
	}
	return pdb, nil
}

// ============================================================================
// DATABASES
// ============================================================================

// DatabaseRequest creates or renames a product database
type DatabaseRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ListDatabases returns the user's databases, most recently changed first
func (s *Service) ListDatabases(ctx context.Context, user *database.User) ([]database.ProductDatabase, error) {
	dbs, err := s.store.DatabasesByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if dbs == nil {
		dbs = []database.ProductDatabase{}
	}
	return dbs, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// CreateDatabase creates a named database owned by user
func (s *Service) CreateDatabase(ctx context.Context, user *database.User, req DatabaseRequest) (*database.ProductDatabase, error) {
	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	if name == "" {
		return nil, apperror.Invalid("Database name is required")
	}

	pdb := &database.ProductDatabase{
		UserID:      user.ID,
		Name:        name,
		Description: trimmedOrNil(req.Description),
	}
	if err := s.store.CreateDatabase(ctx, pdb); err != nil {
		return nil, err
	}
	return pdb, nil
}

// UpdateDatabase renames the database when a non-blank name is given and
// replaces the description when one is present
func (s *Service) UpdateDatabase(ctx context.Context, user *database.User, id int64, req DatabaseRequest) (*database.ProductDatabase, error) {
	pdb, err := s.owned(ctx, s.store, user, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			pdb.Name = name
		}
	}
	if req.Description != nil {
		pdb.Description = trimmedOrNil(req.Description)
	}
	if err := s.store.UpdateDatabase(ctx, pdb); err != nil {
		return nil, err
	}
	return pdb, nil
}

// DeleteDatabase removes the database and all its products
func (s *Service) DeleteDatabase(ctx context.Context, user *database.User, id int64) error {
	if _, err := s.owned(ctx, s.store, user, id); err != nil {
		return err
	}
	return s.store.DeleteDatabase(ctx, id)
}

// ============================================================================
// PRODUCTS
// ============================================================================

// ProductInput is a product as submitted by clients
type ProductInput struct {
	NameKZ   string  `json:"name_kz"`
	NameFull string  `json:"name_full"`
	Barcode  string  `json:"barcode"`
	Price    float64 `json:"price"`
}

// ProductPatch changes the fields that are present
type ProductPatch struct {
	NameKZ   *string  `json:"name_kz"`
	NameFull *string  `json:"name_full"`
	Barcode  *string  `json:"barcode"`
	Price    *float64 `json:"price"`
}

// ListProducts returns every product ordered by name_kz
func (s *Service) ListProducts(ctx context.Context, user *database.User, id int64) ([]database.Product, error) {
	if _, err := s.owned(ctx, s.store, user, id); err != nil {
		return nil, err
	}
	products, err := s.store.ProductsByDatabase(ctx, id)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []database.Product{}
	}
	return products, nil
}

// AddProducts inserts the inputs that carry a barcode
func (s *Service) AddProducts(ctx context.Context, user *database.User, id int64, inputs []ProductInput) ([]*database.Product, error) {
	if _, err := s.owned(ctx, s.store, user, id); err != nil {
		return nil, err
	}

	products := make([]*database.Product, 0, len(inputs))
	for _, in := range inputs {
		barcode := strings.TrimSpace(in.Barcode)
		if barcode == "" {
			continue
		}
		products = append(products, &database.Product{
			NameKZ:   strings.TrimSpace(in.NameKZ),
			NameFull: strings.TrimSpace(in.NameFull),
			Barcode:  barcode,
			Price:    in.Price,
		})
	}
	if len(products) == 0 {
		return products, nil
	}
	if err := s.store.InsertProducts(ctx, id, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Service) ownedProduct(ctx context.Context, user *database.User, id, productID int64) (*database.Product, error) {
	if _, err := s.owned(ctx, s.store, user, id); err != nil {
		return nil, err
	}
	product, err := s.store.ProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil || product.DatabaseID != id {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// UpdateProduct applies patch to a product of the database
func (s *Service) UpdateProduct(ctx context.Context, user *database.User, id, productID int64, patch ProductPatch) (*database.Product, error) {
	product, err := s.ownedProduct(ctx, user, id, productID)
	if err != nil {
		return nil, err
	}

	if patch.NameKZ != nil {
		product.NameKZ = strings.TrimSpace(*patch.NameKZ)
	}
	if patch.NameFull != nil {
		product.NameFull = strings.TrimSpace(*patch.NameFull)
	}
	if patch.Barcode != nil {
		product.Barcode = strings.TrimSpace(*patch.Barcode)
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct removes a product of the database
func (s *Service) DeleteProduct(ctx context.Context, user *database.User, id, productID int64) error {
	if _, err := s.ownedProduct(ctx, user, id, productID); err != nil {
		return err
	}
	return s.store.DeleteProduct(ctx, productID)
}

// ============================================================================
// IMPORT / EXPORT
// ============================================================================

// ImportRequest names the CSV source; csv_url wins when both are set
type ImportRequest struct {
	CSVURL     string `json:"csv_url"`
	CSVData    string `json:"csv_data"`
	ReplaceAll bool   `json:"replace_all"`
}

// Import loads products from CSV. Replacement and insertion commit together.
func (s *Service) Import(ctx context.Context, user *database.User, id int64, req ImportRequest) (int, error) {
	if _, err := s.owned(ctx, s.store, user, id); err != nil {
		return 0, err
	}

	csvURL := strings.TrimSpace(req.CSVURL)
	raw := strings.TrimSpace(req.CSVData)
	if csvURL == "" && raw == "" {
		return 0, apperror.Invalid("csv_url or csv_data is required")
	}

	if csvURL != "" {
		ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
		defer cancel()
		body, err := s.fetcher.Fetch(ctx, csvURL)
		if err != nil {
			return 0, err
		}
		raw = body
	}

	products, err := ParseCSV(raw)
	if err != nil {
		return 0, err
	}

	var replaced int64
	err = s.store.WithTx(ctx, func(tx database.Store) error {
		if _, err := s.owned(ctx, tx, user, id); err != nil {
			return err
		}
		if req.ReplaceAll {
			n, err := tx.DeleteProductsByDatabase(ctx, id)
			if err != nil {
				return err
			}
			replaced = n
		}
		if len(products) == 0 {
			return nil
		}
		return tx.InsertProducts(ctx, id, products)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("Catalog imported",
		"database_id", id,
		"user_id", user.ID,
		"imported", len(products),
		"replaced", replaced)
	s.publisher.Publish(events.Event{
		Type:      events.EventCatalogImported,
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"database_id": id,
			"user_id":     user.ID,
			"imported":    len(products),
			"replace_all": req.ReplaceAll,
		},
	})
	return len(products), nil
}

// Export returns the database and its products ordered by name_kz
func (s *Service) Export(ctx context.Context, user *database.User, id int64) (*database.ProductDatabase, []database.Product, error) {
	pdb, err := s.owned(ctx, s.store, user, id)
	if err != nil {
		return nil, nil, err
	}
	products, err := s.store.ProductsByDatabase(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return pdb, products, nil
}
