package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// ErrNotFound is returned by stores when a product id has no row.
var ErrNotFound = errors.New("product not found")

// Store is the catalog persistence surface used by checkout.
type Store interface {
	Create(ctx context.Context, product *models.Product) error
	FindMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	Stock(ctx context.Context, id uuid.UUID) (int, error)
	// DecrementStock subtracts qty only when stock >= qty and reports whether it did.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

// GormStore persists products in the relational backend.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore builds a store tied to the provided GORM DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTx returns a store bound to the provided transaction.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx}
}

func (s *GormStore) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(product).Error
}

func (s *GormStore) FindMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *GormStore) Stock(ctx context.Context, id uuid.UUID) (int, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Select("id", "stock").First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return product.Stock, nil
}

func (s *GormStore) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
