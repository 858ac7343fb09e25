package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

var (
	// ErrNotFound is returned when no order matches.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned when the buyer already used the key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

const idempotencyConstraint = "ux_orders_buyer_idempotency"

// Store persists orders.
type Store interface {
	Create(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.Order, error)
	CountByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, error)
	ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Order, error)
}

// CursorOf returns the pagination cursor for an order row.
func CursorOf(order models.Order) pagination.Cursor {
	return pagination.Cursor{CreatedAt: order.CreatedAt, ID: order.ID}
}

// GormStore keeps orders in the orders table and indexes vendors in order_vendors.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTx returns a store bound to the provided transaction.
func (s *GormStore) WithTx(tx *gorm.DB) *GormStore {
	return &GormStore{db: tx}
}

func (s *GormStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	vendors := vendorRows(*order)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(vendors) == 0 {
			return nil
		}
		return tx.Create(&vendors).Error
	})
	if db.IsUniqueViolation(err, idempotencyConstraint) {
		return ErrDuplicateIdempotencyKey
	}
	return err
}

func vendorRows(order models.Order) []models.OrderVendor {
	seen := make(map[string]struct{}, len(order.VendorGroups))
	rows := make([]models.OrderVendor, 0, len(order.VendorGroups))
	for _, group := range order.VendorGroups {
		if _, ok := seen[group.VendorID]; ok {
			continue
		}
		seen[group.VendorID] = struct{}{}
		rows = append(rows, models.OrderVendor{
			OrderID:   order.ID,
			VendorID:  group.VendorID,
			CreatedAt: order.CreatedAt,
		})
	}
	return rows
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.OrderVendor{}, "order_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Order{}, "id = ?", id).Error
	})
}

func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.first(s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *GormStore) FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.Order, error) {
	return s.first(s.db.WithContext(ctx).Where("buyer_id = ? AND idempotency_key = ?", buyerID, key))
}

func (s *GormStore) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := query.First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *GormStore) CountByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID).Count(&count).Error
	return count, err
}

func (s *GormStore) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := s.db.WithContext(ctx).Where("orders.buyer_id = ?", buyerID)
	return s.page(query, params)
}

func (s *GormStore) ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Order, error) {
	query := s.db.WithContext(ctx).
		Joins("JOIN order_vendors ov ON ov.order_id = orders.id").
		Where("ov.vendor_id = ?", vendorID)
	return s.page(query, params)
}

func (s *GormStore) page(query *gorm.DB, params pagination.Params) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(orders.created_at < ? OR (orders.created_at = ? AND orders.id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Order
	err = query.
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
