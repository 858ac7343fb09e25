package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// ErrNotFound is returned when an invoice id has no row.
var ErrNotFound = errors.New("invoice not found")

// Store persists invoices.
type Store interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
	// LinkOrder sets order_id on every listed invoice; it is idempotent.
	LinkOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error)
	ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Invoice, error)
}

// GormStore persists invoices in the relational backend.
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

func (s *GormStore) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(invoice).Error
}

func (s *GormStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.Invoice{}, "id = ?", id).Error
}

func (s *GormStore) LinkOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"order_id": orderID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("link order %s: %w (%d of %d invoices)", orderID, ErrNotFound, res.RowsAffected, len(ids))
	}
	return nil
}

func (s *GormStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var invoices []models.Invoice
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *GormStore) ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Invoice, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var invoices []models.Invoice
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// CursorOf returns the pagination cursor for an invoice row.
func CursorOf(invoice models.Invoice) pagination.Cursor {
	return pagination.Cursor{CreatedAt: invoice.CreatedAt, ID: invoice.ID}
}
