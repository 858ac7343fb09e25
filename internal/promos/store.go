package promos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// ErrNotFound is returned when a promo code does not exist.
var ErrNotFound = errors.New("promo code not found")

// Store persists promo codes and their usage counters.
type Store interface {
	Create(ctx context.Context, promo *models.PromoCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
	// IncrementUsage bumps used_count only while the usage limit allows it.
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
	DecrementUsage(ctx context.Context, id uuid.UUID) error
}

// NormalizeCode canonicalises user input; codes are matched case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GormStore persists promo codes in the relational backend.
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

func (s *GormStore) Create(ctx context.Context, promo *models.PromoCode) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	promo.Code = NormalizeCode(promo.Code)
	return s.db.WithContext(ctx).Create(promo).Error
}

func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormStore) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return s.first(ctx, "code = ?", NormalizeCode(code))
}

func (s *GormStore) first(ctx context.Context, query string, arg any) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := s.db.WithContext(ctx).First(&promo, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *GormStore) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", id).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("id = ? AND used_count > 0", id).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count - 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}
