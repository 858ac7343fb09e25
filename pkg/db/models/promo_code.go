package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// PromoCode is a discount campaign code. UsageLimit zero means unlimited.
type PromoCode struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code          string          `gorm:"column:code;not null;uniqueIndex"`
	Type          enums.PromoType `gorm:"column:type;not null"`
	Value         decimal.Decimal `gorm:"column:value;type:numeric(12,2);not null"`
	MinOrderCents int64           `gorm:"column:min_order_cents;not null;default:0"`
	UsageLimit    int             `gorm:"column:usage_limit;not null;default:0"`
	UsedCount     int             `gorm:"column:used_count;not null;default:0"`
	ExpiresAt     *time.Time      `gorm:"column:expires_at"`
	IsActive      bool            `gorm:"column:is_active;not null"`
	FirstTimeOnly bool            `gorm:"column:first_time_only;not null;default:false"`
	VendorID      *string         `gorm:"column:vendor_id"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
