package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Models lists every table the service persists, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.PromoCode{},
		&models.Buyer{},
		&models.Invoice{},
		&models.Order{},
		&models.OrderVendor{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
		&models.ReconciliationTask{},
	}
}

// AutoMigrate creates the schema from the GORM models. Used for sqlite
// databases, where the Postgres goose migrations do not apply.
func AutoMigrate(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
