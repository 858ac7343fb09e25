package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ErrNotFound is returned when a task id has no row.
var ErrNotFound = errors.New("reconciliation task not found")

// Store persists reconciliation tasks.
type Store interface {
	Create(ctx context.Context, task *models.ReconciliationTask) error
	// ListPending returns the oldest pending tasks first.
	ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordFailure bumps attempts and stores message; abandon closes the task.
	RecordFailure(ctx context.Context, id uuid.UUID, message string, abandon bool) error
}

// GormStore keeps tasks in reconciliation_tasks.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, task *models.ReconciliationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = enums.ReconciliationPending
	}
	return s.db.WithContext(ctx).Create(task).Error
}

func (s *GormStore) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	var tasks []models.ReconciliationTask
	err := s.db.WithContext(ctx).
		Where("status = ?", enums.ReconciliationPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormStore) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":      enums.ReconciliationResolved,
		"resolved_at": at.UTC(),
		"updated_at":  time.Now().UTC(),
	})
}

func (s *GormStore) RecordFailure(ctx context.Context, id uuid.UUID, message string, abandon bool) error {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": message,
		"updated_at": time.Now().UTC(),
	}
	if abandon {
		updates["status"] = enums.ReconciliationAbandoned
	}
	return s.update(ctx, id, updates)
}

func (s *GormStore) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.ReconciliationTask{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByOrder returns every task recorded for orderID.
func (s *GormStore) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ReconciliationTask, error) {
	var tasks []models.ReconciliationTask
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
