package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Source is what the publisher drains.
type Source interface {
	Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	MarkTerminal(ctx context.Context, id uuid.UUID, err error, terminalAttempts int) error
	DeadLetter(ctx context.Context, entry models.OutboxDLQ) error
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const maxDLQErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Insert(ctx context.Context, event models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

// Claim leases up to limit unpublished rows. A row is claimable when its
// lease is unset or expired; each lease is taken with a conditional update so
// concurrent publishers never share a row.
func (r *Repository) Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	now := time.Now().UTC()
	var candidates []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Where("(claimed_until IS NULL OR claimed_until < ?)", now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	until := now.Add(lease)
	claimed := make([]models.OutboxEvent, 0, len(candidates))
	for _, event := range candidates {
		res := r.db.WithContext(ctx).
			Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", event.ID).
			Where("(claimed_until IS NULL OR claimed_until < ?)", now).
			Update("claimed_until", until)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			event.ClaimedUntil = &until
			claimed = append(claimed, event)
		}
	}
	return claimed, nil
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at":  time.Now().UTC(),
			"claimed_until": nil,
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"claimed_until": nil,
		}).Error
}

// MarkTerminal pins attempt_count at terminalAttempts so the row is never claimed again.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, err error, terminalAttempts int) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": terminalAttempts,
			"claimed_until": nil,
		}).Error
}

func (r *Repository) DeadLetter(ctx context.Context, entry models.OutboxDLQ) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// FindByAggregate returns the rows emitted for one aggregate, oldest first.
func (r *Repository) FindByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
