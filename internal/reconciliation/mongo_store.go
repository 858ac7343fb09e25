package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const tasksCollection = "reconciliation_tasks"

type taskDocument struct {
	ID         string     `bson:"_id"`
	Kind       string     `bson:"kind"`
	Status     string     `bson:"status"`
	OrderID    string     `bson:"order_id"`
	InvoiceIDs []string   `bson:"invoice_ids"`
	Attempts   int        `bson:"attempts"`
	LastError  *string    `bson:"last_error,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
	ResolvedAt *time.Time `bson:"resolved_at,omitempty"`
}

func toTaskDocument(task models.ReconciliationTask) taskDocument {
	invoiceIDs := make([]string, 0, len(task.InvoiceIDs))
	for _, id := range task.InvoiceIDs {
		invoiceIDs = append(invoiceIDs, id.String())
	}
	return taskDocument{
		ID:         task.ID.String(),
		Kind:       string(task.Kind),
		Status:     string(task.Status),
		OrderID:    task.OrderID.String(),
		InvoiceIDs: invoiceIDs,
		Attempts:   task.Attempts,
		LastError:  task.LastError,
		CreatedAt:  task.CreatedAt,
		UpdatedAt:  task.UpdatedAt,
		ResolvedAt: task.ResolvedAt,
	}
}

func (d taskDocument) model() (models.ReconciliationTask, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.ReconciliationTask{}, fmt.Errorf("task %q: %w", d.ID, err)
	}
	orderID, err := uuid.Parse(d.OrderID)
	if err != nil {
		return models.ReconciliationTask{}, fmt.Errorf("task %q order: %w", d.ID, err)
	}
	task := models.ReconciliationTask{
		ID:         id,
		Kind:       enums.ReconciliationKind(d.Kind),
		Status:     enums.ReconciliationStatus(d.Status),
		OrderID:    orderID,
		InvoiceIDs: make([]uuid.UUID, 0, len(d.InvoiceIDs)),
		Attempts:   d.Attempts,
		LastError:  d.LastError,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		ResolvedAt: d.ResolvedAt,
	}
	for _, raw := range d.InvoiceIDs {
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			return models.ReconciliationTask{}, fmt.Errorf("task %q invoice: %w", d.ID, err)
		}
		task.InvoiceIDs = append(task.InvoiceIDs, invoiceID)
	}
	return task, nil
}

// MongoStore keeps tasks in the reconciliation_tasks collection.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(tasksCollection)}
}

// CreateIndexes ensures the pending scan index exists.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciliation indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, task *models.ReconciliationTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = enums.ReconciliationPending
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if _, err := s.collection.InsertOne(ctx, toTaskDocument(*task)); err != nil {
		return fmt.Errorf("failed to insert reconciliation task: %w", err)
	}
	return nil
}

func (s *MongoStore) ListPending(ctx context.Context, limit int) ([]models.ReconciliationTask, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.M{"status": string(enums.ReconciliationPending)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation tasks: %w", err)
	}
	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reconciliation tasks: %w", err)
	}
	tasks := make([]models.ReconciliationTask, 0, len(docs))
	for _, doc := range docs {
		task, err := doc.model()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *MongoStore) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	resolved := at.UTC()
	return s.update(ctx, id, bson.M{"$set": bson.M{
		"status":      string(enums.ReconciliationResolved),
		"resolved_at": resolved,
		"updated_at":  time.Now().UTC(),
	}})
}

func (s *MongoStore) RecordFailure(ctx context.Context, id uuid.UUID, message string, abandon bool) error {
	set := bson.M{"last_error": message, "updated_at": time.Now().UTC()}
	if abandon {
		set["status"] = string(enums.ReconciliationAbandoned)
	}
	return s.update(ctx, id, bson.M{"$set": set, "$inc": bson.M{"attempts": 1}})
}

func (s *MongoStore) update(ctx context.Context, id uuid.UUID, update bson.M) error {
	result, err := s.collection.UpdateByID(ctx, id.String(), update)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation task: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
