package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const (
	eventsCollection = "outbox_events"
	dlqCollection    = "outbox_dlq"
)

type eventDocument struct {
	ID            string     `bson:"_id"`
	EventType     string     `bson:"event_type"`
	AggregateType string     `bson:"aggregate_type"`
	AggregateID   string     `bson:"aggregate_id"`
	Payload       string     `bson:"payload"`
	CreatedAt     time.Time  `bson:"created_at"`
	PublishedAt   *time.Time `bson:"published_at"`
	ClaimedUntil  *time.Time `bson:"claimed_until"`
	AttemptCount  int        `bson:"attempt_count"`
	LastError     *string    `bson:"last_error,omitempty"`
}

type dlqDocument struct {
	ID            string    `bson:"_id"`
	EventID       string    `bson:"event_id"`
	EventType     string    `bson:"event_type"`
	AggregateType string    `bson:"aggregate_type"`
	AggregateID   string    `bson:"aggregate_id"`
	Payload       string    `bson:"payload"`
	ErrorReason   string    `bson:"error_reason"`
	ErrorMessage  *string   `bson:"error_message,omitempty"`
	AttemptCount  int       `bson:"attempt_count"`
	FailedAt      time.Time `bson:"failed_at"`
}

func (d eventDocument) model() (models.OutboxEvent, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox event %q: %w", d.ID, err)
	}
	aggregateID, err := uuid.Parse(d.AggregateID)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("outbox event %q aggregate: %w", d.ID, err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.OutboxEventType(d.EventType),
		AggregateType: enums.OutboxAggregateType(d.AggregateType),
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(d.Payload),
		CreatedAt:     d.CreatedAt,
		PublishedAt:   d.PublishedAt,
		ClaimedUntil:  d.ClaimedUntil,
		AttemptCount:  d.AttemptCount,
		LastError:     d.LastError,
	}, nil
}

// MongoRepository keeps the outbox in the document backend.
type MongoRepository struct {
	events *mongo.Collection
	dlq    *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		events: db.Collection(eventsCollection),
		dlq:    db.Collection(dlqCollection),
	}
}

// CreateIndexes ensures the claim scan index exists.
func (r *MongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "published_at", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Insert(ctx context.Context, event models.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	doc := eventDocument{
		ID:            event.ID.String(),
		EventType:     string(event.EventType),
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID.String(),
		Payload:       string(event.Payload),
		CreatedAt:     event.CreatedAt,
		AttemptCount:  event.AttemptCount,
	}
	if _, err := r.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func claimableFilter(now time.Time, maxAttempts int) bson.M {
	return bson.M{
		"published_at":  nil,
		"attempt_count": bson.M{"$lt": maxAttempts},
		"$or": bson.A{
			bson.M{"claimed_until": nil},
			bson.M{"claimed_until": bson.M{"$lt": now}},
		},
	}
}

func (r *MongoRepository) Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]models.OutboxEvent, error) {
	now := time.Now().UTC()
	until := now.Add(lease)
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	claimed := make([]models.OutboxEvent, 0, limit)
	for len(claimed) < limit {
		var doc eventDocument
		err := r.events.FindOneAndUpdate(ctx,
			claimableFilter(now, maxAttempts),
			bson.M{"$set": bson.M{"claimed_until": until}},
			opts,
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim outbox event: %w", err)
		}
		event, err := doc.model()
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, event)
	}
	return claimed, nil
}

func (r *MongoRepository) update(ctx context.Context, id uuid.UUID, update bson.M) error {
	if _, err := r.events.UpdateOne(ctx, bson.M{"_id": id.String()}, update); err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	return nil
}

func (r *MongoRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"published_at": time.Now().UTC(), "claimed_until": nil}})
}

func (r *MongoRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{"last_error": err.Error(), "claimed_until": nil},
		"$inc": bson.M{"attempt_count": 1},
	})
}

func (r *MongoRepository) MarkTerminal(ctx context.Context, id uuid.UUID, err error, terminalAttempts int) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{
		"last_error":    err.Error(),
		"attempt_count": terminalAttempts,
		"claimed_until": nil,
	}})
}

func (r *MongoRepository) DeadLetter(ctx context.Context, entry models.OutboxDLQ) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	doc := dlqDocument{
		ID:            entry.ID.String(),
		EventID:       entry.EventID.String(),
		EventType:     string(entry.EventType),
		AggregateType: string(entry.AggregateType),
		AggregateID:   entry.AggregateID.String(),
		Payload:       string(entry.Payload),
		ErrorReason:   string(entry.ErrorReason),
		ErrorMessage:  entry.ErrorMessage,
		AttemptCount:  entry.AttemptCount,
		FailedAt:      entry.FailedAt,
	}
	if _, err := r.dlq.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert outbox dlq entry: %w", err)
	}
	return nil
}

func (r *MongoRepository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.events.DeleteMany(ctx, bson.M{"published_at": bson.M{"$ne": nil, "$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox events: %w", err)
	}
	return res.DeletedCount, nil
}
