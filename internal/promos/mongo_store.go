package promos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const promoCodesCollection = "promo_codes"

type promoDocument struct {
	ID            string     `bson:"_id"`
	Code          string     `bson:"code"`
	Type          string     `bson:"type"`
	Value         string     `bson:"value"`
	MinOrderCents int64      `bson:"min_order_cents"`
	UsageLimit    int        `bson:"usage_limit"`
	UsedCount     int        `bson:"used_count"`
	ExpiresAt     *time.Time `bson:"expires_at,omitempty"`
	IsActive      bool       `bson:"is_active"`
	FirstTimeOnly bool       `bson:"first_time_only"`
	VendorID      *string    `bson:"vendor_id,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func (d promoDocument) model() (*models.PromoCode, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("promo %q: %w", d.ID, err)
	}
	value, err := decimal.NewFromString(d.Value)
	if err != nil {
		return nil, fmt.Errorf("promo %q value: %w", d.ID, err)
	}
	return &models.PromoCode{
		ID:            id,
		Code:          d.Code,
		Type:          enums.PromoType(d.Type),
		Value:         value,
		MinOrderCents: d.MinOrderCents,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		ExpiresAt:     d.ExpiresAt,
		IsActive:      d.IsActive,
		FirstTimeOnly: d.FirstTimeOnly,
		VendorID:      d.VendorID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

// MongoStore persists promo codes in the document backend.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(promoCodesCollection)}
}

// CreateIndexes ensures codes are unique.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create promo indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, promo *models.PromoCode) error {
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	promo.Code = NormalizeCode(promo.Code)
	now := time.Now().UTC()
	promo.CreatedAt, promo.UpdatedAt = now, now

	doc := promoDocument{
		ID:            promo.ID.String(),
		Code:          promo.Code,
		Type:          promo.Type.String(),
		Value:         promo.Value.String(),
		MinOrderCents: promo.MinOrderCents,
		UsageLimit:    promo.UsageLimit,
		UsedCount:     promo.UsedCount,
		ExpiresAt:     promo.ExpiresAt,
		IsActive:      promo.IsActive,
		FirstTimeOnly: promo.FirstTimeOnly,
		VendorID:      promo.VendorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert promo code: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return s.findOne(ctx, bson.M{"code": NormalizeCode(code)})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.PromoCode, error) {
	var doc promoDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promo code: %w", err)
	}
	return doc.model()
}

func (s *MongoStore) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	filter := bson.M{
		"_id": id.String(),
		"$or": bson.A{
			bson.M{"usage_limit": 0},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$used_count", "$usage_limit"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"used_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to increment promo usage: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (s *MongoStore) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	filter := bson.M{"_id": id.String(), "used_count": bson.M{"$gt": 0}}
	update := bson.M{
		"$inc": bson.M{"used_count": -1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	if _, err := s.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to decrement promo usage: %w", err)
	}
	return nil
}
