package catalog

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
)

const productsCollection = "products"

type productDocument struct {
	ID             string    `bson:"_id"`
	VendorID       string    `bson:"vendor_id"`
	Name           string    `bson:"name"`
	PriceCents     int64     `bson:"price_cents"`
	Stock          int       `bson:"stock"`
	CommissionRate *string   `bson:"commission_rate,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toProductDocument(p models.Product) productDocument {
	doc := productDocument{
		ID:         p.ID.String(),
		VendorID:   p.VendorID,
		Name:       p.Name,
		PriceCents: p.PriceCents,
		Stock:      p.Stock,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.CommissionRate.Valid {
		rate := p.CommissionRate.Decimal.String()
		doc.CommissionRate = &rate
	}
	return doc
}

func (d productDocument) model() (models.Product, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.Product{}, fmt.Errorf("product %q: %w", d.ID, err)
	}
	p := models.Product{
		ID:         id,
		VendorID:   d.VendorID,
		Name:       d.Name,
		PriceCents: d.PriceCents,
		Stock:      d.Stock,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if d.CommissionRate != nil {
		rate, err := decimal.NewFromString(*d.CommissionRate)
		if err != nil {
			return models.Product{}, fmt.Errorf("product %q commission rate: %w", d.ID, err)
		}
		p.CommissionRate = decimal.NewNullDecimal(rate)
	}
	return p, nil
}

// MongoStore persists products in the document backend. Calls made with a
// session context join that session's transaction.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore builds a store over the products collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(productsCollection)}
}

// CreateIndexes ensures the lookup indexes exist.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "vendor_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if _, err := s.collection.InsertOne(ctx, toProductDocument(*product)); err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (s *MongoStore) FindMany(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products := make([]models.Product, 0, len(docs))
	for _, doc := range docs {
		product, err := doc.model()
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (s *MongoStore) Stock(ctx context.Context, id uuid.UUID) (int, error) {
	var doc productDocument
	opts := options.FindOne().SetProjection(bson.M{"stock": 1})
	err := s.collection.FindOne(ctx, bson.M{"_id": id.String()}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return doc.Stock, nil
}

func (s *MongoStore) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	filter := bson.M{"_id": id.String(), "stock": bson.M{"$gte": qty}}
	update := bson.M{
		"$inc": bson.M{"stock": -qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return result.MatchedCount == 1, nil
}

func (s *MongoStore) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	update := bson.M{
		"$inc": bson.M{"stock": qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
