package buyers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgmongo "github.com/angelmondragon/bazaar-backend/pkg/mongo"
)

var (
	// ErrNotFound is returned when no buyer matches.
	ErrNotFound = errors.New("buyer not found")
	// ErrEmailTaken is returned when a concurrent create won the email.
	ErrEmailTaken = errors.New("buyer email already registered")
)

// Store persists buyer identities.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.Buyer, error)
	Create(ctx context.Context, buyer *models.Buyer) error
}

// GormStore persists buyers in the relational backend.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*models.Buyer, error) {
	var buyer models.Buyer
	err := s.db.WithContext(ctx).First(&buyer, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (s *GormStore) Create(ctx context.Context, buyer *models.Buyer) error {
	err := s.db.WithContext(ctx).Create(buyer).Error
	if db.IsUniqueViolation(err, "idx_buyers_email") {
		return ErrEmailTaken
	}
	return err
}

const buyersCollection = "buyers"

type buyerDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Country      string    `bson:"country"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// MongoStore persists buyers in the document backend.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(buyersCollection)}
}

// CreateIndexes enforces one buyer per email.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create buyer indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*models.Buyer, error) {
	var doc buyerDocument
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("buyer %q: %w", doc.ID, err)
	}
	return &models.Buyer{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		Country:      doc.Country,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) Create(ctx context.Context, buyer *models.Buyer) error {
	now := time.Now().UTC()
	buyer.CreatedAt, buyer.UpdatedAt = now, now
	_, err := s.collection.InsertOne(ctx, buyerDocument{
		ID:           buyer.ID.String(),
		Name:         buyer.Name,
		Email:        buyer.Email,
		Country:      buyer.Country,
		PasswordHash: buyer.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if pkgmongo.IsDuplicateKey(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert buyer: %w", err)
	}
	return nil
}
