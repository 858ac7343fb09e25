package invoices

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
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

const invoicesCollection = "invoices"

type lineItemDocument struct {
	ProductID      string `bson:"product_id"`
	ProductName    string `bson:"product_name"`
	Quantity       int    `bson:"quantity"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	SubtotalCents  int64  `bson:"subtotal_cents"`
	TaxCents       int64  `bson:"tax_cents"`
}

type invoiceDocument struct {
	ID              string             `bson:"_id"`
	Number          string             `bson:"number"`
	VendorID        string             `bson:"vendor_id"`
	CustomerID      string             `bson:"customer_id"`
	OrderID         *string            `bson:"order_id,omitempty"`
	Items           []lineItemDocument `bson:"items"`
	SubtotalCents   int64              `bson:"subtotal_cents"`
	TaxCents        int64              `bson:"tax_cents"`
	ShippingCents   int64              `bson:"shipping_cents"`
	DiscountCents   int64              `bson:"discount_cents"`
	CommissionCents int64              `bson:"commission_cents"`
	TotalCents      int64              `bson:"total_cents"`
	NetAmountCents  int64              `bson:"net_amount_cents"`
	Currency        string             `bson:"currency"`
	Status          string             `bson:"status"`
	DueDate         time.Time          `bson:"due_date"`
	PaidAt          *time.Time         `bson:"paid_at,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func toInvoiceDocument(inv models.Invoice) invoiceDocument {
	doc := invoiceDocument{
		ID:              inv.ID.String(),
		Number:          inv.Number,
		VendorID:        inv.VendorID,
		CustomerID:      inv.CustomerID.String(),
		Items:           make([]lineItemDocument, 0, len(inv.Items)),
		SubtotalCents:   inv.SubtotalCents,
		TaxCents:        inv.TaxCents,
		ShippingCents:   inv.ShippingCents,
		DiscountCents:   inv.DiscountCents,
		CommissionCents: inv.CommissionCents,
		TotalCents:      inv.TotalCents,
		NetAmountCents:  inv.NetAmountCents,
		Currency:        string(inv.Currency),
		Status:          string(inv.Status),
		DueDate:         inv.DueDate,
		PaidAt:          inv.PaidAt,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
	if inv.OrderID != nil {
		orderID := inv.OrderID.String()
		doc.OrderID = &orderID
	}
	for _, item := range inv.Items {
		doc.Items = append(doc.Items, toLineItemDocument(item))
	}
	return doc
}

// toLineItemDocument converts a line item for embedding.
func toLineItemDocument(item models.LineItem) lineItemDocument {
	return lineItemDocument{
		ProductID:      item.ProductID.String(),
		ProductName:    item.ProductName,
		Quantity:       item.Quantity,
		UnitPriceCents: item.UnitPriceCents,
		SubtotalCents:  item.SubtotalCents,
		TaxCents:       item.TaxCents,
	}
}

func (d lineItemDocument) model() (models.LineItem, error) {
	productID, err := uuid.Parse(d.ProductID)
	if err != nil {
		return models.LineItem{}, fmt.Errorf("line item product %q: %w", d.ProductID, err)
	}
	return models.LineItem{
		ProductID:      productID,
		ProductName:    d.ProductName,
		Quantity:       d.Quantity,
		UnitPriceCents: d.UnitPriceCents,
		SubtotalCents:  d.SubtotalCents,
		TaxCents:       d.TaxCents,
	}, nil
}

func (d invoiceDocument) model() (models.Invoice, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("invoice %q: %w", d.ID, err)
	}
	customerID, err := uuid.Parse(d.CustomerID)
	if err != nil {
		return models.Invoice{}, fmt.Errorf("invoice %q customer: %w", d.ID, err)
	}
	inv := models.Invoice{
		ID:              id,
		Number:          d.Number,
		VendorID:        d.VendorID,
		CustomerID:      customerID,
		Items:           make([]models.LineItem, 0, len(d.Items)),
		SubtotalCents:   d.SubtotalCents,
		TaxCents:        d.TaxCents,
		ShippingCents:   d.ShippingCents,
		DiscountCents:   d.DiscountCents,
		CommissionCents: d.CommissionCents,
		TotalCents:      d.TotalCents,
		NetAmountCents:  d.NetAmountCents,
		Currency:        enums.Currency(d.Currency),
		Status:          enums.InvoiceStatus(d.Status),
		DueDate:         d.DueDate,
		PaidAt:          d.PaidAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.OrderID != nil {
		orderID, err := uuid.Parse(*d.OrderID)
		if err != nil {
			return models.Invoice{}, fmt.Errorf("invoice %q order: %w", d.ID, err)
		}
		inv.OrderID = &orderID
	}
	for _, item := range d.Items {
		line, err := item.model()
		if err != nil {
			return models.Invoice{}, err
		}
		inv.Items = append(inv.Items, line)
	}
	return inv, nil
}

// MongoStore persists invoices in the document backend.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(invoicesCollection)}
}

// CreateIndexes ensures the number and vendor listing indexes exist.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "vendor_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, invoice *models.Invoice) error {
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	if _, err := s.collection.InsertOne(ctx, toInvoiceDocument(*invoice)); err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

func (s *MongoStore) LinkOrder(ctx context.Context, ids []uuid.UUID, orderID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	update := bson.M{"$set": bson.M{"order_id": orderID.String(), "updated_at": time.Now().UTC()}}
	result, err := s.collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}}, update)
	if err != nil {
		return fmt.Errorf("failed to link invoices: %w", err)
	}
	if result.MatchedCount != int64(len(ids)) {
		return fmt.Errorf("link order %s: %w (%d of %d invoices)", orderID, ErrNotFound, result.MatchedCount, len(ids))
	}
	return nil
}

func (s *MongoStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to find invoices: %w", err)
	}
	return decodeInvoices(ctx, cursor)
}

func (s *MongoStore) ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Invoice, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"vendor_id": vendorID}
	if cursor != nil {
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": cursor.CreatedAt}},
			bson.M{"created_at": cursor.CreatedAt, "_id": bson.M{"$lt": cursor.ID.String()}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(pagination.LimitWithBuffer(params.Limit)))

	found, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return decodeInvoices(ctx, found)
}

func decodeInvoices(ctx context.Context, cursor *mongo.Cursor) ([]models.Invoice, error) {
	var docs []invoiceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode invoices: %w", err)
	}
	invoices := make([]models.Invoice, 0, len(docs))
	for _, doc := range docs {
		inv, err := doc.model()
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
