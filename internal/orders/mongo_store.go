package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgmongo "github.com/angelmondragon/bazaar-backend/pkg/mongo"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const ordersCollection = "orders"

type lineItemDocument struct {
	ProductID      string `bson:"product_id"`
	ProductName    string `bson:"product_name"`
	Quantity       int    `bson:"quantity"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	SubtotalCents  int64  `bson:"subtotal_cents"`
	TaxCents       int64  `bson:"tax_cents"`
}

type vendorGroupDocument struct {
	VendorID         string             `bson:"vendor_id"`
	InvoiceID        string             `bson:"invoice_id"`
	LineItems        []lineItemDocument `bson:"line_items"`
	Units            int                `bson:"units"`
	SubtotalCents    int64              `bson:"subtotal_cents"`
	TaxCents         int64              `bson:"tax_cents"`
	ShippingCents    int64              `bson:"shipping_cents"`
	DiscountCents    int64              `bson:"discount_cents"`
	TotalCents       int64              `bson:"total_cents"`
	CommissionRate   string             `bson:"commission_rate"`
	CommissionCents  int64              `bson:"commission_cents"`
	NetEarningsCents int64              `bson:"net_earnings_cents"`
	Currency         string             `bson:"currency"`
	Status           string             `bson:"status"`
}

type statusChangeDocument struct {
	Status string    `bson:"status"`
	At     time.Time `bson:"at"`
	Note   string    `bson:"note,omitempty"`
}

type orderDocument struct {
	ID                      string                 `bson:"_id"`
	BuyerID                 string                 `bson:"buyer_id"`
	IdempotencyKey          *string                `bson:"idempotency_key,omitempty"`
	VendorGroups            []vendorGroupDocument  `bson:"vendor_groups"`
	TotalCents              int64                  `bson:"total_cents"`
	DiscountCents           int64                  `bson:"discount_cents"`
	TotalAfterDiscountCents int64                  `bson:"total_after_discount_cents"`
	PromoCodeID             *string                `bson:"promo_code_id,omitempty"`
	Currency                string                 `bson:"currency"`
	PaymentMethod           string                 `bson:"payment_method"`
	PaymentReference        *string                `bson:"payment_reference,omitempty"`
	ShippingAddress         types.ShippingAddress  `bson:"shipping_address"`
	DeliveryOption          types.DeliveryOption   `bson:"delivery_option"`
	Status                  string                 `bson:"status"`
	StatusHistory           []statusChangeDocument `bson:"status_history"`
	CreatedAt               time.Time              `bson:"created_at"`
	UpdatedAt               time.Time              `bson:"updated_at"`
}

func toOrderDocument(o models.Order) orderDocument {
	doc := orderDocument{
		ID:                      o.ID.String(),
		BuyerID:                 o.BuyerID.String(),
		IdempotencyKey:          o.IdempotencyKey,
		VendorGroups:            make([]vendorGroupDocument, 0, len(o.VendorGroups)),
		TotalCents:              o.TotalCents,
		DiscountCents:           o.DiscountCents,
		TotalAfterDiscountCents: o.TotalAfterDiscountCents,
		Currency:                string(o.Currency),
		PaymentMethod:           string(o.PaymentMethod),
		PaymentReference:        o.PaymentReference,
		ShippingAddress:         o.ShippingAddress,
		DeliveryOption:          o.DeliveryOption,
		Status:                  string(o.Status),
		StatusHistory:           make([]statusChangeDocument, 0, len(o.StatusHistory)),
		CreatedAt:               o.CreatedAt,
		UpdatedAt:               o.UpdatedAt,
	}
	if o.PromoCodeID != nil {
		promoID := o.PromoCodeID.String()
		doc.PromoCodeID = &promoID
	}
	for _, group := range o.VendorGroups {
		g := vendorGroupDocument{
			VendorID:         group.VendorID,
			InvoiceID:        group.InvoiceID.String(),
			LineItems:        make([]lineItemDocument, 0, len(group.LineItems)),
			Units:            group.Units,
			SubtotalCents:    group.SubtotalCents,
			TaxCents:         group.TaxCents,
			ShippingCents:    group.ShippingCents,
			DiscountCents:    group.DiscountCents,
			TotalCents:       group.TotalCents,
			CommissionRate:   group.CommissionRate,
			CommissionCents:  group.CommissionCents,
			NetEarningsCents: group.NetEarningsCents,
			Currency:         string(group.Currency),
			Status:           string(group.Status),
		}
		for _, item := range group.LineItems {
			g.LineItems = append(g.LineItems, lineItemDocument{
				ProductID:      item.ProductID.String(),
				ProductName:    item.ProductName,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
				SubtotalCents:  item.SubtotalCents,
				TaxCents:       item.TaxCents,
			})
		}
		doc.VendorGroups = append(doc.VendorGroups, g)
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusChangeDocument{
			Status: string(change.Status),
			At:     change.At,
			Note:   change.Note,
		})
	}
	return doc
}

func (d orderDocument) model() (*models.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("order %q: %w", d.ID, err)
	}
	buyerID, err := uuid.Parse(d.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("order %q buyer: %w", d.ID, err)
	}
	order := &models.Order{
		ID:                      id,
		BuyerID:                 buyerID,
		IdempotencyKey:          d.IdempotencyKey,
		VendorGroups:            make([]models.VendorGroup, 0, len(d.VendorGroups)),
		TotalCents:              d.TotalCents,
		DiscountCents:           d.DiscountCents,
		TotalAfterDiscountCents: d.TotalAfterDiscountCents,
		Currency:                enums.Currency(d.Currency),
		PaymentMethod:           enums.PaymentMethod(d.PaymentMethod),
		PaymentReference:        d.PaymentReference,
		ShippingAddress:         d.ShippingAddress,
		DeliveryOption:          d.DeliveryOption,
		Status:                  enums.OrderStatus(d.Status),
		StatusHistory:           make([]models.StatusChange, 0, len(d.StatusHistory)),
		CreatedAt:               d.CreatedAt,
		UpdatedAt:               d.UpdatedAt,
	}
	if d.PromoCodeID != nil {
		promoID, err := uuid.Parse(*d.PromoCodeID)
		if err != nil {
			return nil, fmt.Errorf("order %q promo: %w", d.ID, err)
		}
		order.PromoCodeID = &promoID
	}
	for _, g := range d.VendorGroups {
		invoiceID, err := uuid.Parse(g.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("order %q invoice: %w", d.ID, err)
		}
		status, err := enums.ParseVendorGroupStatus(g.Status)
		if err != nil {
			return nil, fmt.Errorf("order %q: %w", d.ID, err)
		}
		group := models.VendorGroup{
			VendorID:         g.VendorID,
			InvoiceID:        invoiceID,
			LineItems:        make([]models.LineItem, 0, len(g.LineItems)),
			Units:            g.Units,
			SubtotalCents:    g.SubtotalCents,
			TaxCents:         g.TaxCents,
			ShippingCents:    g.ShippingCents,
			DiscountCents:    g.DiscountCents,
			TotalCents:       g.TotalCents,
			CommissionRate:   g.CommissionRate,
			CommissionCents:  g.CommissionCents,
			NetEarningsCents: g.NetEarningsCents,
			Currency:         enums.Currency(g.Currency),
			Status:           status,
		}
		for _, item := range g.LineItems {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				return nil, fmt.Errorf("order %q product: %w", d.ID, err)
			}
			group.LineItems = append(group.LineItems, models.LineItem{
				ProductID:      productID,
				ProductName:    item.ProductName,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
				SubtotalCents:  item.SubtotalCents,
				TaxCents:       item.TaxCents,
			})
		}
		order.VendorGroups = append(order.VendorGroups, group)
	}
	for _, change := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, models.StatusChange{
			Status: enums.OrderStatus(change.Status),
			At:     change.At,
			Note:   change.Note,
		})
	}
	return order, nil
}

// MongoStore keeps orders as documents with embedded vendor groups.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(ordersCollection)}
}

// CreateIndexes ensures the idempotency and listing indexes exist.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetName(idempotencyConstraint).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "vendor_groups.vendor_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	_, err := s.collection.InsertOne(ctx, toOrderDocument(*order))
	if pkgmongo.IsDuplicateKey(err) {
		return ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) FindByIdempotencyKey(ctx context.Context, buyerID uuid.UUID, key string) (*models.Order, error) {
	return s.findOne(ctx, bson.M{"buyer_id": buyerID.String(), "idempotency_key": key})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Order, error) {
	var doc orderDocument
	err := s.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return doc.model()
}

func (s *MongoStore) CountByBuyer(ctx context.Context, buyerID uuid.UUID) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"buyer_id": buyerID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

func (s *MongoStore) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	return s.page(ctx, bson.M{"buyer_id": buyerID.String()}, params)
}

func (s *MongoStore) ListByVendor(ctx context.Context, vendorID string, params pagination.Params) ([]models.Order, error) {
	return s.page(ctx, bson.M{"vendor_groups.vendor_id": vendorID}, params)
}

func (s *MongoStore) page(ctx context.Context, filter bson.M, params pagination.Params) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
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
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var docs []orderDocument
	if err := found.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	orders := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.model()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}
