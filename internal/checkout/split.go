package checkout

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// PlatformVendorID owns products that carry no vendor.
const PlatformVendorID = "platform"

// PricedLine is a cart line joined with the product snapshot loaded for it.
// A nil Product means the lookup found nothing.
type PricedLine struct {
	ProductID uuid.UUID
	Quantity  int
	Product   *models.Product
}

// SplitResult holds the vendor groups of one cart, ordered by vendor id.
type SplitResult struct {
	Groups        []models.VendorGroup
	SubtotalCents int64
	Units         int
}

// Subtotal returns the cart subtotal across every vendor.
func (r SplitResult) Subtotal() decimal.Decimal {
	return money.FromCents(r.SubtotalCents)
}

// Group returns the group owned by vendorID.
func (r SplitResult) Group(vendorID string) (*models.VendorGroup, bool) {
	for i := range r.Groups {
		if r.Groups[i].VendorID == vendorID {
			return &r.Groups[i], true
		}
	}
	return nil, false
}

type vendorAccumulator struct {
	group    models.VendorGroup
	subtotal decimal.Decimal
}

// Split groups lines by vendor and prices each group: subtotal, tax at
// taxRate and a share of deliveryCost proportional to the group's units.
// Shipping and line tax shares are allocated in whole cents and always sum
// to the delivery cost and the group tax. Commission and discount are left to the caller.
func Split(lines []PricedLine, deliveryCost, taxRate decimal.Decimal) (SplitResult, error) {
	byVendor := map[string]*vendorAccumulator{}
	var result SplitResult

	for _, line := range lines {
		product := line.Product
		if product == nil {
			return SplitResult{}, catalog.ProductNotFound(line.ProductID)
		}
		if line.Quantity > product.Stock {
			return SplitResult{}, catalog.InsufficientStock(product.ID, product.Stock)
		}

		vendorID := VendorOf(*product)
		acc, ok := byVendor[vendorID]
		if !ok {
			acc = &vendorAccumulator{group: models.VendorGroup{
				VendorID:       vendorID,
				CommissionRate: rateOf(*product),
				Status:         enums.VendorGroupStatusPending,
			}}
			byVendor[vendorID] = acc
		}
		if acc.group.CommissionRate == "" {
			acc.group.CommissionRate = rateOf(*product)
		}

		lineSubtotal := money.FromCents(product.PriceCents).Mul(decimal.NewFromInt(int64(line.Quantity)))
		acc.group.LineItems = append(acc.group.LineItems, models.LineItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
			SubtotalCents:  money.ToCents(lineSubtotal),
		})
		acc.subtotal = acc.subtotal.Add(lineSubtotal)
		acc.group.Units += line.Quantity
		result.Units += line.Quantity
	}

	vendorIDs := make([]string, 0, len(byVendor))
	for id := range byVendor {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)

	weights := make([]int64, len(vendorIDs))
	for i, id := range vendorIDs {
		weights[i] = int64(byVendor[id].group.Units)
	}
	// Allocate returns zeros when there are no units.
	shipping := money.Allocate(money.ToCents(deliveryCost), weights)

	result.Groups = make([]models.VendorGroup, 0, len(vendorIDs))
	for i, id := range vendorIDs {
		acc := byVendor[id]
		group := acc.group
		group.SubtotalCents = money.ToCents(acc.subtotal)
		group.TaxCents = money.ToCents(acc.subtotal.Mul(taxRate))
		group.LineItems = allocateLineTax(group.LineItems, group.TaxCents)
		group.ShippingCents = shipping[i]
		result.SubtotalCents += group.SubtotalCents
		result.Groups = append(result.Groups, group)
	}
	return result, nil
}

// allocateLineTax spreads the group tax over its lines by line subtotal so
// the line taxes always add up to the group tax.
func allocateLineTax(items []models.LineItem, taxCents int64) []models.LineItem {
	weights := make([]int64, len(items))
	for i, item := range items {
		weights[i] = item.SubtotalCents
	}
	for i, share := range money.Allocate(taxCents, weights) {
		items[i].TaxCents = share
	}
	return items
}

// VendorOf returns the vendor that sells product.
func VendorOf(product models.Product) string {
	if id := strings.TrimSpace(product.VendorID); id != "" {
		return id
	}
	return PlatformVendorID
}

func rateOf(product models.Product) string {
	if !product.CommissionRate.Valid {
		return ""
	}
	return product.CommissionRate.Decimal.String()
}
