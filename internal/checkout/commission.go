package checkout

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/money"
)

// DefaultCommissionRate applies when a group carries no usable rate.
var DefaultCommissionRate = decimal.RequireFromString("0.10")

// CommissionCalculator settles the totals of a vendor group.
type CommissionCalculator struct {
	defaultRate decimal.Decimal
	logg        *logger.Logger
}

// NewCommissionCalculator returns a calculator falling back to defaultRate.
// An out of range default is replaced by DefaultCommissionRate.
func NewCommissionCalculator(defaultRate decimal.Decimal, logg *logger.Logger) *CommissionCalculator {
	if !inRange(defaultRate) {
		defaultRate = DefaultCommissionRate
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &CommissionCalculator{defaultRate: defaultRate, logg: logg}
}

// Apply fills total, commission and net earnings on group. Commission is
// charged on the subtotal only. Total and net are derived from the cent
// components so total = subtotal + tax + shipping - discount and
// net = total - commission hold exactly.
func (c *CommissionCalculator) Apply(ctx context.Context, group *models.VendorGroup) {
	rate := c.Rate(ctx, group.VendorID, group.CommissionRate)
	group.CommissionRate = rate.String()
	group.TotalCents = group.SubtotalCents + group.TaxCents + group.ShippingCents - group.DiscountCents
	group.CommissionCents = money.ToCents(money.FromCents(group.SubtotalCents).Mul(rate))
	group.NetEarningsCents = group.TotalCents - group.CommissionCents
}

// Rate parses raw and clamps it into [0, 1]. Blank input takes the default
// silently; anything unparseable or out of range is logged.
func (c *CommissionCalculator) Rate(ctx context.Context, vendorID, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.defaultRate
	}
	rate, err := decimal.NewFromString(raw)
	if err == nil && inRange(rate) {
		return rate
	}
	warnCtx := c.logg.WithFields(ctx, map[string]any{
		"event":        "data_quality.commission_rate",
		"vendor_id":    vendorID,
		"raw_rate":     raw,
		"applied_rate": c.defaultRate.String(),
	})
	c.logg.Warn(warnCtx, "commission rate out of range, using default")
	return c.defaultRate
}

func inRange(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}
