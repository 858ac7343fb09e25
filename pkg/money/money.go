package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToCents rounds d half-up to two decimal places and returns the integer cent amount.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a fixed two-decimal string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// Parse reads a client-supplied amount and rejects negatives.
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", raw)
	}
	return d, nil
}

// Allocate splits total cents across weights in proportion to each weight using the
// largest-remainder method. The parts always sum to total; ties go to the lower index.
// A zero or negative weight sum yields all-zero parts.
func Allocate(total int64, weights []int64) []int64 {
	parts := make([]int64, len(weights))
	if len(weights) == 0 || total == 0 {
		return parts
	}
	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return parts
	}

	divisor := decimal.NewFromInt(sum)
	remainders := make([]decimal.Decimal, len(weights))
	var assigned int64
	for i, w := range weights {
		if w <= 0 {
			remainders[i] = decimal.Zero
			continue
		}
		q, r := decimal.NewFromInt(total).Mul(decimal.NewFromInt(w)).QuoRem(divisor, 0)
		parts[i] = q.IntPart()
		remainders[i] = r
		assigned += parts[i]
	}

	leftover := total - assigned
	for leftover > 0 {
		best := -1
		for i := range weights {
			if weights[i] <= 0 {
				continue
			}
			if best == -1 || remainders[i].GreaterThan(remainders[best]) {
				best = i
			}
		}
		if best == -1 {
			break
		}
		parts[best]++
		remainders[best] = decimal.NewFromInt(-1)
		leftover--
	}
	return parts
}
